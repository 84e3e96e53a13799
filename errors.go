package gdsii

import "fmt"

// FormatError identifies a fatal parse error (§7.2), carrying enough
// context to locate the offending record. Encode errors (§7.3) are
// returned as plain errors, not as *FormatError.
type FormatError struct {
	Offset  int64  // byte offset of the record, -1 if not applicable
	Token   string // record token name, empty if not applicable
	Element string // enclosing element kind (BOUNDARY, SREF, ...), empty if none
	Msg     string
}

func (e *FormatError) Error() string {
	switch {
	case e.Offset < 0 && e.Token != "":
		return fmt.Sprintf("gdsii: %s (token %s)", e.Msg, e.Token)
	case e.Element != "" && e.Token != "":
		return fmt.Sprintf("gdsii: %s (offset %d, token %s, in %s)", e.Msg, e.Offset, e.Token, e.Element)
	case e.Token != "":
		return fmt.Sprintf("gdsii: %s (offset %d, token %s)", e.Msg, e.Offset, e.Token)
	default:
		return fmt.Sprintf("gdsii: %s", e.Msg)
	}
}

func formatErrf(offset int64, tok token, element, format string, args ...any) error {
	return &FormatError{
		Offset:  offset,
		Token:   tokenName(tok),
		Element: element,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// WarningKind classifies a recoverable condition (§7.1).
type WarningKind int

const (
	WarnUnexpectedLeadingRecord WarningKind = iota
	WarnMissingEndlib
	WarnUnknownToken
	WarnUnimplementedSubrecord
	WarnDuplicateName
	WarnOutOfRange
	WarnOversizedName
)

// Warning is a recoverable condition reported through a WarningFunc.
type Warning struct {
	Kind    WarningKind
	Token   string // empty if not record-specific
	Message string
}

func (w Warning) String() string {
	if w.Token != "" {
		return fmt.Sprintf("%s: %s", w.Token, w.Message)
	}
	return w.Message
}

// WarningFunc receives every non-fatal condition encountered while
// reading or writing. A nil WarningFunc discards warnings.
type WarningFunc func(Warning)

func emit(fn WarningFunc, kind WarningKind, tok string, format string, args ...any) {
	if fn == nil {
		return
	}
	fn(Warning{Kind: kind, Token: tok, Message: fmt.Sprintf(format, args...)})
}
