package gdsii

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Version is the GDSII stream version number this module writes and
// the one §4.4 specifies ("use 600").
const Version = 600

// Config configures a Save (write) operation (§6 "Configuration").
type Config struct {
	// Name is the library name, defaulting to "GDSIILIB".
	Name string
	// UserUnit is the display-scale unit; defaults to 1 μm.
	UserUnit Length
	// Modify and Acc are the library-level modification/access
	// timestamps written to BGNLIB; both default to now.
	Modify time.Time
	Acc    time.Time
	// Verbose enables informational tracing to os.Stderr in addition
	// to whatever WarningFunc the caller supplied.
	Verbose bool
	// Warnings receives every recoverable condition (§7.1). Nil
	// discards them (beyond whatever Verbose prints).
	Warnings WarningFunc
}

// defaultConfig fills in the zero-value defaults described in §6.
func defaultConfig(cfg Config) Config {
	if cfg.Name == "" {
		cfg.Name = "GDSIILIB"
	}
	if cfg.UserUnit == (Length{}) {
		cfg.UserUnit = LengthUm(1)
	}
	now := time.Now()
	if cfg.Modify.IsZero() {
		cfg.Modify = now
	}
	if cfg.Acc.IsZero() {
		cfg.Acc = now
	}
	return cfg
}

func (cfg Config) warn(kind WarningKind, tok, format string, args ...any) {
	emit(cfg.Warnings, kind, tok, format, args...)
	if cfg.Verbose {
		msg := fmt.Sprintf(format, args...)
		if tok != "" {
			fmt.Fprintf(traceWriter, "gdsii: warning: %s: %s\n", tok, msg)
		} else {
			fmt.Fprintf(traceWriter, "gdsii: warning: %s\n", msg)
		}
	}
}

// traceWriter is overridden by tests; production code always traces to
// os.Stderr.
var traceWriter io.Writer = os.Stderr

// defaultDBUnit is the scale used when no cell expresses a preference
// (§4.6 "chooses a reasonable default (1 nm) when none is supplied").
var defaultDBUnit = Nanometer

// commonScale computes the single database scale shared by a set of
// cells (§4.6). Cells with no PreferredScale are ignored; if the
// remaining cells disagree, the operation fails.
func commonScale(cells []*Cell) (Scale, error) {
	var chosen *Scale
	for _, c := range cells {
		if c.PreferredScale == nil {
			continue
		}
		if chosen == nil {
			s := *c.PreferredScale
			chosen = &s
			continue
		}
		if chosen.DBUnit.Meters != c.PreferredScale.DBUnit.Meters {
			return Scale{}, fmt.Errorf("gdsii: cells disagree on database scale: %s vs %s",
				chosen.DBUnit, c.PreferredScale.DBUnit)
		}
	}
	if chosen == nil {
		return Scale{DBUnit: defaultDBUnit}, nil
	}
	return *chosen, nil
}

// Library is the top-level decoded document (§3 "Library"): an ordered,
// insertion-order-preserving mapping from top-level cell name to cell
// (§6 "Exit behavior of the reader"), plus the resolved units.
type Library struct {
	Name     string
	DBUnit   Scale
	UserUnit Length
	Modify   time.Time
	Acc      time.Time
	Version  int

	names []string
	cells map[string]*Cell
}

// newLibrary builds an empty, insertion-ordered Library.
func newLibrary() *Library {
	return &Library{cells: make(map[string]*Cell)}
}

func (l *Library) put(c *Cell) {
	if _, exists := l.cells[c.Name]; !exists {
		l.names = append(l.names, c.Name)
	}
	l.cells[c.Name] = c
}

// Cell looks up a top-level cell by name.
func (l *Library) Cell(name string) (*Cell, bool) {
	c, ok := l.cells[name]
	return c, ok
}

// Cells returns top-level cells in the order they were inserted
// (§5 "Reader returns cells in the order they appear on disk").
func (l *Library) Cells() []*Cell {
	out := make([]*Cell, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, l.cells[n])
	}
	return out
}

// foldName returns the case-insensitive (upper-cased) key used by the
// writer's duplicate-name detection.
func foldName(name string) string { return strings.ToUpper(name) }

// validateName checks the library/structure name charset and length
// from §3 ("≤ 32 chars from [A-Za-z0-9_?$]"); violations are warnings,
// not errors (§7.1 "oversized structure name").
func validateName(name string, cfg Config) {
	if len(name) > 32 {
		cfg.warn(WarnOversizedName, "", "name %q exceeds 32 characters", name)
	}
	for _, r := range name {
		ok := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '?' || r == '$'
		if !ok {
			cfg.warn(WarnOversizedName, "", "name %q contains character %q outside [A-Za-z0-9_?$]", name, r)
			break
		}
	}
}

// Save orchestrates a full write: resolves units, wires the Writer to
// sink, and emits the library (§4.6).
func Save(w io.Writer, cfg Config, topCells []*Cell) error {
	cfg = defaultConfig(cfg)

	all := reachableCells(topCells)
	scale, err := commonScale(all)
	if err != nil {
		return err
	}

	wr := &writer{w: w, cfg: cfg, scale: scale}
	return wr.write(topCells)
}

// Load orchestrates a full read: wires the Reader to src and returns
// the resolved top-level cell mapping (§4.6, §6 "Exit behavior of the
// reader").
func Load(r io.Reader, cfg Config) (*Library, error) {
	cfg = defaultConfig(cfg)
	rd := &reader{r: r, cfg: cfg}
	return rd.read()
}
