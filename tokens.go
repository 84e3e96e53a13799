package gdsii

import "fmt"

// token is a GDSII record token: high byte is record kind, low byte is
// payload type.
type token uint16

// payload types (low byte of a token).
const (
	typeNoData   = 0x00
	typeBitArray = 0x01
	typeInt16    = 0x02
	typeInt32    = 0x03
	typeReal64   = 0x05
	typeASCII    = 0x06
)

// Record tokens, as laid out in §6.
const (
	tokHEADER       token = 0x0002
	tokBGNLIB       token = 0x0102
	tokLIBNAME      token = 0x0206
	tokUNITS        token = 0x0305
	tokENDLIB       token = 0x0400
	tokBGNSTR       token = 0x0502
	tokSTRNAME      token = 0x0606
	tokENDSTR       token = 0x0700
	tokBOUNDARY     token = 0x0800
	tokPATH         token = 0x0900
	tokSREF         token = 0x0A00
	tokAREF         token = 0x0B00
	tokTEXT         token = 0x0C00
	tokLAYER        token = 0x0D02
	tokDATATYPE     token = 0x0E02
	tokWIDTH        token = 0x0F03
	tokXY           token = 0x1003
	tokENDEL        token = 0x1100
	tokSNAME        token = 0x1206
	tokCOLROW       token = 0x1302
	tokTEXTTYPE     token = 0x1602
	tokPRESENTATION token = 0x1701
	tokSTRING       token = 0x1906
	tokSTRANS       token = 0x1A01
	tokMAG          token = 0x1B05
	tokANGLE        token = 0x1C05
	tokPATHTYPE     token = 0x2102
	tokEFLAGS       token = 0x2601
	tokPLEX         token = 0x2F03
	tokPROPATTR     token = 0x2B02
	tokPROPVALUE    token = 0x2C06
	tokBOX          token = 0x2D00
	tokBOXTYPE      token = 0x2E02
)

// tokenNames maps a token to a human-readable name, used only for
// warning/error messages (§4.6 "global record-token table").
var tokenNames = map[token]string{
	tokHEADER:       "HEADER",
	tokBGNLIB:       "BGNLIB",
	tokLIBNAME:      "LIBNAME",
	tokUNITS:        "UNITS",
	tokENDLIB:       "ENDLIB",
	tokBGNSTR:       "BGNSTR",
	tokSTRNAME:      "STRNAME",
	tokENDSTR:       "ENDSTR",
	tokBOUNDARY:     "BOUNDARY",
	tokPATH:         "PATH",
	tokSREF:         "SREF",
	tokAREF:         "AREF",
	tokTEXT:         "TEXT",
	tokLAYER:        "LAYER",
	tokDATATYPE:     "DATATYPE",
	tokWIDTH:        "WIDTH",
	tokXY:           "XY",
	tokENDEL:        "ENDEL",
	tokSNAME:        "SNAME",
	tokCOLROW:       "COLROW",
	tokTEXTTYPE:     "TEXTTYPE",
	tokPRESENTATION: "PRESENTATION",
	tokSTRING:       "STRING",
	tokSTRANS:       "STRANS",
	tokMAG:          "MAG",
	tokANGLE:        "ANGLE",
	tokPATHTYPE:     "PATHTYPE",
	tokEFLAGS:       "EFLAGS",
	tokPLEX:         "PLEX",
	tokPROPATTR:     "PROPATTR",
	tokPROPVALUE:    "PROPVALUE",
	tokBOX:          "BOX",
	tokBOXTYPE:      "BOXTYPE",
}

// tokenName returns a human-readable token name, falling back to a hex
// code for anything not in the table.
func tokenName(t token) string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(t))
}

func (t token) payloadType() byte { return byte(t) }
func (t token) kind() byte        { return byte(t >> 8) }
