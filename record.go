package gdsii

import (
	"encoding/binary"
	"fmt"
	"io"
)

const maxRecordLen = 0xFFFF

// recordHeaderLen is the 2-byte length + 2-byte token prologue shared
// by every record (§3).
const recordHeaderLen = 4

// wrongDataType reports a payload-type mismatch between the token's
// low byte and the data the caller is writing (§4.2, §7.3).
func wrongDataType(tok token, want byte) error {
	return fmt.Errorf("gdsii: wrong data type for %s: record wants payload type 0x%02X, got 0x%02X",
		tokenName(tok), tok.payloadType(), want)
}

func checkRecordLen(total int) error {
	if total > maxRecordLen {
		return fmt.Errorf("gdsii: record length %d exceeds %d", total, maxRecordLen)
	}
	if total%2 != 0 {
		return fmt.Errorf("gdsii: record length %d is not even", total)
	}
	return nil
}

// writeEmptyRecord writes a tokens-only record (payload type 0x00).
func writeEmptyRecord(w io.Writer, tok token) (int, error) {
	if tok.payloadType() != typeNoData {
		return 0, wrongDataType(tok, typeNoData)
	}
	return writeHeader(w, tok, recordHeaderLen)
}

// writeInt16Record writes a fixed int16 payload.
func writeInt16Record(w io.Writer, tok token, vals []int16) (int, error) {
	if tok.payloadType() != typeInt16 {
		return 0, wrongDataType(tok, typeInt16)
	}
	total := recordHeaderLen + len(vals)*2
	if err := checkRecordLen(total); err != nil {
		return 0, err
	}
	n, err := writeHeader(w, tok, total)
	if err != nil {
		return n, err
	}
	buf := make([]byte, 2)
	for _, v := range vals {
		binary.BigEndian.PutUint16(buf, uint16(v))
		m, err := w.Write(buf)
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// writeInt32Record writes a fixed int32 payload (also used for XY).
func writeInt32Record(w io.Writer, tok token, vals []int32) (int, error) {
	if tok.payloadType() != typeInt32 {
		return 0, wrongDataType(tok, typeInt32)
	}
	total := recordHeaderLen + len(vals)*4
	if err := checkRecordLen(total); err != nil {
		return 0, err
	}
	n, err := writeHeader(w, tok, total)
	if err != nil {
		return n, err
	}
	buf := make([]byte, 4)
	for _, v := range vals {
		binary.BigEndian.PutUint32(buf, uint32(v))
		m, err := w.Write(buf)
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// writeGDS64Record writes a fixed GDS64 real payload.
func writeGDS64Record(w io.Writer, tok token, vals []float64) (int, error) {
	if tok.payloadType() != typeReal64 {
		return 0, wrongDataType(tok, typeReal64)
	}
	total := recordHeaderLen + len(vals)*8
	if err := checkRecordLen(total); err != nil {
		return 0, err
	}
	n, err := writeHeader(w, tok, total)
	if err != nil {
		return n, err
	}
	buf := make([]byte, 8)
	for _, v := range vals {
		g, err := toGDS64(v)
		if err != nil {
			return n, err
		}
		gds64ToBytes(g, buf)
		m, err := w.Write(buf)
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// writeBitArrayRecord writes a single 16-bit bit-array payload (STRANS,
// PRESENTATION).
func writeBitArrayRecord(w io.Writer, tok token, val uint16) (int, error) {
	if tok.payloadType() != typeBitArray {
		return 0, wrongDataType(tok, typeBitArray)
	}
	total := recordHeaderLen + 2
	n, err := writeHeader(w, tok, total)
	if err != nil {
		return n, err
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, val)
	m, err := w.Write(buf)
	return n + m, err
}

// writeASCIIRecord writes a NUL-padded ASCII payload (§4.2 "padded to
// even length with a NUL when the source length is odd").
func writeASCIIRecord(w io.Writer, tok token, s string) (int, error) {
	if tok.payloadType() != typeASCII {
		return 0, wrongDataType(tok, typeASCII)
	}
	payload := []byte(s)
	if len(payload)%2 != 0 {
		payload = append(payload, 0)
	}
	total := recordHeaderLen + len(payload)
	if err := checkRecordLen(total); err != nil {
		return 0, err
	}
	n, err := writeHeader(w, tok, total)
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}

func writeHeader(w io.Writer, tok token, total int) (int, error) {
	buf := make([]byte, recordHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(total))
	binary.BigEndian.PutUint16(buf[2:4], uint16(tok))
	return w.Write(buf)
}

// rawRecord is one decoded record: its token and raw payload bytes.
type rawRecord struct {
	offset  int64
	tok     token
	payload []byte
}

// readRecord reads one length-prefixed record from r (§4.2 reader
// operations). offset is used only to annotate errors.
func readRecord(r io.Reader, offset int64) (rawRecord, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rawRecord{}, err
	}
	total := int(binary.BigEndian.Uint16(hdr[0:2]))
	tok := token(binary.BigEndian.Uint16(hdr[2:4]))
	payloadLen := total - recordHeaderLen
	if payloadLen < 0 {
		return rawRecord{}, formatErrf(offset, tok, "", "malformed record: length %d shorter than header", total)
	}
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return rawRecord{}, err
		}
	}
	return rawRecord{offset: offset, tok: tok, payload: payload}, nil
}

func (rr rawRecord) int16s() ([]int16, error) {
	if len(rr.payload)%2 != 0 {
		return nil, formatErrf(rr.offset, rr.tok, "", "payload length %d not a multiple of 2", len(rr.payload))
	}
	out := make([]int16, len(rr.payload)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(rr.payload[i*2:]))
	}
	return out, nil
}

func (rr rawRecord) int32s() ([]int32, error) {
	if len(rr.payload)%4 != 0 {
		return nil, formatErrf(rr.offset, rr.tok, "", "payload length %d not a multiple of 4", len(rr.payload))
	}
	out := make([]int32, len(rr.payload)/4)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(rr.payload[i*4:]))
	}
	return out, nil
}

func (rr rawRecord) gds64s() ([]float64, error) {
	if len(rr.payload)%8 != 0 {
		return nil, formatErrf(rr.offset, rr.tok, "", "payload length %d not a multiple of 8", len(rr.payload))
	}
	out := make([]float64, len(rr.payload)/8)
	for i := range out {
		out[i] = fromGDS64(gds64FromBytes(rr.payload[i*8:]))
	}
	return out, nil
}

func (rr rawRecord) bitArray() (uint16, error) {
	if len(rr.payload) != 2 {
		return 0, formatErrf(rr.offset, rr.tok, "", "bit-array payload must be 2 bytes, got %d", len(rr.payload))
	}
	return binary.BigEndian.Uint16(rr.payload), nil
}

func (rr rawRecord) ascii() string {
	s := string(rr.payload)
	// Strip trailing NUL pad bytes (§4.2).
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s
}
