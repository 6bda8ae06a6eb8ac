package shm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	decimalDigits = map[int]int{1: 3, 2: 5, 4: 10, 8: 19}
	octalDigits   = map[int]int{1: 3, 2: 6, 4: 11, 8: 22}
)

// SwapRegisters reverses the order of the 16 bit registers in b while keeping
// the byte order inside each register. Applying it twice is the identity.
func SwapRegisters(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	for i := 0; i+1 < len(out); i += 2 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return out
}

// DecodeRaw renders the bytes of one value taken straight from a bank dump.
// For bools data holds the single byte containing the bit.
func DecodeRaw(spec ValueSpec, bit int, data []byte) (string, error) {
	if len(data) != spec.Size() {
		return "", decodeErr(LengthMismatch, "%s needs %d bytes, got %d", TypeToken(spec), spec.Size(), len(data))
	}
	switch s := spec.(type) {
	case BoolSpec:
		if bit < 0 || bit > 7 {
			return "", &AddressError{Kind: InvalidBit, Bit: bit}
		}
		return BoolLabel(s, data[0]&(1<<bit) != 0), nil
	case IntSpec:
		return FormatInt(s, readUint(data, s.LittleEndian, s.ReversedRegisters)), nil
	case FloatSpec:
		raw := readUint(data, s.LittleEndian, s.ReversedRegisters)
		if s.Width == 4 {
			return FormatFloat(s, float64(math.Float32frombits(uint32(raw)))), nil
		}
		return FormatFloat(s, math.Float64frombits(raw)), nil
	case StringSpec:
		return strings.TrimRight(string(data), "\x00"), nil
	default:
		panic(fmt.Sprintf("shm: unexpected value spec %T", spec))
	}
}

func readUint(data []byte, little, reversed bool) uint64 {
	if reversed {
		data = SwapRegisters(data)
	}
	var buf [8]byte
	if little {
		copy(buf[:], data)
		return binary.LittleEndian.Uint64(buf[:])
	}
	copy(buf[8-len(data):], data)
	return binary.BigEndian.Uint64(buf[:])
}

// BoolLabel returns the configured label for a bit state. Empty labels fall
// back to "1" and "0".
func BoolLabel(s BoolSpec, set bool) string {
	if set {
		if s.TrueLabel == "" {
			return "1"
		}
		return s.TrueLabel
	}
	if s.FalseLabel == "" {
		return "0"
	}
	return s.FalseLabel
}

// FormatInt renders the low Width bytes of raw according to the spec.
// Signed decimals are sign extended; hex, octal and binary always show the
// unsigned bit pattern.
func FormatInt(s IntSpec, raw uint64) string {
	bits := uint(s.Width * 8)
	if bits < 64 {
		raw &= 1<<bits - 1
	}
	switch s.Display {
	case Hex:
		return fmt.Sprintf("%0*x", 2*s.Width, raw)
	case Octal:
		return fmt.Sprintf("%0*o", octalDigits[s.Width], raw)
	case Binary:
		return fmt.Sprintf("%0*b", 8*s.Width, raw)
	}
	digits := decimalDigits[s.Width]
	if !s.Signed {
		return fmt.Sprintf("%0*d", digits, raw)
	}
	v := int64(raw)
	if bits < 64 {
		v = int64(raw<<(64-bits)) >> (64 - bits)
	}
	if v < 0 {
		digits++
	}
	return fmt.Sprintf("%0*d", digits, v)
}

// FormatFloat renders v with 8 decimals or in scientific notation.
func FormatFloat(s FloatSpec, v float64) string {
	if s.Display == Scientific {
		return strconv.FormatFloat(v, 'e', 6, 64)
	}
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// DecodeScalar renders one item of a shm-format result. The presentation is
// taken from the value spec, whose kind must agree with the item's type tag.
func DecodeScalar(spec ValueSpec, item ResultItem) (string, error) {
	kind, err := resultKind(item.Type)
	if err != nil {
		return "", err
	}
	if kind != spec.Kind() {
		return "", decodeErr(TypeMismatch, "%s result %q for %s entry", item.Type, item.Name, spec.Kind())
	}

	switch s := spec.(type) {
	case BoolSpec:
		set, err := scalarBool(item.Data)
		if err != nil {
			return "", err
		}
		return BoolLabel(s, set), nil
	case IntSpec:
		raw, err := scalarInt(item.Data)
		if err != nil {
			return "", err
		}
		return FormatInt(s, raw), nil
	case FloatSpec:
		v, err := scalarFloat(item.Data)
		if err != nil {
			return "", err
		}
		return FormatFloat(s, v), nil
	case StringSpec:
		str, ok := item.Data.(string)
		if !ok {
			return "", decodeErr(TypeMismatch, "string result %q holds %T", item.Name, item.Data)
		}
		return truncate(strings.TrimRight(str, "\x00"), s.Length), nil
	default:
		panic(fmt.Sprintf("shm: unexpected value spec %T", spec))
	}
}

func resultKind(typ string) (Kind, error) {
	switch {
	case strings.HasPrefix(typ, "bool"):
		return KindBool, nil
	case strings.HasPrefix(typ, "int"), strings.HasPrefix(typ, "uint"):
		return KindInt, nil
	case strings.HasPrefix(typ, "float"), strings.HasPrefix(typ, "double"):
		return KindFloat, nil
	case strings.HasPrefix(typ, "string"):
		return KindString, nil
	}
	return 0, decodeErr(UnknownDataType, "%q", typ)
}

func scalarBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case json.Number:
		n, err := b.Int64()
		if err != nil {
			return false, decodeErr(TypeMismatch, "bool value %q", b)
		}
		return n != 0, nil
	case float64:
		return b != 0, nil
	}
	return false, decodeErr(TypeMismatch, "bool value of type %T", v)
}

func scalarInt(v any) (uint64, error) {
	switch n := v.(type) {
	case json.Number:
		s := n.String()
		if strings.HasPrefix(s, "-") {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return 0, decodeErr(TypeMismatch, "integer value %q", s)
			}
			return uint64(i), nil
		}
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, decodeErr(TypeMismatch, "integer value %q", s)
		}
		return u, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, decodeErr(TypeMismatch, "integer value %v", n)
		}
		if n < 0 {
			return uint64(int64(n)), nil
		}
		return uint64(n), nil
	}
	return 0, decodeErr(TypeMismatch, "integer value of type %T", v)
}

func scalarFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, decodeErr(TypeMismatch, "float value %q", n)
		}
		return f, nil
	case float64:
		return n, nil
	case string:
		// non finite values are reported as strings
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, decodeErr(TypeMismatch, "float value %q", n)
		}
		return f, nil
	}
	return 0, decodeErr(TypeMismatch, "float value of type %T", v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s
}
