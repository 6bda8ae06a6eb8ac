package shm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NormalizeWriteValue checks a user supplied value against its value spec and
// returns the text written to the injector.
func NormalizeWriteValue(spec ValueSpec, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch s := spec.(type) {
	case BoolSpec:
		switch strings.ToLower(value) {
		case "1", "true", "on":
			return "1", nil
		case "0", "false", "off":
			return "0", nil
		}
		if value == s.TrueLabel && value != "" {
			return "1", nil
		}
		if value == s.FalseLabel && value != "" {
			return "0", nil
		}
		return "", fmt.Errorf("%w: %q is not a bit value", ErrInvalidValue, value)
	case IntSpec:
		return normalizeInt(s, value)
	case FloatSpec:
		bits := 64
		if s.Width == 4 {
			bits = 32
		}
		f, err := strconv.ParseFloat(value, bits)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: %q is not a finite float%d", ErrInvalidValue, value, bits)
		}
		return strconv.FormatFloat(f, 'g', -1, bits), nil
	case StringSpec:
		if strings.ContainsAny(value, ":\n\r") {
			return "", fmt.Errorf("%w: string must not contain ':' or line breaks", ErrInvalidValue)
		}
		if len(value) > s.Length {
			return "", fmt.Errorf("%w: string longer than %d bytes", ErrInvalidValue, s.Length)
		}
		return value, nil
	default:
		panic(fmt.Sprintf("shm: unexpected value spec %T", spec))
	}
}

func normalizeInt(s IntSpec, value string) (string, error) {
	bits := s.Width * 8
	// base prefixes 0x, 0o and 0b are accepted
	if s.Signed {
		v, err := strconv.ParseInt(value, 0, bits)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not an int%d", ErrInvalidValue, value, bits)
		}
		return strconv.FormatInt(v, 10), nil
	}
	v, err := strconv.ParseUint(value, 0, bits)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a uint%d", ErrInvalidValue, value, bits)
	}
	return strconv.FormatUint(v, 10), nil
}

// WriteLine builds one line for stdin-to-modbus-shm:
//
//	<bank>:<byte_offset>:<value>[:<type>]
//
// Bits on DO/DI are written without a type and address the whole coil byte.
// A bit inside an AO/AI register cannot be written on its own.
func WriteLine(addr AddressSpec, spec ValueSpec, value string) (string, error) {
	if spec.Kind() == KindBool && !addr.Bank.Digital() {
		return "", fmt.Errorf("%w: bit %d of %s register %d", ErrNotWritable, addr.Bit, addr.Bank, addr.Register)
	}
	if spec.Kind() == KindBool && addr.Bit != 0 {
		return "", fmt.Errorf("%w: %s coil %d is written as a whole, bit %d cannot be set", ErrInvalidBit, addr.Bank, addr.Register, addr.Bit)
	}
	normalized, err := NormalizeWriteValue(spec, value)
	if err != nil {
		return "", err
	}
	prefix, suffix := WriteAffixes(addr, spec)
	return prefix + normalized + suffix, nil
}

// WriteAffixes returns the parts of a write line around the value,
// e.g. "AO:20:" and ":i16l".
func WriteAffixes(addr AddressSpec, spec ValueSpec) (prefix, suffix string) {
	offset, _ := addr.Location(spec)
	prefix = fmt.Sprintf("%s:%d:", addr.Bank, offset)
	if spec.Kind() != KindBool {
		suffix = ":" + TypeToken(Normalize(spec))
	}
	return prefix, suffix
}
