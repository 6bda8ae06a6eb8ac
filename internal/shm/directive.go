package shm

import (
	"fmt"
	"strconv"
	"strings"
)

// Directive is one line of a shm-format input file:
//
//	<byte_offset>[:<bit>],<type>,<identifier>
type Directive struct {
	Offset int
	Bit    int
	HasBit bool
	Spec   ValueSpec
	ID     string
}

// NewDirective builds the directive for a value at addr.
func NewDirective(addr AddressSpec, spec ValueSpec, id string) Directive {
	offset, bit := addr.Location(spec)
	return Directive{
		Offset: offset,
		Bit:    bit,
		HasBit: spec.Kind() == KindBool,
		Spec:   Normalize(spec),
		ID:     id,
	}
}

func (d Directive) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(d.Offset))
	if d.HasBit {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(d.Bit))
	}
	sb.WriteByte(',')
	sb.WriteString(TypeToken(d.Spec))
	sb.WriteByte(',')
	sb.WriteString(d.ID)
	return sb.String()
}

// TypeToken renders the type field of a directive or write line,
// e.g. "b", "u8", "i16l", "f64br", "s12".
func TypeToken(spec ValueSpec) string {
	switch s := spec.(type) {
	case BoolSpec:
		return "b"
	case IntSpec:
		c := "u"
		if s.Signed {
			c = "i"
		}
		return c + strconv.Itoa(s.Width*8) + endianSuffix(s.Width, s.LittleEndian, s.ReversedRegisters)
	case FloatSpec:
		return "f" + strconv.Itoa(s.Width*8) + endianSuffix(s.Width, s.LittleEndian, s.ReversedRegisters)
	case StringSpec:
		return "s" + strconv.Itoa(s.Length)
	default:
		panic(fmt.Sprintf("shm: unexpected value spec %T", spec))
	}
}

func endianSuffix(width int, little, reversed bool) string {
	if width <= 1 {
		return ""
	}
	suffix := "b"
	if little {
		suffix = "l"
	}
	if reversed && width > 2 {
		suffix += "r"
	}
	return suffix
}

// ParseTypeToken parses the type field. The integer and float display cannot
// be recovered from the token alone and are left at their defaults.
func ParseTypeToken(token string) (ValueSpec, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty type", ErrInvalidDirective)
	}
	kind, rest := token[0], token[1:]
	switch kind {
	case 'b':
		if rest != "" {
			return nil, fmt.Errorf("%w: bool type %q takes no width", ErrInvalidDirective, token)
		}
		return BoolSpec{}, nil
	case 's':
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: string length in %q", ErrInvalidDirective, token)
		}
		return StringSpec{Length: n}, nil
	case 'i', 'u', 'f':
	default:
		return nil, fmt.Errorf("%w: type character %q", ErrInvalidDirective, kind)
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	bits, err := strconv.Atoi(rest[:digits])
	if err != nil || bits%8 != 0 {
		return nil, fmt.Errorf("%w: width in %q", ErrInvalidDirective, token)
	}
	width := bits / 8
	little, reversed, err := parseEndian(rest[digits:], width)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidDirective, token, err)
	}

	var spec ValueSpec
	if kind == 'f' {
		spec = FloatSpec{Width: width, LittleEndian: little, ReversedRegisters: reversed}
	} else {
		spec = IntSpec{Width: width, Signed: kind == 'i', LittleEndian: little, ReversedRegisters: reversed}
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}
	return spec, nil
}

func parseEndian(suffix string, width int) (little, reversed bool, err error) {
	if width <= 1 {
		if suffix != "" {
			return false, false, fmt.Errorf("byte order given for a 1 byte value")
		}
		return false, false, nil
	}
	if suffix == "" {
		return false, false, fmt.Errorf("missing byte order")
	}
	switch suffix[0] {
	case 'l':
		little = true
	case 'b':
	default:
		return false, false, fmt.Errorf("unknown byte order %q", suffix[0])
	}
	switch suffix[1:] {
	case "":
	case "r":
		if width <= 2 {
			return false, false, fmt.Errorf("register reversal needs more than one register")
		}
		reversed = true
	default:
		return false, false, fmt.Errorf("trailing %q", suffix[1:])
	}
	return little, reversed, nil
}

// ParseDirective parses a directive line. The display of integers and
// floats is taken from the identifier's format character.
func ParseDirective(line string) (Directive, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return Directive{}, fmt.Errorf("%w: expected 3 fields in %q", ErrInvalidDirective, line)
	}

	var d Directive
	location, bitStr, hasBit := strings.Cut(fields[0], ":")
	offset, err := strconv.Atoi(location)
	if err != nil || offset < 0 {
		return Directive{}, fmt.Errorf("%w: offset %q", ErrInvalidDirective, location)
	}
	d.Offset = offset
	if hasBit {
		bit, err := strconv.Atoi(bitStr)
		if err != nil || bit < 0 || bit > 7 {
			return Directive{}, fmt.Errorf("%w: bit %q", ErrInvalidDirective, bitStr)
		}
		d.Bit, d.HasBit = bit, true
	}

	spec, err := ParseTypeToken(fields[1])
	if err != nil {
		return Directive{}, err
	}
	if hasBit != (spec.Kind() == KindBool) {
		return Directive{}, fmt.Errorf("%w: bit position only allowed for bools", ErrInvalidDirective)
	}

	id, err := ParseIdentifier(fields[2])
	if err != nil {
		return Directive{}, err
	}
	if id.Kind != spec.Kind() {
		return Directive{}, fmt.Errorf("%w: identifier %q does not match type %q", ErrInvalidDirective, fields[2], fields[1])
	}
	switch s := spec.(type) {
	case IntSpec:
		s.Display, _ = id.IntDisplay()
		spec = s
	case FloatSpec:
		s.Display, _ = id.FloatDisplay()
		spec = s
	}
	d.Spec = spec
	d.ID = fields[2]
	return d, nil
}
