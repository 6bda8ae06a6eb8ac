package shm

import (
	"fmt"
	"strconv"
	"strings"
)

// Identifier is the parsed form of an entry token "<kind>_<format>_<seq>",
// for example "int_x_3" or "float_e_12". The format character selects the
// presentation the result is rendered with.
type Identifier struct {
	Kind   Kind
	Format byte
	Seq    uint64
}

var kindPrefixes = map[string]Kind{
	"bool":   KindBool,
	"int":    KindInt,
	"float":  KindFloat,
	"string": KindString,
}

// FormatChar returns the identifier format character for a spec.
func FormatChar(spec ValueSpec) byte {
	switch s := spec.(type) {
	case BoolSpec:
		return 'X'
	case IntSpec:
		switch s.Display {
		case Hex:
			return 'x'
		case Octal:
			return 'o'
		case Binary:
			return 'b'
		default:
			if s.Signed {
				return 'd'
			}
			return 'u'
		}
	case FloatSpec:
		if s.Display == Scientific {
			return 'e'
		}
		return 'f'
	case StringSpec:
		return 's'
	default:
		panic(fmt.Sprintf("shm: unexpected value spec %T", spec))
	}
}

// NewIdentifier builds the token for the seq-th entry of a registry.
func NewIdentifier(spec ValueSpec, seq uint64) string {
	return fmt.Sprintf("%s_%c_%d", spec.Kind(), FormatChar(spec), seq)
}

// ParseIdentifier splits a token into kind, format and sequence number.
func ParseIdentifier(token string) (Identifier, error) {
	parts := strings.Split(token, "_")
	if len(parts) != 3 || len(parts[1]) != 1 {
		return Identifier{}, fmt.Errorf("%w: malformed identifier %q", ErrInvalidDirective, token)
	}
	kind, ok := kindPrefixes[parts[0]]
	if !ok {
		return Identifier{}, fmt.Errorf("%w: unknown identifier kind %q", ErrInvalidDirective, parts[0])
	}
	seq, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: identifier sequence %q", ErrInvalidDirective, parts[2])
	}
	id := Identifier{Kind: kind, Format: parts[1][0], Seq: seq}
	if err := id.checkFormat(); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

func (id Identifier) checkFormat() error {
	var valid string
	switch id.Kind {
	case KindBool:
		valid = "X"
	case KindInt:
		valid = "duxob"
	case KindFloat:
		valid = "fe"
	case KindString:
		valid = "s"
	}
	if !strings.ContainsRune(valid, rune(id.Format)) {
		return decodeErr(UnknownFormatCharacter, "%q for %s", id.Format, id.Kind)
	}
	return nil
}

// IntDisplay maps the format character of an integer identifier.
func (id Identifier) IntDisplay() (IntDisplay, error) {
	switch id.Format {
	case 'd', 'u':
		return Decimal, nil
	case 'x':
		return Hex, nil
	case 'o':
		return Octal, nil
	case 'b':
		return Binary, nil
	}
	return 0, decodeErr(UnknownFormatCharacter, "%q", id.Format)
}

// FloatDisplay maps the format character of a float identifier.
func (id Identifier) FloatDisplay() (FloatDisplay, error) {
	switch id.Format {
	case 'f':
		return Fixed, nil
	case 'e':
		return Scientific, nil
	}
	return 0, decodeErr(UnknownFormatCharacter, "%q", id.Format)
}
