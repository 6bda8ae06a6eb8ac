package shm

import "fmt"

// Kind is the tag of a ValueSpec. The numeric values are stored in persisted
// entry configurations and must not change.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// IntDisplay selects how integers are rendered.
type IntDisplay int

const (
	Decimal IntDisplay = iota
	Hex
	Octal
	Binary
)

func (d IntDisplay) String() string {
	switch d {
	case Decimal:
		return "dec"
	case Hex:
		return "hex"
	case Octal:
		return "oct"
	case Binary:
		return "bin"
	default:
		return "unknown"
	}
}

// ParseIntDisplay accepts dec|hex|oct|bin (empty means dec).
func ParseIntDisplay(s string) (IntDisplay, error) {
	switch s {
	case "", "dec", "decimal":
		return Decimal, nil
	case "hex":
		return Hex, nil
	case "oct", "octal":
		return Octal, nil
	case "bin", "binary":
		return Binary, nil
	}
	return 0, fmt.Errorf("%w: unknown integer display %q", ErrInvalidValueSpec, s)
}

// FloatDisplay selects how floats are rendered.
type FloatDisplay int

const (
	Fixed FloatDisplay = iota
	Scientific
)

func (d FloatDisplay) String() string {
	if d == Scientific {
		return "sci"
	}
	return "fixed"
}

// ParseFloatDisplay accepts fixed|sci (empty means fixed).
func ParseFloatDisplay(s string) (FloatDisplay, error) {
	switch s {
	case "", "fixed":
		return Fixed, nil
	case "sci", "scientific":
		return Scientific, nil
	}
	return 0, fmt.Errorf("%w: unknown float display %q", ErrInvalidValueSpec, s)
}

// ValueSpec describes the type and presentation of one value in shared memory.
// It is implemented by BoolSpec, IntSpec, FloatSpec and StringSpec only.
type ValueSpec interface {
	Kind() Kind
	// Size is the number of bytes the value occupies (1 for a bool).
	Size() int
	Validate() error
	valueSpec()
}

// BoolSpec is a single bit. LittleEndian only matters for bits inside a
// 16 bit register (AO/AI).
type BoolSpec struct {
	TrueLabel    string `json:"true_label" yaml:"true_label"`
	FalseLabel   string `json:"false_label" yaml:"false_label"`
	LittleEndian bool   `json:"little_endian" yaml:"little_endian"`
}

// IntSpec is an integer of 1, 2, 4 or 8 bytes.
type IntSpec struct {
	Width             int        `json:"width" yaml:"width"`
	Signed            bool       `json:"signed" yaml:"signed"`
	Display           IntDisplay `json:"display" yaml:"display"`
	LittleEndian      bool       `json:"little_endian" yaml:"little_endian"`
	ReversedRegisters bool       `json:"reversed_registers" yaml:"reversed_registers"`
}

// FloatSpec is an IEEE 754 float (4 bytes) or double (8 bytes).
type FloatSpec struct {
	Width             int          `json:"width" yaml:"width"`
	Display           FloatDisplay `json:"display" yaml:"display"`
	LittleEndian      bool         `json:"little_endian" yaml:"little_endian"`
	ReversedRegisters bool         `json:"reversed_registers" yaml:"reversed_registers"`
}

// StringSpec is a fixed length character array.
type StringSpec struct {
	Length int `json:"length" yaml:"length"`
}

func (BoolSpec) Kind() Kind   { return KindBool }
func (IntSpec) Kind() Kind    { return KindInt }
func (FloatSpec) Kind() Kind  { return KindFloat }
func (StringSpec) Kind() Kind { return KindString }

func (BoolSpec) Size() int     { return 1 }
func (s IntSpec) Size() int    { return s.Width }
func (s FloatSpec) Size() int  { return s.Width }
func (s StringSpec) Size() int { return s.Length }

func (BoolSpec) valueSpec()   {}
func (IntSpec) valueSpec()    {}
func (FloatSpec) valueSpec()  {}
func (StringSpec) valueSpec() {}

func (BoolSpec) Validate() error { return nil }

func (s IntSpec) Validate() error {
	switch s.Width {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: integer width %d", ErrInvalidValueSpec, s.Width)
	}
	if s.Display < Decimal || s.Display > Binary {
		return fmt.Errorf("%w: integer display %d", ErrInvalidValueSpec, int(s.Display))
	}
	return nil
}

func (s FloatSpec) Validate() error {
	if s.Width != 4 && s.Width != 8 {
		return fmt.Errorf("%w: float width %d", ErrInvalidValueSpec, s.Width)
	}
	if s.Display != Fixed && s.Display != Scientific {
		return fmt.Errorf("%w: float display %d", ErrInvalidValueSpec, int(s.Display))
	}
	return nil
}

func (s StringSpec) Validate() error {
	if s.Length < 1 {
		return fmt.Errorf("%w: string length %d", ErrInvalidValueSpec, s.Length)
	}
	return nil
}

// Normalize clears flags that carry no meaning for the given width, so that
// two specs describing the same layout compare equal.
func Normalize(spec ValueSpec) ValueSpec {
	switch s := spec.(type) {
	case IntSpec:
		if s.Width <= 1 {
			s.LittleEndian = false
		}
		if s.Width <= 2 {
			s.ReversedRegisters = false
		}
		return s
	default:
		// floats always span two or four registers
		return spec
	}
}

// TypeName is the human readable type shown next to an entry,
// e.g. "int (hex)", "float (scientific)", "bool", "char[]".
func TypeName(spec ValueSpec) string {
	switch s := spec.(type) {
	case BoolSpec:
		return "bool"
	case IntSpec:
		name := "uint"
		if s.Signed {
			name = "int"
		}
		switch s.Display {
		case Hex:
			return name + " (hex)"
		case Octal:
			return name + " (oct)"
		case Binary:
			return name + " (bin)"
		default:
			return name
		}
	case FloatSpec:
		name := "float"
		if s.Width == 8 {
			name = "double"
		}
		if s.Display == Scientific {
			return name + " (scientific)"
		}
		return name
	case StringSpec:
		return "char[]"
	default:
		panic(fmt.Sprintf("shm: unexpected value spec %T", spec))
	}
}

// EndianName describes the byte order: "little", "big", "little (reversed)",
// "big (reversed)" or "---" where byte order does not apply.
func EndianName(spec ValueSpec) string {
	var little, reversed bool
	switch s := spec.(type) {
	case IntSpec:
		if s.Width < 2 {
			return "---"
		}
		little, reversed = s.LittleEndian, s.ReversedRegisters
	case FloatSpec:
		little, reversed = s.LittleEndian, s.ReversedRegisters
	default:
		return "---"
	}
	name := "big"
	if little {
		name = "little"
	}
	if reversed {
		name += " (reversed)"
	}
	return name
}

// SizeName is "bit" for bools and the byte count otherwise.
func SizeName(spec ValueSpec) string {
	if spec.Kind() == KindBool {
		return "bit"
	}
	return fmt.Sprintf("%d", spec.Size())
}

func (d IntDisplay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *IntDisplay) UnmarshalText(text []byte) error {
	parsed, err := ParseIntDisplay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d FloatDisplay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *FloatDisplay) UnmarshalText(text []byte) error {
	parsed, err := ParseFloatDisplay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
