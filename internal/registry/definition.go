package registry

import (
	"fmt"

	"github.com/KevinKickass/OpenShmInspector/internal/shm"
)

// Definition is the serializable declaration of an entry, used by REST
// requests and preset files.
type Definition struct {
	Name     string   `json:"name" yaml:"name"`
	Kind     string   `json:"kind" yaml:"kind"`
	Bank     shm.Bank `json:"bank" yaml:"bank"`
	Register int      `json:"register" yaml:"register"`
	Bit      int      `json:"bit,omitempty" yaml:"bit,omitempty"`
	HighByte bool     `json:"high_byte,omitempty" yaml:"high_byte,omitempty"`

	Width        int    `json:"width,omitempty" yaml:"width,omitempty"`
	Signed       bool   `json:"signed,omitempty" yaml:"signed,omitempty"`
	Display      string `json:"display,omitempty" yaml:"display,omitempty"`
	LittleEndian bool   `json:"little_endian,omitempty" yaml:"little_endian,omitempty"`
	Reversed     bool   `json:"reversed,omitempty" yaml:"reversed,omitempty"`
	Length       int    `json:"length,omitempty" yaml:"length,omitempty"`
	TrueLabel    string `json:"true_label,omitempty" yaml:"true_label,omitempty"`
	FalseLabel   string `json:"false_label,omitempty" yaml:"false_label,omitempty"`

	// Value is the value to write, only used by the setter.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Build converts the definition into an address and value spec.
func (d Definition) Build() (shm.AddressSpec, shm.ValueSpec, error) {
	addr := shm.AddressSpec{Bank: d.Bank, Register: d.Register, Bit: d.Bit, HighByte: d.HighByte}

	var spec shm.ValueSpec
	switch d.Kind {
	case "bool":
		spec = shm.BoolSpec{TrueLabel: d.TrueLabel, FalseLabel: d.FalseLabel, LittleEndian: d.LittleEndian}
	case "int":
		display, err := shm.ParseIntDisplay(d.Display)
		if err != nil {
			return addr, nil, err
		}
		spec = shm.IntSpec{
			Width:             d.Width,
			Signed:            d.Signed,
			Display:           display,
			LittleEndian:      d.LittleEndian,
			ReversedRegisters: d.Reversed,
		}
	case "float":
		display, err := shm.ParseFloatDisplay(d.Display)
		if err != nil {
			return addr, nil, err
		}
		width := d.Width
		if width == 0 {
			width = 4
		}
		spec = shm.FloatSpec{
			Width:             width,
			Display:           display,
			LittleEndian:      d.LittleEndian,
			ReversedRegisters: d.Reversed,
		}
	case "string":
		spec = shm.StringSpec{Length: d.Length}
	default:
		return addr, nil, fmt.Errorf("%w: unknown kind %q", shm.ErrInvalidValueSpec, d.Kind)
	}
	if err := spec.Validate(); err != nil {
		return addr, nil, err
	}
	return addr, shm.Normalize(spec), nil
}

// DefinitionOf is the inverse of Build.
func DefinitionOf(e Entry) Definition {
	d := Definition{
		Name:     e.Name,
		Kind:     e.Value.Kind().String(),
		Bank:     e.Address.Bank,
		Register: e.Address.Register,
		Bit:      e.Address.Bit,
		HighByte: e.Address.HighByte,
		Value:    e.WriteValue,
	}
	switch s := e.Value.(type) {
	case shm.BoolSpec:
		d.TrueLabel, d.FalseLabel, d.LittleEndian = s.TrueLabel, s.FalseLabel, s.LittleEndian
	case shm.IntSpec:
		d.Width, d.Signed, d.Display = s.Width, s.Signed, s.Display.String()
		d.LittleEndian, d.Reversed = s.LittleEndian, s.ReversedRegisters
	case shm.FloatSpec:
		d.Width, d.Display = s.Width, s.Display.String()
		d.LittleEndian, d.Reversed = s.LittleEndian, s.ReversedRegisters
	case shm.StringSpec:
		d.Length = s.Length
	}
	return d
}

// AddDefinition builds and adds an entry from its declaration.
func (r *Registry) AddDefinition(d Definition) (string, error) {
	addr, spec, err := d.Build()
	if err != nil {
		return "", err
	}
	return r.add(d.Name, addr, spec, d.Value)
}
