package shm

import "fmt"

// AddressSpec locates a value inside a bank. Register is in bank units
// (coils/inputs for DO/DI, 16 bit registers for AO/AI). Bit selects a bit of
// a bool value. HighByte selects the second byte of an AO/AI register for
// 1 byte integers.
type AddressSpec struct {
	Bank     Bank `json:"bank" yaml:"bank"`
	Register int  `json:"register" yaml:"register"`
	Bit      int  `json:"bit,omitempty" yaml:"bit,omitempty"`
	HighByte bool `json:"high_byte,omitempty" yaml:"high_byte,omitempty"`
}

// Validate checks that units bank units starting at register fit into the bank.
func Validate(bank Bank, register, units int, capacity Capacity) error {
	limit := capacity.Of(bank)
	if register < 0 || units < 1 || register+units > limit {
		return &AddressError{Kind: OutOfRange, Bank: bank, Register: register, Width: units, Capacity: limit}
	}
	return nil
}

// Units returns how many bank units a value of size bytes occupies.
func Units(bank Bank, size int) int {
	if bank.Digital() {
		return size
	}
	return (size + 1) / 2
}

// ToByteOffset converts a register index to the byte offset inside the bank's
// shared memory segment.
func ToByteOffset(bank Bank, register int) int {
	return register * bank.RegisterSize()
}

// WithBitAdjustment maps a bit 0-15 of a 16 bit register at byteOffset to
// the physical byte holding it and the bit number inside that byte.
func WithBitAdjustment(byteOffset, bit int, littleEndian bool) (int, int) {
	if bit > 7 {
		bit -= 8
		if littleEndian {
			byteOffset++
		}
	} else if !littleEndian {
		byteOffset++
	}
	return byteOffset, bit
}

// Check validates the address for a value of the given spec.
func (a AddressSpec) Check(spec ValueSpec, capacity Capacity) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if a.Bank.Digital() && spec.Kind() != KindBool {
		return &AddressError{Kind: UnsupportedBank, Bank: a.Bank, Register: a.Register}
	}
	if spec.Kind() == KindBool {
		maxBit := 15
		if a.Bank.Digital() {
			maxBit = 7
		}
		if a.Bit < 0 || a.Bit > maxBit {
			return &AddressError{Kind: InvalidBit, Bank: a.Bank, Register: a.Register, Bit: a.Bit}
		}
	} else if a.Bit != 0 {
		return &AddressError{Kind: InvalidBit, Bank: a.Bank, Register: a.Register, Bit: a.Bit}
	}
	if a.HighByte && (spec.Kind() != KindInt || spec.Size() != 1) {
		return fmt.Errorf("%w: high byte selection requires a 1 byte integer", ErrInvalidValueSpec)
	}
	return Validate(a.Bank, a.Register, Units(a.Bank, spec.Size()), capacity)
}

// Location returns the byte offset and bit that the external tools address
// for this value. The bit is only meaningful for bools.
func (a AddressSpec) Location(spec ValueSpec) (int, int) {
	offset := ToByteOffset(a.Bank, a.Register)
	if b, ok := spec.(BoolSpec); ok {
		if a.Bank.Digital() {
			return offset, a.Bit
		}
		return WithBitAdjustment(offset, a.Bit, b.LittleEndian)
	}
	if a.HighByte {
		offset++
	}
	return offset, 0
}

// AddressName is the informational address, "0x000a" or "0x000a:3" for bools.
func (a AddressSpec) AddressName(spec ValueSpec) string {
	if spec.Kind() == KindBool {
		return fmt.Sprintf("0x%04x:%d", a.Register, a.Bit)
	}
	if a.HighByte {
		return fmt.Sprintf("0x%04x (high)", a.Register)
	}
	return fmt.Sprintf("0x%04x", a.Register)
}
