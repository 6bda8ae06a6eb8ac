package shm

import (
	"fmt"
	"strings"
)

// Bank identifies one of the four shared memory regions a Modbus client maps.
type Bank int

const (
	BankDO Bank = iota
	BankDI
	BankAO
	BankAI
)

// Banks lists all banks in the order the external tools are invoked.
var Banks = []Bank{BankDO, BankDI, BankAO, BankAI}

func (b Bank) String() string {
	switch b {
	case BankDO:
		return "DO"
	case BankDI:
		return "DI"
	case BankAO:
		return "AO"
	case BankAI:
		return "AI"
	default:
		return "UNKNOWN"
	}
}

// ParseBank accepts the bank name in any case.
func ParseBank(s string) (Bank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DO":
		return BankDO, nil
	case "DI":
		return BankDI, nil
	case "AO":
		return BankAO, nil
	case "AI":
		return BankAI, nil
	}
	return 0, fmt.Errorf("unknown register bank %q", s)
}

// Digital reports whether the bank is bit oriented (one byte per coil/input).
func (b Bank) Digital() bool {
	return b == BankDO || b == BankDI
}

// RegisterSize is the number of bytes one addressable unit occupies.
func (b Bank) RegisterSize() int {
	if b.Digital() {
		return 1
	}
	return 2
}

// MarshalText implements encoding.TextMarshaler.
func (b Bank) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bank) UnmarshalText(text []byte) error {
	parsed, err := ParseBank(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Capacity holds the number of addressable units per bank. DO/DI count
// coils/inputs, AO/AI count 16 bit registers.
type Capacity struct {
	DO int
	DI int
	AO int
	AI int
}

// Of returns the capacity of a single bank.
func (c Capacity) Of(b Bank) int {
	switch b {
	case BankDO:
		return c.DO
	case BankDI:
		return c.DI
	case BankAO:
		return c.AO
	case BankAI:
		return c.AI
	default:
		panic(fmt.Sprintf("shm: unexpected bank %d", int(b)))
	}
}

// Bytes returns the size of the bank's shared memory segment.
func (c Capacity) Bytes(b Bank) int {
	return c.Of(b) * b.RegisterSize()
}
