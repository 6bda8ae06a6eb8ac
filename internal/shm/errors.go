package shm

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange      = errors.New("address out of range")
	ErrInvalidBit      = errors.New("invalid bit")
	ErrUnsupportedBank = errors.New("value kind not supported on bank")

	ErrUnknownFormatCharacter = errors.New("unknown format character")
	ErrUnknownDataType        = errors.New("unknown data type")
	ErrTypeMismatch           = errors.New("data type does not match value kind")
	ErrLengthMismatch         = errors.New("length mismatch")

	ErrInvalidValueSpec = errors.New("invalid value specification")
	ErrInvalidDirective = errors.New("invalid directive")
	ErrInvalidValue     = errors.New("invalid value")
	ErrNotWritable      = errors.New("value is not writable")
)

// AddressErrorKind classifies address validation failures.
type AddressErrorKind int

const (
	OutOfRange AddressErrorKind = iota
	InvalidBit
	UnsupportedBank
)

// AddressError is returned when an address does not fit its bank.
type AddressError struct {
	Kind     AddressErrorKind
	Bank     Bank
	Register int
	Width    int
	Capacity int
	Bit      int
}

func (e *AddressError) Error() string {
	switch e.Kind {
	case InvalidBit:
		return fmt.Sprintf("%s register %d: bit %d is invalid", e.Bank, e.Register, e.Bit)
	case UnsupportedBank:
		return fmt.Sprintf("%s register %d: value kind not supported on this bank", e.Bank, e.Register)
	default:
		return fmt.Sprintf("%s register %d (+%d) exceeds bank capacity %d", e.Bank, e.Register, e.Width, e.Capacity)
	}
}

func (e *AddressError) Unwrap() error {
	switch e.Kind {
	case InvalidBit:
		return ErrInvalidBit
	case UnsupportedBank:
		return ErrUnsupportedBank
	default:
		return ErrOutOfRange
	}
}

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind int

const (
	UnknownFormatCharacter DecodeErrorKind = iota
	UnknownDataType
	TypeMismatch
	LengthMismatch
)

// DecodeError is returned when a raw buffer or a tool result cannot be rendered.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Unwrap(), e.Detail)
}

func (e *DecodeError) Unwrap() error {
	switch e.Kind {
	case UnknownFormatCharacter:
		return ErrUnknownFormatCharacter
	case UnknownDataType:
		return ErrUnknownDataType
	case TypeMismatch:
		return ErrTypeMismatch
	default:
		return ErrLengthMismatch
	}
}

func decodeErr(kind DecodeErrorKind, format string, args ...any) error {
	return &DecodeError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
