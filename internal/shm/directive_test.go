package shm

import (
	"errors"
	"testing"
)

func TestDirectiveString(t *testing.T) {
	tests := []struct {
		name string
		addr AddressSpec
		spec ValueSpec
		seq  uint64
		want string
	}{
		{
			name: "signed int16 little",
			addr: AddressSpec{Bank: BankAO, Register: 10},
			spec: IntSpec{Width: 2, Signed: true, LittleEndian: true},
			seq:  1,
			want: "20,i16l,int_d_1",
		},
		{
			name: "bool high bit little",
			addr: AddressSpec{Bank: BankAO, Register: 10, Bit: 9},
			spec: BoolSpec{LittleEndian: true},
			seq:  2,
			want: "21:1,b,bool_X_2",
		},
		{
			name: "bool on coil",
			addr: AddressSpec{Bank: BankDO, Register: 5},
			spec: BoolSpec{},
			seq:  3,
			want: "5:0,b,bool_X_3",
		},
		{
			name: "double reversed scientific",
			addr: AddressSpec{Bank: BankAI, Register: 0},
			spec: FloatSpec{Width: 8, Display: Scientific, LittleEndian: true, ReversedRegisters: true},
			seq:  4,
			want: "0,f64lr,float_e_4",
		},
		{
			name: "string",
			addr: AddressSpec{Bank: BankAI, Register: 5},
			spec: StringSpec{Length: 12},
			seq:  5,
			want: "10,s12,string_s_5",
		},
		{
			name: "uint8 high byte hex",
			addr: AddressSpec{Bank: BankAO, Register: 3, HighByte: true},
			spec: IntSpec{Width: 1, Display: Hex, LittleEndian: true, ReversedRegisters: true},
			seq:  6,
			want: "7,u8,int_x_6",
		},
		{
			name: "uint16 ignores reversed flag",
			addr: AddressSpec{Bank: BankAO, Register: 0},
			spec: IntSpec{Width: 2, Display: Binary, ReversedRegisters: true},
			seq:  7,
			want: "0,u16b,int_b_7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDirective(tt.addr, tt.spec, NewIdentifier(tt.spec, tt.seq)).String()
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDirectiveRoundTrip(t *testing.T) {
	var specs []ValueSpec
	for _, width := range []int{1, 2, 4, 8} {
		for _, display := range []IntDisplay{Decimal, Hex, Octal, Binary} {
			for _, flags := range []int{0, 1, 2, 3} {
				for _, signed := range []bool{false, true} {
					specs = append(specs, IntSpec{
						Width:             width,
						Signed:            signed,
						Display:           display,
						LittleEndian:      flags&1 != 0,
						ReversedRegisters: flags&2 != 0,
					})
				}
			}
		}
	}
	for _, width := range []int{4, 8} {
		for _, display := range []FloatDisplay{Fixed, Scientific} {
			for _, flags := range []int{0, 1, 2, 3} {
				specs = append(specs, FloatSpec{
					Width:             width,
					Display:           display,
					LittleEndian:      flags&1 != 0,
					ReversedRegisters: flags&2 != 0,
				})
			}
		}
	}
	specs = append(specs, StringSpec{Length: 1}, StringSpec{Length: 250}, BoolSpec{})

	for i, spec := range specs {
		line := NewDirective(AddressSpec{Bank: BankAO, Register: 4}, spec, NewIdentifier(spec, uint64(i))).String()
		parsed, err := ParseDirective(line)
		if err != nil {
			t.Fatalf("%q: %v", line, err)
		}
		if parsed.Spec != Normalize(spec) {
			t.Fatalf("%q: got %#v, want %#v", line, parsed.Spec, Normalize(spec))
		}
		if parsed.String() != line {
			t.Fatalf("re-encoded %q as %q", line, parsed.String())
		}
	}
}

func TestParseDirectiveErrors(t *testing.T) {
	tests := []struct {
		line    string
		wantErr error
	}{
		{"20,i16l", ErrInvalidDirective},
		{"x,i16l,int_d_1", ErrInvalidDirective},
		{"20,i16,int_d_1", ErrInvalidDirective},
		{"20,u8l,int_u_1", ErrInvalidDirective},
		{"20,i16lr,int_d_1", ErrInvalidDirective},
		{"20,i24l,int_d_1", ErrInvalidDirective},
		{"20,q16l,int_d_1", ErrInvalidDirective},
		{"20,b,bool_X_1", ErrInvalidDirective},
		{"20:9,b,bool_X_1", ErrInvalidDirective},
		{"20:1,u8,int_u_1", ErrInvalidDirective},
		{"20,f32l,int_d_1", ErrInvalidDirective},
		{"20,i16l,int_q_1", ErrUnknownFormatCharacter},
		{"20,f32l,float_x_1", ErrUnknownFormatCharacter},
	}

	for _, tt := range tests {
		if _, err := ParseDirective(tt.line); !errors.Is(err, tt.wantErr) {
			t.Errorf("%q: expected %v, got %v", tt.line, tt.wantErr, err)
		}
	}
}

func TestParseIdentifier(t *testing.T) {
	id, err := ParseIdentifier("float_e_42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Kind != KindFloat || id.Format != 'e' || id.Seq != 42 {
		t.Fatalf("unexpected identifier %+v", id)
	}
	if d, _ := id.FloatDisplay(); d != Scientific {
		t.Fatalf("expected scientific display, got %v", d)
	}

	for _, token := range []string{"", "int", "int_d", "int_dd_1", "long_d_1", "int_d_x"} {
		if _, err := ParseIdentifier(token); err == nil {
			t.Errorf("%q: expected error", token)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		spec ValueSpec
		want ValueSpec
	}{
		{IntSpec{Width: 1, LittleEndian: true, ReversedRegisters: true}, IntSpec{Width: 1}},
		{IntSpec{Width: 2, LittleEndian: true, ReversedRegisters: true}, IntSpec{Width: 2, LittleEndian: true}},
		{IntSpec{Width: 4, LittleEndian: true, ReversedRegisters: true}, IntSpec{Width: 4, LittleEndian: true, ReversedRegisters: true}},
		{FloatSpec{Width: 4, LittleEndian: true, ReversedRegisters: true}, FloatSpec{Width: 4, LittleEndian: true, ReversedRegisters: true}},
		{FloatSpec{Width: 8, ReversedRegisters: true}, FloatSpec{Width: 8, ReversedRegisters: true}},
		{BoolSpec{TrueLabel: "on"}, BoolSpec{TrueLabel: "on"}},
	}
	for _, tt := range tests {
		if got := Normalize(tt.spec); got != tt.want {
			t.Errorf("Normalize(%#v) = %#v, want %#v", tt.spec, got, tt.want)
		}
	}
}
