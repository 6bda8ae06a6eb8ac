package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap/zaptest"
)

var testCapacity = shm.Capacity{DO: 8, DI: 8, AO: 32, AI: 32}

func TestAddAssignsMonotonicIdentifiers(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))

	first, err := r.Add("speed", shm.AddressSpec{Bank: shm.BankAO, Register: 0}, shm.IntSpec{Width: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Add("flag", shm.AddressSpec{Bank: shm.BankDO, Register: 1}, shm.BoolSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "int_u_1" || second != "bool_X_2" {
		t.Fatalf("unexpected identifiers %q, %q", first, second)
	}

	if err := r.Remove(second); err != nil {
		t.Fatalf("remove: %v", err)
	}
	third, err := r.Add("flag", shm.AddressSpec{Bank: shm.BankDO, Register: 1}, shm.BoolSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third != "bool_X_3" {
		t.Fatalf("identifier reused: %q", third)
	}
}

func TestAddRejectsInvalidAddress(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))

	_, err := r.Add("too far", shm.AddressSpec{Bank: shm.BankAO, Register: 30}, shm.IntSpec{Width: 8})
	if !errors.Is(err, shm.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("registry not empty after failed add")
	}
}

func TestDirectivesForBank(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))

	mustAdd(t, r, "a", shm.AddressSpec{Bank: shm.BankAO, Register: 1}, shm.IntSpec{Width: 2, Signed: true, LittleEndian: true})
	mustAdd(t, r, "b", shm.AddressSpec{Bank: shm.BankAI, Register: 1}, shm.FloatSpec{Width: 4})
	mustAdd(t, r, "c", shm.AddressSpec{Bank: shm.BankAO, Register: 4}, shm.StringSpec{Length: 4})

	got := r.DirectivesForBank(shm.BankAO)
	want := []string{"2,i16l,int_d_1", "8,s4,string_s_3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if lines := r.DirectivesForBank(shm.BankDI); len(lines) != 0 {
		t.Fatalf("expected no DI directives, got %v", lines)
	}
}

func TestRemoveThenApplyDecoded(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))
	id := mustAdd(t, r, "level", shm.AddressSpec{Bank: shm.BankAI, Register: 2}, shm.IntSpec{Width: 2})

	if err := r.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if lines := r.DirectivesForBank(shm.BankAI); len(lines) != 0 {
		t.Fatalf("removed entry still has directives: %v", lines)
	}

	err := r.ApplyDecoded(shm.BankAI, id, "00001", time.Now())
	if !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
	if _, ok := r.Get(id); ok {
		t.Fatal("entry resurrected by ApplyDecoded")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d entries", r.Len())
	}

	if err := r.Remove(id); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier on second remove, got %v", err)
	}
}

func TestApplyDecoded(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))
	id := mustAdd(t, r, "level", shm.AddressSpec{Bank: shm.BankAI, Register: 2}, shm.IntSpec{Width: 2})

	if e, _ := r.Get(id); e.Decoded() {
		t.Fatal("fresh entry reports a decoded value")
	}

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := r.ApplyDecoded(shm.BankAI, id, "00042", ts); err != nil {
		t.Fatalf("apply: %v", err)
	}
	e, _ := r.Get(id)
	if e.LastValue != "00042" || !e.UpdatedAt.Equal(ts) {
		t.Fatalf("unexpected entry state %+v", e)
	}

	if err := r.ApplyDecoded(shm.BankAO, id, "1", ts); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier for wrong bank, got %v", err)
	}
}

func TestApplyWrite(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))
	id, err := r.AddWithValue("setpoint", shm.AddressSpec{Bank: shm.BankAO, Register: 0}, shm.IntSpec{Width: 4}, "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.ApplyWrite(id, "20"); err != nil {
		t.Fatalf("apply write: %v", err)
	}
	if e, _ := r.Get(id); e.WriteValue != "20" {
		t.Fatalf("unexpected write value %q", e.WriteValue)
	}
	if err := r.ApplyWrite("int_u_99", "1"); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
}

func TestReplaceAllIsAtomic(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))
	mustAdd(t, r, "keep", shm.AddressSpec{Bank: shm.BankDO, Register: 0}, shm.BoolSpec{})

	err := r.ReplaceAll([]Definition{
		{Name: "ok", Kind: "int", Bank: shm.BankAO, Register: 0, Width: 2},
		{Name: "bad", Kind: "int", Bank: shm.BankAO, Register: 31, Width: 8},
	})
	if !errors.Is(err, shm.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if entries := r.Entries(); len(entries) != 1 || entries[0].Name != "keep" {
		t.Fatalf("registry changed by failed replace: %+v", entries)
	}

	err = r.ReplaceAll([]Definition{
		{Name: "x", Kind: "float", Bank: shm.BankAI, Register: 4, Width: 8, Display: "sci", LittleEndian: true},
		{Name: "y", Kind: "string", Bank: shm.BankAO, Register: 0, Length: 6, Value: "abc"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "float_e_2" || entries[1].ID != "string_s_3" || entries[1].WriteValue != "abc" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestDefinitionRoundTrip(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))
	defs := []Definition{
		{Name: "b", Kind: "bool", Bank: shm.BankAO, Register: 3, Bit: 12, TrueLabel: "on", FalseLabel: "off", LittleEndian: true},
		{Name: "i", Kind: "int", Bank: shm.BankAI, Register: 1, Width: 4, Signed: true, Display: "hex", Reversed: true},
		{Name: "h", Kind: "int", Bank: shm.BankAO, Register: 7, Width: 1, HighByte: true, Display: "bin"},
		{Name: "f", Kind: "float", Bank: shm.BankAO, Register: 9, Width: 4, Display: "fixed"},
	}
	if err := r.ReplaceAll(defs); err != nil {
		t.Fatalf("replace: %v", err)
	}
	for i, e := range r.Entries() {
		got := DefinitionOf(e)
		if got != defs[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, got, defs[i])
		}
	}
}

func TestInfo(t *testing.T) {
	r := New(testCapacity, zaptest.NewLogger(t))
	id := mustAdd(t, r, "pressure", shm.AddressSpec{Bank: shm.BankAI, Register: 16}, shm.FloatSpec{Width: 4, LittleEndian: true})

	e, _ := r.Get(id)
	info := e.Info()
	if info.Register != "AI" || info.Address != "0x0010" || info.Size != "4" || info.Type != "float" || info.Endian != "little" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.UpdatedAt != nil || info.Value != "" {
		t.Fatalf("undecoded entry has a value: %+v", info)
	}
}

func mustAdd(t *testing.T, r *Registry, name string, addr shm.AddressSpec, spec shm.ValueSpec) string {
	t.Helper()
	id, err := r.Add(name, addr, spec)
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return id
}
