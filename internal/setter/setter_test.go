package setter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/KevinKickass/OpenShmInspector/internal/tools"
	"go.uber.org/zap/zaptest"
)

var testSegments = tools.Segments{
	Prefix:    "modbus_",
	Semaphore: "modbus",
	Capacity:  shm.Capacity{DO: 16, DI: 16, AO: 64, AI: 64},
}

type recordingExecutor struct {
	commands []tools.Command
	stdin    []string
	err      error
}

func (r *recordingExecutor) Run(ctx context.Context, cmd tools.Command) (*tools.Result, error) {
	r.commands = append(r.commands, cmd)
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		r.stdin = append(r.stdin, string(data))
	}
	if r.err != nil {
		return nil, r.err
	}
	return &tools.Result{}, nil
}

func newSetter(t *testing.T, exec tools.Executor) *Setter {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s, err := New(registry.New(testSegments.Capacity, logger), exec, "stdin-to-modbus-shm", testSegments, logger)
	if err != nil {
		t.Fatalf("failed to create setter: %v", err)
	}
	return s
}

func populate(t *testing.T, s *Setter) []string {
	t.Helper()
	var ids []string
	add := func(id string, err error) {
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		ids = append(ids, id)
	}
	add(s.AddInt("speed", shm.AddressSpec{Bank: shm.BankAO, Register: 10}, shm.IntSpec{Width: 2, Signed: true, LittleEndian: true}, "-5"))
	add(s.AddInt("low", shm.AddressSpec{Bank: shm.BankAO, Register: 11}, shm.IntSpec{Width: 1, Display: shm.Hex}, "0x1f"))
	add(s.AddInt("high", shm.AddressSpec{Bank: shm.BankAO, Register: 11, HighByte: true}, shm.IntSpec{Width: 1, Display: shm.Binary}, "3"))
	add(s.AddFloat("ratio", shm.AddressSpec{Bank: shm.BankAI, Register: 0}, shm.FloatSpec{Width: 8, Display: shm.Scientific, ReversedRegisters: true}, "0.25"))
	add(s.AddBool("pump", shm.AddressSpec{Bank: shm.BankDO, Register: 3}, shm.BoolSpec{}, "true"))
	add(s.AddString("tag", shm.AddressSpec{Bank: shm.BankAO, Register: 20}, shm.StringSpec{Length: 8}, "abc"))
	return ids
}

func TestApplyAll(t *testing.T) {
	exec := &recordingExecutor{}
	s := newSetter(t, exec)
	populate(t, s)

	n, err := s.ApplyAll(context.Background())
	if err != nil {
		t.Fatalf("apply all: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 lines, got %d", n)
	}

	want := strings.Join([]string{
		"AO:20:-5:i16l",
		"AO:22:31:u8",
		"AO:23:3:u8",
		"AI:0:0.25:f64br",
		"DO:3:1",
		"AO:40:abc:s8",
	}, "\n") + "\n"
	if exec.stdin[0] != want {
		t.Fatalf("unexpected batch:\n%s\nwant:\n%s", exec.stdin[0], want)
	}
	if args := exec.commands[0].Args; !reflect.DeepEqual(args, []string{"-n", "modbus_", "--semaphore", "modbus"}) {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestApplySingleAndSetValue(t *testing.T) {
	exec := &recordingExecutor{}
	s := newSetter(t, exec)
	ids := populate(t, s)

	if err := s.SetValue(ids[0], "1234"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if err := s.Apply(context.Background(), ids[0]); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if exec.stdin[0] != "AO:20:1234:i16l\n" {
		t.Fatalf("unexpected batch %q", exec.stdin[0])
	}

	if err := s.SetValue(ids[0], "40000"); !errors.Is(err, shm.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if e, _ := s.Registry().Get(ids[0]); e.WriteValue != "1234" {
		t.Fatalf("invalid value was stored: %q", e.WriteValue)
	}
	if err := s.SetValue("int_d_99", "1"); !errors.Is(err, registry.ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
	if err := s.Apply(context.Background(), "int_d_99"); !errors.Is(err, registry.ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
}

func TestAddRejectsUnwritable(t *testing.T) {
	s := newSetter(t, &recordingExecutor{})

	_, err := s.AddBool("bit", shm.AddressSpec{Bank: shm.BankAO, Register: 1, Bit: 3}, shm.BoolSpec{}, "1")
	if !errors.Is(err, shm.ErrNotWritable) {
		t.Fatalf("expected ErrNotWritable, got %v", err)
	}
	_, err = s.AddInt("big", shm.AddressSpec{Bank: shm.BankAO, Register: 0}, shm.IntSpec{Width: 1}, "300")
	if !errors.Is(err, shm.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	_, err = s.AddInt("far", shm.AddressSpec{Bank: shm.BankAO, Register: 63}, shm.IntSpec{Width: 4}, "1")
	if !errors.Is(err, shm.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if s.Registry().Len() != 0 {
		t.Fatalf("rejected entries were added")
	}
}

func TestApplyAllFailures(t *testing.T) {
	exec := &recordingExecutor{err: &tools.ExitError{Tool: "stdin-to-modbus-shm", Code: 1, Stderr: "semaphore locked"}}
	s := newSetter(t, exec)

	if _, err := s.ApplyAll(context.Background()); !errors.Is(err, ErrNothingToApply) {
		t.Fatalf("expected ErrNothingToApply, got %v", err)
	}
	if len(exec.commands) != 0 {
		t.Fatal("injector started for an empty batch")
	}

	populate(t, s)
	_, err := s.ApplyAll(context.Background())
	var exitErr *tools.ExitError
	if !errors.As(err, &exitErr) || exitErr.Stderr != "semaphore locked" {
		t.Fatalf("expected ExitError, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newSetter(t, &recordingExecutor{})
	populate(t, s)

	path := filepath.Join(t.TempDir(), "entries.cfg")
	if err := s.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 || len(lines[0]) != 64 {
		t.Fatalf("unexpected file layout:\n%s", data)
	}
	if !strings.Contains(lines[1], `"prefix":"AO:20:"`) || !strings.Contains(lines[1], `"suffix":":i16l"`) {
		t.Fatalf("unexpected records %s", lines[1])
	}

	other := newSetter(t, &recordingExecutor{})
	if err := other.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	want, _ := s.Lines()
	got, err := other.Lines()
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, e := range other.Registry().Entries() {
		orig := s.Registry().Entries()[i]
		if e.Value != orig.Value || e.Address != orig.Address || e.Name != orig.Name {
			t.Fatalf("entry %d: got %+v, want %+v", i, e, orig)
		}
	}
}

func TestBoolLabelValueSurvivesReload(t *testing.T) {
	s := newSetter(t, &recordingExecutor{})

	id, err := s.AddBool("motor", shm.AddressSpec{Bank: shm.BankDO, Register: 4},
		shm.BoolSpec{TrueLabel: "Running", FalseLabel: "Stopped"}, "Running")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e, _ := s.Registry().Get(id); e.WriteValue != "1" {
		t.Fatalf("expected stored bit 1, got %q", e.WriteValue)
	}
	if err := s.SetValue(id, "Stopped"); err != nil {
		t.Fatalf("set value: %v", err)
	}

	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	other := newSetter(t, &recordingExecutor{})
	if err := other.LoadBytes(buf.Bytes()); err != nil {
		t.Fatalf("load: %v", err)
	}
	lines, err := other.Lines()
	if err != nil || !reflect.DeepEqual(lines, []string{"DO:4:0"}) {
		t.Fatalf("unexpected lines %v (%v)", lines, err)
	}
}

func TestAddRejectsBitOnCoil(t *testing.T) {
	s := newSetter(t, &recordingExecutor{})

	_, err := s.AddBool("coil", shm.AddressSpec{Bank: shm.BankDO, Register: 2, Bit: 5}, shm.BoolSpec{}, "1")
	if !errors.Is(err, shm.ErrInvalidBit) {
		t.Fatalf("expected ErrInvalidBit, got %v", err)
	}
	if s.Registry().Len() != 0 {
		t.Fatal("rejected entry was added")
	}
}

func TestLoadHashMismatchLeavesEntries(t *testing.T) {
	s := newSetter(t, &recordingExecutor{})
	populate(t, s)
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	data := buf.Bytes()

	target := newSetter(t, &recordingExecutor{})
	keepID, err := target.AddBool("keep", shm.AddressSpec{Bank: shm.BankDI, Register: 0}, shm.BoolSpec{}, "0")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// flip one byte of the JSON payload
	idx := bytes.IndexByte(data, '\n') + 10
	tampered := append([]byte(nil), data...)
	tampered[idx] ^= 0x01

	if err := target.LoadBytes(tampered); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	entries := target.Registry().Entries()
	if len(entries) != 1 || entries[0].ID != keepID {
		t.Fatalf("registry changed by rejected load: %+v", entries)
	}
}

func TestLoadMalformed(t *testing.T) {
	s := newSetter(t, &recordingExecutor{})

	withDigest := func(payload string) []byte {
		return []byte(sha256Hex([]byte(payload)) + "\n" + payload + "\n")
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"single line", []byte("abc")},
		{"bad digest", []byte("xyz\n[]\n")},
		{"not an array", withDigest(`{"name":"x"}`)},
		{"missing field", withDigest(`[{"name":"x","prefix":"AO:0:","value":"1","suffix":":u16b","register":"AO","addr":"0x0000","size":"2","endian_str":"big","value_type":1}]`)},
		{"prefix mismatch", withDigest(`[{"name":"x","prefix":"AO:4:","value":"1","suffix":":u16b","register":"AO","addr":"0x0000","size":"2","endian_str":"big","value_type":1,"type_str":"uint"}]`)},
		{"kind mismatch", withDigest(`[{"name":"x","prefix":"AO:0:","value":"1","suffix":":u16b","register":"AO","addr":"0x0000","size":"2","endian_str":"big","value_type":2,"type_str":"float"}]`)},
		{"invalid value", withDigest(`[{"name":"x","prefix":"AO:0:","value":"70000","suffix":":u16b","register":"AO","addr":"0x0000","size":"2","endian_str":"big","value_type":1,"type_str":"uint"}]`)},
		{"out of range", withDigest(`[{"name":"x","prefix":"AO:200:","value":"1","suffix":":u16b","register":"AO","addr":"0x0064","size":"2","endian_str":"big","value_type":1,"type_str":"uint"}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.LoadBytes(tt.data); !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}

	valid := withDigest(`[{"name":"x","prefix":"AO:0:","value":"1","suffix":":u16b","register":"AO","addr":"0x0000","size":"2","endian_str":"big","value_type":1,"type_str":"uint (hex)"}]`)
	if err := s.LoadBytes(valid); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	e := s.Registry().Entries()[0]
	if spec, ok := e.Value.(shm.IntSpec); !ok || spec.Display != shm.Hex || spec.Width != 2 {
		t.Fatalf("unexpected spec %#v", e.Value)
	}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
