package setter

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap"
)

// Record is one entry of a persisted configuration. The file holds two
// lines: the hex SHA-256 digest of the second line, and the JSON array of
// records.
type Record struct {
	Name      string `json:"name"`
	Prefix    string `json:"prefix"`
	Value     string `json:"value"`
	Suffix    string `json:"suffix"`
	Register  string `json:"register"`
	Addr      string `json:"addr"`
	Size      string `json:"size"`
	EndianStr string `json:"endian_str"`
	ValueType int    `json:"value_type"`
	TypeStr   string `json:"type_str"`
}

func recordOf(e registry.Entry) Record {
	prefix, suffix := shm.WriteAffixes(e.Address, e.Value)
	return Record{
		Name:      e.Name,
		Prefix:    prefix,
		Value:     e.WriteValue,
		Suffix:    suffix,
		Register:  e.Address.Bank.String(),
		Addr:      e.Address.AddressName(e.Value),
		Size:      shm.SizeName(e.Value),
		EndianStr: shm.EndianName(e.Value),
		ValueType: int(e.Value.Kind()),
		TypeStr:   shm.TypeName(e.Value),
	}
}

// definition rebuilds an entry declaration and checks that the stored
// prefix and suffix agree with it.
func (r Record) definition() (registry.Definition, error) {
	bank, err := shm.ParseBank(r.Register)
	if err != nil {
		return registry.Definition{}, err
	}

	addrStr, highByte := strings.CutSuffix(r.Addr, " (high)")
	regStr, bitStr, hasBit := strings.Cut(addrStr, ":")
	register, err := strconv.ParseUint(strings.TrimPrefix(regStr, "0x"), 16, 32)
	if err != nil {
		return registry.Definition{}, fmt.Errorf("address %q", r.Addr)
	}
	addr := shm.AddressSpec{Bank: bank, Register: int(register), HighByte: highByte}
	if hasBit {
		bit, err := strconv.Atoi(bitStr)
		if err != nil {
			return registry.Definition{}, fmt.Errorf("bit in address %q", r.Addr)
		}
		addr.Bit = bit
	}

	var spec shm.ValueSpec
	switch shm.Kind(r.ValueType) {
	case shm.KindBool:
		spec = shm.BoolSpec{}
	case shm.KindInt, shm.KindFloat, shm.KindString:
		spec, err = shm.ParseTypeToken(strings.TrimPrefix(r.Suffix, ":"))
		if err != nil {
			return registry.Definition{}, err
		}
		if spec.Kind() != shm.Kind(r.ValueType) {
			return registry.Definition{}, fmt.Errorf("suffix %q does not match value type %d", r.Suffix, r.ValueType)
		}
		spec = withDisplay(spec, r.TypeStr)
	default:
		return registry.Definition{}, fmt.Errorf("value type %d", r.ValueType)
	}

	if prefix, suffix := shm.WriteAffixes(addr, spec); prefix != r.Prefix || suffix != r.Suffix {
		return registry.Definition{}, fmt.Errorf("prefix %q and suffix %q do not match address %s %s", r.Prefix, r.Suffix, r.Register, r.Addr)
	}
	return registry.DefinitionOf(registry.Entry{Name: r.Name, Address: addr, Value: spec, WriteValue: r.Value}), nil
}

func withDisplay(spec shm.ValueSpec, typeStr string) shm.ValueSpec {
	switch s := spec.(type) {
	case shm.IntSpec:
		switch {
		case strings.HasSuffix(typeStr, "(hex)"):
			s.Display = shm.Hex
		case strings.HasSuffix(typeStr, "(oct)"):
			s.Display = shm.Octal
		case strings.HasSuffix(typeStr, "(bin)"):
			s.Display = shm.Binary
		}
		return s
	case shm.FloatSpec:
		if strings.HasSuffix(typeStr, "(scientific)") {
			s.Display = shm.Scientific
		}
		return s
	default:
		return spec
	}
}

// Encode writes the persisted configuration of all entries.
func (s *Setter) Encode(w io.Writer) error {
	entries := s.registry.Entries()
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, recordOf(e))
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}
	digest := sha256.Sum256(payload)

	var buf bytes.Buffer
	buf.WriteString(hex.EncodeToString(digest[:]))
	buf.WriteByte('\n')
	buf.Write(payload)
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

// Decode checks the digest and schema of a persisted configuration and
// returns its entry declarations.
func (s *Setter) Decode(data []byte) ([]registry.Definition, error) {
	digestLine, payload, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		return nil, fmt.Errorf("%w: expected two lines", ErrMalformedRecord)
	}
	payload = bytes.TrimSuffix(payload, []byte("\n"))
	payload = bytes.TrimSuffix(payload, []byte("\r"))
	digestLine = bytes.TrimSuffix(digestLine, []byte("\r"))

	want, err := hex.DecodeString(strings.TrimSpace(string(digestLine)))
	if err != nil || len(want) != sha256.Size {
		return nil, fmt.Errorf("%w: invalid digest line", ErrMalformedRecord)
	}
	got := sha256.Sum256(payload)
	if !bytes.Equal(got[:], want) {
		return nil, ErrHashMismatch
	}

	if err := s.validator.ValidateRecords(payload); err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	defs := make([]registry.Definition, 0, len(records))
	for i, r := range records {
		def, err := r.definition()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d (%s): %v", ErrMalformedRecord, i, r.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Save writes the persisted configuration to a file.
func (s *Setter) Save(path string) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write entry configuration: %w", err)
	}

	s.logger.Info("Entry configuration saved", zap.String("file", path), zap.Int("entries", s.registry.Len()))
	return nil
}

// Load replaces all entries with those of a persisted configuration. On any
// error the current entries stay untouched.
func (s *Setter) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read entry configuration: %w", err)
	}
	return s.LoadBytes(data)
}

// LoadBytes is Load for an in-memory configuration.
func (s *Setter) LoadBytes(data []byte) error {
	defs, err := s.Decode(data)
	if err != nil {
		s.logger.Warn("Rejected entry configuration", zap.Error(err))
		return err
	}
	for i, d := range defs {
		addr, spec, err := d.Build()
		if err == nil {
			_, err = shm.WriteLine(addr, spec, d.Value)
		}
		if err != nil {
			return fmt.Errorf("%w: record %d (%s): %v", ErrMalformedRecord, i, d.Name, err)
		}
	}
	if err := s.registry.ReplaceAll(defs); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	s.logger.Info("Entry configuration loaded", zap.Int("entries", len(defs)))
	return nil
}
