package setter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/KevinKickass/OpenShmInspector/internal/tools"
	"go.uber.org/zap"
)

var (
	ErrHashMismatch    = errors.New("entry configuration digest mismatch")
	ErrMalformedRecord = errors.New("malformed entry configuration record")
	ErrNothingToApply  = errors.New("no entries to apply")
)

// Setter holds values to write and injects them through stdin-to-modbus-shm.
type Setter struct {
	registry  *registry.Registry
	exec      tools.Executor
	injector  string
	segments  tools.Segments
	validator *Validator

	applyMu sync.Mutex
	logger  *zap.Logger
}

func New(reg *registry.Registry, exec tools.Executor, injector string, segments tools.Segments, logger *zap.Logger) (*Setter, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	return &Setter{
		registry:  reg,
		exec:      exec,
		injector:  injector,
		segments:  segments,
		validator: validator,
		logger:    logger.With(zap.String("component", "setter")),
	}, nil
}

// Registry returns the entries to write.
func (s *Setter) Registry() *registry.Registry {
	return s.registry
}

// AddInt adds an integer on AO or AI, including the high or low byte of a
// register for 1 byte integers.
func (s *Setter) AddInt(name string, addr shm.AddressSpec, spec shm.IntSpec, value string) (string, error) {
	return s.add(name, addr, spec, value)
}

// AddFloat adds a float or double on AO or AI.
func (s *Setter) AddFloat(name string, addr shm.AddressSpec, spec shm.FloatSpec, value string) (string, error) {
	return s.add(name, addr, spec, value)
}

// AddBool adds a coil or discrete input.
func (s *Setter) AddBool(name string, addr shm.AddressSpec, spec shm.BoolSpec, value string) (string, error) {
	return s.add(name, addr, spec, value)
}

// AddString adds a character array on AO or AI.
func (s *Setter) AddString(name string, addr shm.AddressSpec, spec shm.StringSpec, value string) (string, error) {
	return s.add(name, addr, spec, value)
}

// AddDefinition adds an entry from its declaration.
func (s *Setter) AddDefinition(d registry.Definition) (string, error) {
	addr, spec, err := d.Build()
	if err != nil {
		return "", err
	}
	return s.add(d.Name, addr, spec, d.Value)
}

func (s *Setter) add(name string, addr shm.AddressSpec, spec shm.ValueSpec, value string) (string, error) {
	if err := addr.Check(spec, s.registry.Capacity()); err != nil {
		return "", err
	}
	if _, err := shm.WriteLine(addr, spec, value); err != nil {
		return "", err
	}
	// bool labels are not persisted, keep the bit
	value, _ = shm.NormalizeWriteValue(spec, value)
	id, err := s.registry.AddWithValue(name, addr, spec, value)
	if err != nil {
		return "", err
	}

	s.logger.Info("Entry added", zap.String("id", id), zap.String("name", name))
	return id, nil
}

// SetValue replaces the value of an entry after checking it against the
// entry's type.
func (s *Setter) SetValue(id, value string) error {
	entry, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownIdentifier, id)
	}
	if _, err := shm.WriteLine(entry.Address, entry.Value, value); err != nil {
		return err
	}
	value, _ = shm.NormalizeWriteValue(entry.Value, value)
	return s.registry.ApplyWrite(id, value)
}

// Remove deletes an entry.
func (s *Setter) Remove(id string) error {
	return s.registry.Remove(id)
}

// Lines renders the write lines of all entries in registry order.
func (s *Setter) Lines() ([]string, error) {
	entries := s.registry.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line, err := shm.WriteLine(e.Address, e.Value, e.WriteValue)
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", e.ID, e.Name, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Apply writes the value of a single entry.
func (s *Setter) Apply(ctx context.Context, id string) error {
	entry, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownIdentifier, id)
	}
	line, err := shm.WriteLine(entry.Address, entry.Value, entry.WriteValue)
	if err != nil {
		return err
	}
	return s.inject(ctx, []string{line})
}

// ApplyAll writes the values of all entries in one batch and returns the
// number of lines written.
func (s *Setter) ApplyAll(ctx context.Context) (int, error) {
	lines, err := s.Lines()
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, ErrNothingToApply
	}
	if err := s.inject(ctx, lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}

func (s *Setter) inject(ctx context.Context, lines []string) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	args := []string{"-n", s.segments.Prefix}
	if s.segments.Semaphore != "" {
		args = append(args, "--semaphore", s.segments.Semaphore)
	}
	cmd := tools.Command{
		Name:  s.injector,
		Args:  args,
		Stdin: strings.NewReader(strings.Join(lines, "\n") + "\n"),
	}
	if _, err := s.exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to write values: %w", err)
	}

	s.logger.Info("Values written", zap.Int("lines", len(lines)))
	return nil
}
