package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap"
)

var ErrUnknownIdentifier = errors.New("unknown identifier")

// Entry is one declared value. Address and Value never change after creation.
type Entry struct {
	ID        string
	Name      string
	Address   shm.AddressSpec
	Value     shm.ValueSpec
	Directive string

	// LastValue and UpdatedAt are set by refresh cycles.
	LastValue string
	UpdatedAt time.Time

	// WriteValue is the value the setter writes.
	WriteValue string
}

// Decoded reports whether a refresh has rendered a value yet.
func (e Entry) Decoded() bool {
	return !e.UpdatedAt.IsZero()
}

// Registry owns all entries of one inspector or setter. Identifiers are
// assigned from a counter that is never reset, so a deleted identifier is
// never handed out again.
type Registry struct {
	capacity shm.Capacity
	seq      uint64
	order    []string
	entries  map[string]*Entry
	mu       sync.RWMutex
	logger   *zap.Logger
}

func New(capacity shm.Capacity, logger *zap.Logger) *Registry {
	return &Registry{
		capacity: capacity,
		entries:  make(map[string]*Entry),
		logger:   logger,
	}
}

// Capacity returns the bank sizes entries are validated against.
func (r *Registry) Capacity() shm.Capacity {
	return r.capacity
}

// Add validates the address and inserts a new entry.
func (r *Registry) Add(name string, addr shm.AddressSpec, spec shm.ValueSpec) (string, error) {
	return r.add(name, addr, spec, "")
}

// AddWithValue inserts a new entry that carries a value to write.
func (r *Registry) AddWithValue(name string, addr shm.AddressSpec, spec shm.ValueSpec, value string) (string, error) {
	return r.add(name, addr, spec, value)
}

func (r *Registry) add(name string, addr shm.AddressSpec, spec shm.ValueSpec, value string) (string, error) {
	if err := addr.Check(spec, r.capacity); err != nil {
		return "", err
	}
	spec = shm.Normalize(spec)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.newEntry(name, addr, spec, value)
	r.entries[entry.ID] = entry
	r.order = append(r.order, entry.ID)

	r.logger.Debug("Entry added",
		zap.String("id", entry.ID),
		zap.String("name", name),
		zap.Stringer("bank", addr.Bank),
		zap.String("directive", entry.Directive))

	return entry.ID, nil
}

// newEntry must be called with r.mu held.
func (r *Registry) newEntry(name string, addr shm.AddressSpec, spec shm.ValueSpec, value string) *Entry {
	r.seq++
	id := shm.NewIdentifier(spec, r.seq)
	return &Entry{
		ID:         id,
		Name:       name,
		Address:    addr,
		Value:      spec,
		Directive:  shm.NewDirective(addr, spec, id).String(),
		WriteValue: value,
	}
}

// Remove deletes an entry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentifier, id)
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Debug("Entry removed", zap.String("id", id))
	return nil
}

// Get returns a copy of an entry.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Entries returns copies of all entries in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.entries[id])
	}
	return result
}

// EntriesForBank returns copies of the entries of one bank in insertion order.
func (r *Registry) EntriesForBank(bank shm.Bank) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Entry
	for _, id := range r.order {
		if e := r.entries[id]; e.Address.Bank == bank {
			result = append(result, *e)
		}
	}
	return result
}

// DirectivesForBank returns one directive line per entry of the bank. The
// result is empty when the bank has no entries.
func (r *Registry) DirectivesForBank(bank shm.Bank) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lines []string
	for _, id := range r.order {
		if e := r.entries[id]; e.Address.Bank == bank {
			lines = append(lines, e.Directive)
		}
	}
	return lines
}

// ApplyDecoded stores a rendered value. Results for identifiers that are not
// live in the given bank are rejected.
func (r *Registry) ApplyDecoded(bank shm.Bank, id, display string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.Address.Bank != bank {
		return fmt.Errorf("%w: %s in %s", ErrUnknownIdentifier, id, bank)
	}
	entry.LastValue = display
	entry.UpdatedAt = ts
	return nil
}

// ApplyWrite replaces the value the setter writes for an entry. The caller
// validates the value.
func (r *Registry) ApplyWrite(id, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentifier, id)
	}
	entry.WriteValue = value
	return nil
}

// ReplaceAll swaps the whole content for the given definitions. Either all
// definitions are valid and replace the current entries, or nothing changes.
func (r *Registry) ReplaceAll(defs []Definition) error {
	type built struct {
		def  Definition
		addr shm.AddressSpec
		spec shm.ValueSpec
	}
	items := make([]built, 0, len(defs))
	for i, def := range defs {
		addr, spec, err := def.Build()
		if err == nil {
			err = addr.Check(spec, r.capacity)
		}
		if err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, def.Name, err)
		}
		items = append(items, built{def: def, addr: addr, spec: spec})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry, len(items))
	r.order = make([]string, 0, len(items))
	for _, item := range items {
		entry := r.newEntry(item.def.Name, item.addr, item.spec, item.def.Value)
		r.entries[entry.ID] = entry
		r.order = append(r.order, entry.ID)
	}

	r.logger.Info("Entries replaced", zap.Int("count", len(items)))
	return nil
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
