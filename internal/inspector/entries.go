package inspector

import (
	"fmt"
	"os"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AddInt adds an integer entry on AO or AI.
func (i *Inspector) AddInt(name string, addr shm.AddressSpec, spec shm.IntSpec) (string, error) {
	return i.add(name, addr, spec)
}

// AddFloat adds a float or double entry on AO or AI.
func (i *Inspector) AddFloat(name string, addr shm.AddressSpec, spec shm.FloatSpec) (string, error) {
	return i.add(name, addr, spec)
}

// AddBool adds a coil, an input or a bit of an AO/AI register.
func (i *Inspector) AddBool(name string, addr shm.AddressSpec, spec shm.BoolSpec) (string, error) {
	return i.add(name, addr, spec)
}

// AddString adds a character array on AO or AI.
func (i *Inspector) AddString(name string, addr shm.AddressSpec, spec shm.StringSpec) (string, error) {
	return i.add(name, addr, spec)
}

// AddDefinition adds an entry from its declaration. The value field is ignored.
func (i *Inspector) AddDefinition(d registry.Definition) (string, error) {
	addr, spec, err := d.Build()
	if err != nil {
		return "", err
	}
	return i.add(d.Name, addr, spec)
}

func (i *Inspector) add(name string, addr shm.AddressSpec, spec shm.ValueSpec) (string, error) {
	id, err := i.registry.Add(name, addr, spec)
	if err != nil {
		return "", err
	}
	i.logger.Info("Entry added",
		zap.String("id", id),
		zap.String("name", name),
		zap.Stringer("bank", addr.Bank))
	return id, nil
}

// Remove deletes an entry. Results still in flight for it are dropped.
func (i *Inspector) Remove(id string) error {
	return i.registry.Remove(id)
}

// Preset is the YAML document holding a set of inspected entries.
type Preset struct {
	Entries []registry.Definition `yaml:"entries"`
}

// LoadPreset replaces all entries with those of a YAML preset file.
func (i *Inspector) LoadPreset(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read preset: %w", err)
	}
	var preset Preset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return fmt.Errorf("failed to parse preset: %w", err)
	}
	if err := i.registry.ReplaceAll(preset.Entries); err != nil {
		return fmt.Errorf("invalid preset %s: %w", path, err)
	}

	i.logger.Info("Preset loaded", zap.String("file", path), zap.Int("entries", len(preset.Entries)))
	return nil
}

// SavePreset writes all entries to a YAML preset file.
func (i *Inspector) SavePreset(path string) error {
	entries := i.registry.Entries()
	preset := Preset{Entries: make([]registry.Definition, 0, len(entries))}
	for _, e := range entries {
		preset.Entries = append(preset.Entries, registry.DefinitionOf(e))
	}

	data, err := yaml.Marshal(&preset)
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	return nil
}
