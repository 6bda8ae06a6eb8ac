package registry

import (
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/shm"
)

// Info is the presentation of an entry as shown in the entry tables.
type Info struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Register   string     `json:"register"`
	Address    string     `json:"address"`
	Size       string     `json:"size"`
	Type       string     `json:"type"`
	Endian     string     `json:"endian"`
	Directive  string     `json:"directive"`
	Value      string     `json:"value,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	WriteValue string     `json:"write_value,omitempty"`
}

// Info renders the informational columns of the entry.
func (e Entry) Info() Info {
	info := Info{
		ID:         e.ID,
		Name:       e.Name,
		Register:   e.Address.Bank.String(),
		Address:    e.Address.AddressName(e.Value),
		Size:       shm.SizeName(e.Value),
		Type:       shm.TypeName(e.Value),
		Endian:     shm.EndianName(e.Value),
		Directive:  e.Directive,
		WriteValue: e.WriteValue,
	}
	if e.Decoded() {
		ts := e.UpdatedAt
		info.Value = e.LastValue
		info.UpdatedAt = &ts
	}
	return info
}

// Infos renders a list of entries.
func Infos(entries []Entry) []Info {
	result := make([]Info, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.Info())
	}
	return result
}
