package shm

import (
	"encoding/json"
	"fmt"
	"io"
)

// FormatOutput is the JSON document printed by shm-format.
type FormatOutput struct {
	Time    json.Number         `json:"time"`
	ShmData map[string]BankData `json:"shm_data"`
}

// BankData holds the results for one shared memory segment.
type BankData struct {
	Data []ResultItem `json:"data"`
}

// ResultItem is one decoded value. Data is a json.Number, bool or string.
type ResultItem struct {
	Name   string `json:"name"`
	Data   any    `json:"data"`
	Type   string `json:"type"`
	Endian string `json:"endian,omitempty"`
}

// ParseFormatOutput reads a shm-format result. Numbers are kept as
// json.Number so 64 bit integers survive.
func ParseFormatOutput(r io.Reader) (*FormatOutput, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out FormatOutput
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse shm-format output: %w", err)
	}
	return &out, nil
}

// Items returns the results for the given shared memory name.
func (o *FormatOutput) Items(shmName string) ([]ResultItem, bool) {
	bank, ok := o.ShmData[shmName]
	if !ok {
		return nil, false
	}
	return bank.Data, true
}
