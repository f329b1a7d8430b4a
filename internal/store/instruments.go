package store

import (
	"os"

	"gopkg.in/yaml.v3"
)

// InstrumentMeta holds per-symbol exchange contract metadata that rarely
// changes and is more naturally expressed as a static file than an
// environment variable.
type InstrumentMeta struct {
	TickSize    float64 `yaml:"tick_size"`
	StepSize    float64 `yaml:"step_size"`
	MinNotional float64 `yaml:"min_notional"`
}

// Instruments maps a symbol string to its contract metadata.
type Instruments map[string]InstrumentMeta

// LoadInstruments reads an optional instruments.yaml sidecar. A missing file
// is not an error; callers get an empty map and fall back to exchange
// defaults.
func LoadInstruments(path string) (Instruments, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Instruments{}, nil
		}
		return nil, err
	}
	var inst Instruments
	if err := yaml.Unmarshal(b, &inst); err != nil {
		return nil, err
	}
	if inst == nil {
		inst = Instruments{}
	}
	return inst, nil
}
