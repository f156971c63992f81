package modelset

import (
	"sync"

	"github.com/geoknoesis/rdf-models/rdf"
)

// Load option keys.
const (
	// OptionDemandLoadImports is a bool: whether closure resolution loads
	// imported models. Defaults to true.
	OptionDemandLoadImports = "demand_load_imports"
	// OptionSaveStrategy is a SaveStrategy used by Model.Save. Defaults to
	// SaveInMemory.
	OptionSaveStrategy = "save_strategy"
	// OptionSaveFormat is an rdf.Format overriding the model's codec on save.
	OptionSaveFormat = "save_format"
)

// Options is the set's load configuration, a concurrency safe key/value map.
type Options struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewOptions creates options holding the defaults.
func NewOptions() *Options {
	return &Options{values: map[string]any{
		OptionDemandLoadImports: true,
		OptionSaveStrategy:      SaveInMemory,
	}}
}

func (o *Options) Set(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[key] = value
}

func (o *Options) Get(key string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[key]
	return v, ok
}

// Bool returns the bool stored at key, or def.
func (o *Options) Bool(key string, def bool) bool {
	if v, ok := o.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// SaveStrategy returns the configured save strategy.
func (o *Options) SaveStrategy() SaveStrategy {
	if v, ok := o.Get(OptionSaveStrategy); ok {
		if s, ok := v.(SaveStrategy); ok {
			return s
		}
	}
	return SaveInMemory
}

// SaveFormat returns the configured save format, if any.
func (o *Options) SaveFormat() (rdf.Format, bool) {
	if v, ok := o.Get(OptionSaveFormat); ok {
		if f, ok := v.(rdf.Format); ok && f != "" {
			return f, true
		}
	}
	return "", false
}
