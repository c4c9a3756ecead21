package drivers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/perilink/perilink-go/pkg/engine"
)

var (
	mu     sync.RWMutex
	makers = make(map[string]func() engine.Driver)
)

// Register adds a driver factory under its pcload name. Duplicate
// names panic, which surfaces a broken init chain immediately.
func Register(name string, mk func() engine.Driver) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := makers[name]; dup {
		panic("drivers: duplicate registration of " + name)
	}
	makers[name] = mk
}

// New instantiates a fresh driver. Every call returns a new instance,
// so the same driver can occupy several slots.
func New(name string) (engine.Driver, error) {
	mu.RLock()
	mk, ok := makers[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownDriver, name)
	}
	return mk(), nil
}

// Names returns the registered driver names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(makers))
	for name := range makers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
