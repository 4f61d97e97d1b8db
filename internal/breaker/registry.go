package breaker

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	// sweepInterval is how often idle name-keyed breakers are swept
	sweepInterval = 15 * time.Minute
	// idleTimeout is how long a name-keyed breaker may go unused before sweeping
	idleTimeout = 15 * time.Minute
	// maxNamedBreakers bounds the name-keyed cache against unbounded key growth
	maxNamedBreakers = 512
)

// Registry creates and memoizes breakers so unrelated call sites share the
// same failure state for the same logical provider. Provider-keyed breakers
// live for the process lifetime; free-form name-keyed breakers are held in a
// bounded LRU and swept when idle, so their accumulated failure history may
// be lost between uses.
type Registry struct {
	logger       *zap.Logger
	threshold    int
	resetTimeout time.Duration

	providers map[string]*Breaker
	named     *lru.Cache[string, *namedEntry]
	mutex     sync.Mutex
	stopSweep chan struct{}
}

type namedEntry struct {
	breaker  *Breaker
	lastUsed time.Time
}

func NewRegistry(threshold int, resetTimeout time.Duration, logger *zap.Logger) *Registry {
	named, _ := lru.New[string, *namedEntry](maxNamedBreakers)

	r := &Registry{
		logger:       logger,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		providers:    make(map[string]*Breaker),
		named:        named,
		stopSweep:    make(chan struct{}),
	}

	go r.sweep()

	return r
}

// Stop stops the background sweep goroutine.
func (r *Registry) Stop() {
	close(r.stopSweep)
}

// ForProvider returns the process-lifetime breaker for a provider, creating
// it with the registry defaults on first access.
func (r *Registry) ForProvider(name string) *Breaker {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.providerLocked(name, r.threshold, r.resetTimeout)
}

// Custom returns the breaker for a provider with explicit configuration. The
// parameters are only effective the first time a given key is requested;
// subsequent calls return the already-created instance unchanged.
func (r *Registry) Custom(name string, threshold int, resetTimeout time.Duration) *Breaker {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.providerLocked(name, threshold, resetTimeout)
}

func (r *Registry) providerLocked(name string, threshold int, resetTimeout time.Duration) *Breaker {
	if b, exists := r.providers[name]; exists {
		return b
	}

	b := New(threshold, resetTimeout)
	r.providers[name] = b
	return b
}

// ForKey returns the breaker for a free-form key, creating one with the
// registry defaults on first access. These breakers use bounded retention.
func (r *Registry) ForKey(key string) *Breaker {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if entry, exists := r.named.Get(key); exists {
		entry.lastUsed = time.Now()
		return entry.breaker
	}

	entry := &namedEntry{
		breaker:  New(r.threshold, r.resetTimeout),
		lastUsed: time.Now(),
	}
	r.named.Add(key, entry)
	return entry.breaker
}

// CustomForKey returns the breaker for a free-form key with explicit
// configuration. As with Custom, the parameters only apply the first time a
// key is requested; the breaker itself uses the same bounded retention as
// ForKey, so the custom configuration is lost if it is swept.
func (r *Registry) CustomForKey(key string, threshold int, resetTimeout time.Duration) *Breaker {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if entry, exists := r.named.Get(key); exists {
		entry.lastUsed = time.Now()
		return entry.breaker
	}

	entry := &namedEntry{
		breaker:  New(threshold, resetTimeout),
		lastUsed: time.Now(),
	}
	r.named.Add(key, entry)
	return entry.breaker
}

// OpenCount returns how many breakers currently report open.
func (r *Registry) OpenCount() int {
	r.mutex.Lock()
	providers := make([]*Breaker, 0, len(r.providers))
	for _, b := range r.providers {
		providers = append(providers, b)
	}
	named := r.named.Values()
	r.mutex.Unlock()

	count := 0
	for _, b := range providers {
		if b.IsOpen() {
			count++
		}
	}
	for _, entry := range named {
		if entry.breaker.IsOpen() {
			count++
		}
	}
	return count
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.performSweep()
		case <-r.stopSweep:
			return
		}
	}
}

// performSweep removes name-keyed breakers that have been idle for too long.
func (r *Registry) performSweep() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	swept := 0
	for _, key := range r.named.Keys() {
		entry, exists := r.named.Peek(key)
		if !exists {
			continue
		}
		if entry.lastUsed.Before(cutoff) {
			r.named.Remove(key)
			swept++
		}
	}

	if swept > 0 {
		r.logger.Debug("Swept idle breakers", zap.Int("count", swept))
	}
}
