package routing

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ErrNotCandidate is returned by SetActive when the given provider is not a
// registered candidate for the contract.
var ErrNotCandidate = errors.New("provider is not a registered candidate for contract")

// Source enumerates the configured providers and answers whether the user
// has enabled one. Enablement is owned by external configuration; the router
// only observes it.
type Source interface {
	Providers() []Provider
	Enabled(name string) bool
}

// Event describes one active-provider transition for a contract. Provider is
// empty when the contract lost its active provider entirely.
type Event struct {
	Contract string
	Provider string
	Previous string
}

type registration struct {
	provider Provider
	decls    []Declaration
	order    int
}

type candidate struct {
	provider Provider
	decl     Declaration
	order    int
}

type entry struct {
	candidates []candidate
	active     Provider
}

func (e *entry) has(name string) bool {
	for _, c := range e.candidates {
		if c.provider.Name() == name {
			return true
		}
	}
	return false
}

func (e *entry) remove(name string) {
	kept := e.candidates[:0]
	for _, c := range e.candidates {
		if c.provider.Name() != name {
			kept = append(kept, c)
		}
	}
	e.candidates = kept
}

// Router owns the live mapping from capability contract to the one provider
// currently designated to answer it. Mutation (registration, enablement) is
// rare and driven by externally-serialized configuration events; lookups are
// safe for concurrent use.
type Router struct {
	logger *zap.Logger

	mutex     sync.RWMutex
	source    Source
	known     map[string]*registration
	nextOrder int
	enabled   map[string]bool
	vetoed    map[string]bool // explicitly disabled by the user
	defaults  map[string]bool // auto-enabled by the router itself
	entries   map[string]*entry

	subMutex sync.Mutex
	subs     []func(Event)
}

func New(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger,
		known:    make(map[string]*registration),
		enabled:  make(map[string]bool),
		vetoed:   make(map[string]bool),
		defaults: make(map[string]bool),
		entries:  make(map[string]*entry),
	}
}

// SetSource wires the provider enumeration source. Must be called before
// Initialize.
func (r *Router) SetSource(source Source) {
	r.mutex.Lock()
	r.source = source
	r.mutex.Unlock()
}

// OnStatusChange registers a callback invoked whenever a provider
// transitions active/inactive for a contract.
func (r *Router) OnStatusChange(fn func(Event)) {
	r.subMutex.Lock()
	r.subs = append(r.subs, fn)
	r.subMutex.Unlock()
}

func (r *Router) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	r.subMutex.Lock()
	subs := make([]func(Event), len(r.subs))
	copy(subs, r.subs)
	r.subMutex.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// Register adds the provider to the candidate set of every contract it
// declares and recomputes the active provider for each contract that
// changed. Re-registering an already-present provider is a no-op.
func (r *Router) Register(p Provider) error {
	r.mutex.Lock()
	events, err := r.registerLocked(p)
	r.mutex.Unlock()
	r.emit(events)
	return err
}

func (r *Router) registerLocked(p Provider) ([]Event, error) {
	name := p.Name()
	reg, exists := r.known[name]
	if !exists {
		decls, err := ValidateDeclarations(p)
		if err != nil {
			r.logger.Warn("Provider rejected at registration",
				zap.String("provider", name),
				zap.Error(err))
			return nil, err
		}
		reg = &registration{provider: p, decls: decls, order: r.nextOrder}
		r.nextOrder++
		r.known[name] = reg
	}

	r.enabled[name] = true
	delete(r.vetoed, name)

	var events []Event
	for _, d := range reg.decls {
		e := r.entries[d.Contract]
		if e == nil {
			e = &entry{}
			r.entries[d.Contract] = e
		}
		if e.has(name) {
			continue
		}
		e.candidates = append(e.candidates, candidate{provider: reg.provider, decl: d, order: reg.order})
		events = append(events, r.recomputeLocked(d.Contract)...)
	}
	return events, nil
}

// Unregister removes the provider from every contract's candidate set,
// picking a replacement where it was active and deleting routing entries
// that become empty.
func (r *Router) Unregister(p Provider) {
	r.mutex.Lock()
	events := r.unregisterLocked(p.Name())
	r.mutex.Unlock()
	r.emit(events)
}

func (r *Router) unregisterLocked(name string) []Event {
	delete(r.enabled, name)
	delete(r.defaults, name)
	// An unregistered provider becomes unknown to the router; it only
	// reappears through the enumeration source or explicit registration.
	delete(r.known, name)

	// Snapshot affected contracts first: recomputation may adopt a provider
	// and insert new routing entries mid-walk.
	var affected []string
	for contract, e := range r.entries {
		if e.has(name) {
			affected = append(affected, contract)
		}
	}
	sort.Strings(affected)

	var events []Event
	for _, contract := range affected {
		e := r.entries[contract]
		if e == nil {
			continue
		}
		e.remove(name)
		if len(e.candidates) == 0 {
			if e.active != nil {
				events = append(events, Event{Contract: contract, Previous: e.active.Name()})
			}
			delete(r.entries, contract)
			continue
		}
		events = append(events, r.recomputeLocked(contract)...)
	}
	return events
}

// Initialize is the one-time startup sequence: enumerate all configured
// providers, drop duplicates by name, exclude providers whose declarations
// fail validation, register every user-enabled provider, and auto-select a
// default for every declared contract left without an active provider.
func (r *Router) Initialize() {
	r.mutex.Lock()
	var events []Event

	if r.source == nil {
		r.mutex.Unlock()
		return
	}

	// First pass folds every valid provider into the known set before any
	// registration runs, so selection can consider providers enumerated
	// later, an orchestrator in particular.
	contracts := make(map[string]bool)
	seen := make(map[string]bool)
	var valid []Provider
	for _, p := range r.source.Providers() {
		name := p.Name()
		if seen[name] {
			r.logger.Debug("Skipping duplicate provider", zap.String("provider", name))
			continue
		}
		seen[name] = true

		decls, err := ValidateDeclarations(p)
		if err != nil {
			r.logger.Warn("Provider excluded from routing",
				zap.String("provider", name),
				zap.Error(err))
			continue
		}

		if _, exists := r.known[name]; !exists {
			r.known[name] = &registration{provider: p, decls: decls, order: r.nextOrder}
			r.nextOrder++
		}
		for _, d := range decls {
			contracts[d.Contract] = true
		}
		valid = append(valid, p)
	}

	for _, p := range valid {
		if !r.source.Enabled(p.Name()) {
			continue
		}
		evts, _ := r.registerLocked(p)
		events = append(events, evts...)
		// User-enabled providers are never defaults, even if selection
		// adopted them moments earlier.
		delete(r.defaults, p.Name())
	}

	// Sorted for deterministic default assignment across restarts.
	ordered := make([]string, 0, len(contracts))
	for c := range contracts {
		ordered = append(ordered, c)
	}
	sort.Strings(ordered)

	for _, contract := range ordered {
		if e := r.entries[contract]; e == nil || e.active == nil {
			events = append(events, r.defaultSelectLocked(contract)...)
		}
	}

	r.mutex.Unlock()
	r.emit(events)
}

// ActiveFor returns the provider currently designated to answer the
// contract. When no provider is set it attempts default selection on demand,
// so a contract nobody explicitly enabled still resolves when a candidate
// exists. The second return is false when the capability is unavailable.
func (r *Router) ActiveFor(contract string) (Provider, bool) {
	r.mutex.RLock()
	if e := r.entries[contract]; e != nil && e.active != nil {
		p := e.active
		r.mutex.RUnlock()
		return p, true
	}
	r.mutex.RUnlock()

	r.mutex.Lock()
	var events []Event
	if e := r.entries[contract]; e != nil && len(e.candidates) > 0 {
		if e.active == nil {
			events = r.recomputeLocked(contract)
		}
	} else {
		events = r.defaultSelectLocked(contract)
	}
	var p Provider
	if e := r.entries[contract]; e != nil {
		p = e.active
	}
	r.mutex.Unlock()
	r.emit(events)

	if p == nil {
		r.logger.Debug("No provider available for contract", zap.String("contract", contract))
		return nil, false
	}
	return p, true
}

// SetActive is a manual override of the active provider for a contract. It
// fails if the provider is not a registered candidate for that contract.
func (r *Router) SetActive(contract string, p Provider) error {
	r.mutex.Lock()
	e := r.entries[contract]
	if e == nil || !e.has(p.Name()) {
		r.mutex.Unlock()
		return fmt.Errorf("%w: %s for %s", ErrNotCandidate, p.Name(), contract)
	}

	var events []Event
	if e.active == nil || e.active.Name() != p.Name() {
		prev := ""
		if e.active != nil {
			prev = e.active.Name()
		}
		e.active = p
		events = append(events, Event{Contract: contract, Provider: p.Name(), Previous: prev})
	}
	r.mutex.Unlock()
	r.emit(events)
	return nil
}

// Notify reacts to a provider being enabled or disabled in external
// configuration. The host calls this directly; there is no event bus.
func (r *Router) Notify(name string, enabled bool) {
	r.mutex.Lock()
	var events []Event

	if enabled {
		reg := r.lookupLocked(name)
		if reg == nil {
			r.logger.Warn("Enable notification for unknown provider", zap.String("provider", name))
			r.mutex.Unlock()
			return
		}

		delete(r.vetoed, name)
		// A user-enabled provider supersedes any default the router
		// auto-enabled for the contracts it covers. Retract those before
		// registering, so recompute never sees the stale default and the
		// user provider competing for the same contract.
		events = append(events, r.retractSupersededLocked(reg)...)
		evts, err := r.registerLocked(reg.provider)
		events = append(events, evts...)
		if err == nil {
			delete(r.defaults, name)
		}
	} else {
		r.vetoed[name] = true
		wasDefault := r.defaults[name]
		delete(r.defaults, name)
		reg := r.known[name]
		events = append(events, r.unregisterLocked(name)...)

		if reg != nil && wasDefault {
			for _, d := range reg.decls {
				if e := r.entries[d.Contract]; e == nil || e.active == nil {
					events = append(events, r.defaultSelectLocked(d.Contract)...)
				}
			}
		}
	}

	r.mutex.Unlock()
	r.emit(events)
}

func (r *Router) lookupLocked(name string) *registration {
	if reg, exists := r.known[name]; exists {
		return reg
	}
	if r.source == nil {
		return nil
	}
	for _, p := range r.source.Providers() {
		if p.Name() != name {
			continue
		}
		decls, err := ValidateDeclarations(p)
		if err != nil {
			r.logger.Warn("Provider excluded from routing",
				zap.String("provider", name),
				zap.Error(err))
			return nil
		}
		reg := &registration{provider: p, decls: decls, order: r.nextOrder}
		r.nextOrder++
		r.known[name] = reg
		return reg
	}
	return nil
}

func (r *Router) retractSupersededLocked(reg *registration) []Event {
	var events []Event
	for _, d := range reg.decls {
		e := r.entries[d.Contract]
		if e == nil {
			continue
		}
		for _, name := range r.defaultCandidateNames(e, reg.provider.Name()) {
			r.logger.Info("Retracting auto-enabled default provider",
				zap.String("provider", name),
				zap.String("superseded_by", reg.provider.Name()),
				zap.String("contract", d.Contract))
			delete(r.defaults, name)
			events = append(events, r.unregisterLocked(name)...)
		}
	}
	return events
}

func (r *Router) defaultCandidateNames(e *entry, exclude string) []string {
	var names []string
	for _, c := range e.candidates {
		name := c.provider.Name()
		if name != exclude && r.defaults[name] {
			names = append(names, name)
		}
	}
	return names
}

// defaultSelectLocked auto-enables the highest-priority known provider for a
// contract that currently has no active provider, marking it as a default so
// it can be retracted when a user-enabled provider appears.
func (r *Router) defaultSelectLocked(contract string) []Event {
	if e := r.entries[contract]; e != nil && e.active != nil {
		return nil
	}

	r.refreshKnownLocked()
	best := r.bestKnownLocked(contract, false)
	if best == nil {
		return nil
	}

	name := best.Name()
	if !r.enabled[name] {
		r.defaults[name] = true
		r.logger.Info("Auto-selecting default provider",
			zap.String("provider", name),
			zap.String("contract", contract))
	}
	events, _ := r.registerLocked(best)
	return events
}

// recomputeLocked re-runs selection for one contract. A panic while
// evaluating one contract must not prevent other contracts from being
// resolved, so recovery is local.
func (r *Router) recomputeLocked(contract string) (events []Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Routing recompute failed",
				zap.String("contract", contract),
				zap.Any("panic", rec))
		}
	}()

	e := r.entries[contract]
	if e == nil {
		return nil
	}

	if len(e.candidates) == 0 {
		if e.active != nil {
			events = append(events, Event{Contract: contract, Previous: e.active.Name()})
			e.active = nil
		}
		delete(r.entries, contract)
		return events
	}

	winner, adoptee, dropped := r.selectOptimalLocked(contract, e)

	if adoptee != nil {
		name := adoptee.Name()
		r.defaults[name] = true
		r.logger.Info("Adopting inactive provider for contract",
			zap.String("provider", name),
			zap.String("contract", contract))
		evts, _ := r.registerLocked(adoptee)
		return append(events, evts...)
	}

	if len(dropped) > 0 {
		r.logger.Warn("Multiple sources with no orchestrator available, falling back to single source",
			zap.String("contract", contract),
			zap.String("provider", winner.Name()),
			zap.Strings("dropped", dropped))
	}

	prev := e.active
	if winner != prev {
		prevName := ""
		if prev != nil {
			prevName = prev.Name()
		}
		winnerName := ""
		if winner != nil {
			winnerName = winner.Name()
		}
		e.active = winner
		events = append(events, Event{Contract: contract, Provider: winnerName, Previous: prevName})
	}
	return events
}

// selectOptimalLocked applies the selection algorithm to one contract's
// candidate set. It returns either the winning candidate, or a known but
// currently inactive provider that should be adopted (auto-enabled) first.
func (r *Router) selectOptimalLocked(contract string, e *entry) (winner Provider, adoptee Provider, dropped []string) {
	nonMixed := lo.Filter(e.candidates, func(c candidate, _ int) bool { return !c.decl.Mixed })
	mixed := lo.Filter(e.candidates, func(c candidate, _ int) bool { return c.decl.Mixed })

	switch {
	case len(nonMixed) == 0:
		// No active non-mixed source can serve the contract directly; fall
		// back to the best provider across everything known for it.
		best := r.bestKnownLocked(contract, false)
		if best == nil {
			return nil, nil, nil
		}
		if r.enabled[best.Name()] && e.has(best.Name()) {
			return best, nil, nil
		}
		return nil, best, nil

	case len(nonMixed) == 1:
		// Singleton mode: orchestration only makes sense with more than one
		// source to combine.
		return nonMixed[0].provider, nil, nil

	default:
		if best := bestCandidate(mixed); best != nil {
			return best, nil, nil
		}
		if known := r.bestKnownLocked(contract, true); known != nil {
			return nil, known, nil
		}
		best := bestCandidate(nonMixed)
		for _, c := range nonMixed {
			if c.provider.Name() != best.Name() {
				dropped = append(dropped, c.provider.Name())
			}
		}
		return best, nil, dropped
	}
}

// bestCandidate picks by strictly descending priority, ties broken by
// registration order so selection stays deterministic.
func bestCandidate(cands []candidate) Provider {
	var best *candidate
	for i := range cands {
		c := &cands[i]
		if best == nil || c.decl.Priority > best.decl.Priority ||
			(c.decl.Priority == best.decl.Priority && c.order < best.order) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.provider
}

// refreshKnownLocked folds providers the enumeration source knows about
// back into the known set, so default selection can consider providers that
// were never enabled. Providers the user explicitly disabled stay out.
func (r *Router) refreshKnownLocked() {
	if r.source == nil {
		return
	}
	for _, p := range r.source.Providers() {
		name := p.Name()
		if r.vetoed[name] {
			continue
		}
		if _, exists := r.known[name]; exists {
			continue
		}
		decls, err := ValidateDeclarations(p)
		if err != nil {
			continue
		}
		r.known[name] = &registration{provider: p, decls: decls, order: r.nextOrder}
		r.nextOrder++
	}
}

// bestKnownLocked searches every known provider declaring the contract.
// Providers the user explicitly disabled are no longer known and so cannot
// be picked.
func (r *Router) bestKnownLocked(contract string, mixedOnly bool) Provider {
	var best *registration
	var bestDecl Declaration
	for _, reg := range r.known {
		for _, d := range reg.decls {
			if d.Contract != contract {
				continue
			}
			if mixedOnly && !d.Mixed {
				continue
			}
			if best == nil || d.Priority > bestDecl.Priority ||
				(d.Priority == bestDecl.Priority && reg.order < best.order) {
				best = reg
				bestDecl = d
			}
		}
	}
	if best == nil {
		return nil
	}
	return best.provider
}

// FanoutFor returns the enabled non-mixed candidates for a contract in
// priority order. Orchestrating providers use this to fan a call out to the
// underlying sources.
func (r *Router) FanoutFor(contract string) []Provider {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e := r.entries[contract]
	if e == nil {
		return nil
	}

	targets := lo.Filter(e.candidates, func(c candidate, _ int) bool { return !c.decl.Mixed })
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].decl.Priority != targets[j].decl.Priority {
			return targets[i].decl.Priority > targets[j].decl.Priority
		}
		return targets[i].order < targets[j].order
	})

	return lo.Map(targets, func(c candidate, _ int) Provider { return c.provider })
}

// IsDefault reports whether a provider is currently auto-enabled by the
// router rather than by user configuration.
func (r *Router) IsDefault(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.defaults[name]
}

// Stats returns the number of known providers and currently enabled
// providers, for telemetry gauges.
func (r *Router) Stats() (known, enabled int) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.known), len(r.enabled)
}

// ActiveContracts returns how many contracts currently have an active
// provider.
func (r *Router) ActiveContracts() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	for _, e := range r.entries {
		if e.active != nil {
			count++
		}
	}
	return count
}
