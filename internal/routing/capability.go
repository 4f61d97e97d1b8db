// Package routing decides, for every capability contract, which single
// installed provider currently answers it, and keeps that decision
// consistent as providers are enabled and disabled at runtime.
package routing

import (
	"fmt"
)

// Provider is an installed implementation unit that can serve one or more
// capability contracts. Implementations additionally satisfy the typed
// capability interfaces in internal/core for the contracts they declare.
type Provider interface {
	// Name returns the provider's stable name.
	Name() string
	// Capabilities returns the provider's static capability declarations.
	Capabilities() []Declaration
}

// Declaration is one (contract, priority, mixed) tuple a provider exposes.
// A mixed provider is willing to orchestrate a contract by combining results
// from several underlying providers instead of winning it exclusively.
type Declaration struct {
	Contract string
	Priority int
	Mixed    bool
}

// ValidateDeclarations checks a provider's capability declarations for
// internal consistency. A provider that fails validation is excluded from
// routing; the error is a diagnostic for the registration site, never a
// panic.
func ValidateDeclarations(p Provider) ([]Declaration, error) {
	name := p.Name()
	if name == "" {
		return nil, fmt.Errorf("provider has no name")
	}

	decls := p.Capabilities()
	if len(decls) == 0 {
		return nil, fmt.Errorf("provider %s declares no capabilities", name)
	}

	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		if d.Contract == "" {
			return nil, fmt.Errorf("provider %s declares an empty contract", name)
		}
		if d.Priority <= 0 {
			return nil, fmt.Errorf("provider %s declares contract %s without a valid priority", name, d.Contract)
		}
		if seen[d.Contract] {
			return nil, fmt.Errorf("provider %s declares contract %s twice", name, d.Contract)
		}
		seen[d.Contract] = true
	}

	return decls, nil
}
