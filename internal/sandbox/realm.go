// Package sandbox provides the hermetic execution realm jig and sidekick
// code runs inside: realm-tagged intrinsics, a banned-identifier table for
// non-deterministic host features, and per-operation resource metering.
//
// core/virtual_machine.go dispatches bytecode through a tiered VM
// (superlight/light/heavy-via-wasmer) selected by code shape; this package
// keeps that tiering idea but drops the WASM-hosted "heavy" tier, since
// this sandbox stays a restricted, dependency-injected realm rather than a
// general WASM host. Compilation input here is a ClassSource descriptor
// instead of parsed source text, because no JavaScript/ECMAScript engine
// or parser exists anywhere in the example pack: the realm still enforces
// the contract a sandboxed class needs, free identifiers resolve from the
// dependency map, unresolved ones fail at call time, and the parent class
// (if any) must be supplied as a dependency named after its source-time
// identifier.
package sandbox

import (
	"fmt"
	"sync/atomic"
)

// realmCounter hands out unique realm identities so the codec and membrane
// can tag values and detect foreign intrinsics.
var realmCounter uint64

// Realm is a fresh execution context, one per jig installation. Every
// intrinsic value created while running inside a Realm is tagged with its
// RealmID; anything tagged with a different RealmID (or not tagged at all)
// is a foreign intrinsic and must be rejected.
type Realm struct {
	ID       uint64
	Meter    *Meter
	installs map[string]*Installed
}

// NewRealm allocates a fresh, hermetic realm with its own resource meter.
func NewRealm(budget uint64) *Realm {
	return &Realm{
		ID:       atomic.AddUint64(&realmCounter, 1),
		Meter:    NewMeter(budget),
		installs: make(map[string]*Installed),
	}
}

// Installed is a compiled class or function living inside a Realm.
type Installed struct {
	Realm  *Realm
	Source *ClassSource
	Deps   Dependencies
}

// reservedNames: compilation rejects any class/function using these as
// field, method, or dependency names.
var reservedNames = map[string]bool{
	"constructor": true,
	"prototype":   true,
	"deps":        true,
	"presets":     true,
}

// Compile installs a ClassSource into the realm, resolving deps lazily:
// unresolved free identifiers only fail when a method actually looks them
// up, not at install time.
func (r *Realm) Compile(src *ClassSource, deps Dependencies) (*Installed, error) {
	if src.Name == "" {
		return nil, fmt.Errorf("Validation: anonymous definitions are not supported")
	}
	if reservedNames[src.Name] {
		return nil, fmt.Errorf("Validation: reserved property name %q cannot name a class", src.Name)
	}
	for name := range src.Fields {
		if reservedNames[name] {
			return nil, fmt.Errorf("Validation: reserved property name %q", name)
		}
	}
	for name := range src.Methods {
		if reservedNames[name] {
			return nil, fmt.Errorf("Validation: reserved property name %q", name)
		}
	}
	if src.Parent != nil {
		if _, ok := deps[src.Parent.Name]; !ok {
			return nil, fmt.Errorf("Validation: parent class %q must be supplied as a dependency", src.Parent.Name)
		}
	}
	installed := &Installed{Realm: r, Source: src, Deps: deps}
	r.installs[src.Name] = installed
	return installed, nil
}
