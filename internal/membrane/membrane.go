// Package membrane implements the object-access proxy: a
// thin layer in front of every live jig's field store that enforces the
// Rules record for that jig's kind (binding read-only-ness, privacy,
// immutability, reserved names, disabled methods) and reports read/update/
// call events to whichever record is currently open.
//
// Grounded in core/access_control.go's mutex-guarded, cached permission
// check idiom, generalized from a ledger-backed role store to an in-memory
// field store guarded by a predefined, immutable rules.Rules record.
package membrane

import (
	"fmt"
	"strings"
	"sync"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/ownership"
	"github.com/runkernel/kernel/internal/rules"
	"github.com/runkernel/kernel/internal/sandbox"
)

// Recorder receives read/update/call notifications from a membrane. The
// record package implements this; membrane never imports record,
// keeping the dependency one-directional.
type Recorder interface {
	RecordRead(ref interface{})
	RecordUpdate(ref interface{})
	RecordCall(ref interface{}, method string, args []sandbox.Value)
}

// reservedFieldNames mirrors sandbox.reservedNames for the property surface
// a membrane guards, the "reserved" rule flag.
var reservedFieldNames = map[string]bool{
	"deps":        true,
	"presets":     true,
	"constructor": true,
	"prototype":   true,
}

var bindingFieldNames = map[string]bool{
	"location": true, "origin": true, "nonce": true,
}

// Membrane wraps one live jig's property store. Ref is the opaque identity
// passed to Recorder calls and used by the codec's EncodeJig hook; it is
// typically the *ownership.Jig itself.
type Membrane struct {
	mu       sync.Mutex
	Jig      *ownership.Jig
	Rules    *rules.Rules
	Ref      interface{}
	Recorder Recorder

	fields     map[string]sandbox.Value
	sealed     bool
	calledOnce map[string]bool
}

// New wraps jig with the rules for its kind. fields is the initial property
// store (callers pass an empty map for a freshly constructed instance).
func New(jig *ownership.Jig, r *rules.Rules, ref interface{}, rec Recorder, fields map[string]sandbox.Value) *Membrane {
	if fields == nil {
		fields = map[string]sandbox.Value{}
	}
	return &Membrane{Jig: jig, Rules: r, Ref: ref, Recorder: rec, fields: fields, calledOnce: map[string]bool{}}
}

func privateName(name string) bool { return strings.HasPrefix(name, "_") }

// Get implements the membrane's `get` trap. fromOutside is true when the
// caller is not the jig's own executing method.
func (m *Membrane) Get(name string, fromOutside bool) (sandbox.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fromOutside && m.Rules.Privacy && privateName(name) {
		return nil, fmt.Errorf("Access: cannot read private property %s", name)
	}
	if v, ok := m.bindingField(name); ok {
		return v, nil
	}
	v, ok := m.fields[name]
	if m.Rules.RecordReads && m.Recorder != nil {
		m.Recorder.RecordRead(m.Ref)
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *Membrane) bindingField(name string) (sandbox.Value, bool) {
	b, _ := m.Jig.Snapshot()
	if m.Rules.LocationBindings {
		switch name {
		case "location":
			return b.Location, true
		case "origin":
			return b.Origin, true
		case "nonce":
			return float64(b.Nonce), true
		}
	}
	if m.Rules.UTXOBindings {
		switch name {
		case "owner":
			if b.Owner == nil {
				return nil, true
			}
			return b.Owner, true
		case "satoshis":
			return float64(b.Satoshis), true
		}
	}
	return nil, false
}

// Set implements the membrane's `set` trap.
func (m *Membrane) Set(name string, value sandbox.Value, fromOutside bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Rules.CanWrite() {
		return fmt.Errorf("Access: cannot set property %s, object is immutable", name)
	}
	if fromOutside {
		return fmt.Errorf("Access: cannot update %s from outside a method", name)
	}
	if m.Rules.Reserved && reservedFieldNames[name] {
		return fmt.Errorf("Validation: reserved property name %q", name)
	}
	if m.Rules.LocationBindings && bindingFieldNames[name] {
		return fmt.Errorf("Access: %s is read-only", name)
	}
	if m.Rules.UTXOBindings && (name == "owner" || name == "satoshis") {
		if err := m.setBindingField(name, value); err != nil {
			return err
		}
		m.Jig.MarkUnbound()
		return nil
	}
	if m.sealed {
		if _, exists := m.fields[name]; !exists {
			return fmt.Errorf("Access: cannot add property %s, object is not extensible", name)
		}
	}
	m.fields[name] = value
	if m.Rules.RecordUpdates && m.Recorder != nil {
		m.Recorder.RecordUpdate(m.Ref)
	}
	return nil
}

func (m *Membrane) setBindingField(name string, value sandbox.Value) error {
	b, _ := m.Jig.Snapshot()
	switch name {
	case "owner":
		lock, err := bindings.ParseOwner(value, false)
		if err != nil {
			return err
		}
		b.Owner = lock
	case "satoshis":
		n, ok := value.(float64)
		if !ok {
			return fmt.Errorf("Validation: satoshis must be a number")
		}
		if err := bindings.ValidateSatoshis(int64(n)); err != nil {
			return err
		}
		b.Satoshis = uint64(n)
	}
	m.Jig.ApplyBindingEdit(b)
	return nil
}

// Define implements the membrane's `defineProperty` trap. Accessor
// descriptors (getter/setter pairs) are rejected outright as an
// Access-kind failure.
func (m *Membrane) Define(name string, value sandbox.Value, isAccessor bool, fromOutside bool) error {
	if isAccessor {
		return fmt.Errorf("Access: getter/setter properties are not supported")
	}
	return m.Set(name, value, fromOutside)
}

// Delete implements the membrane's `delete` trap.
func (m *Membrane) Delete(name string, fromOutside bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Rules.CanWrite() {
		return fmt.Errorf("Access: cannot delete property %s, object is immutable", name)
	}
	if fromOutside {
		return fmt.Errorf("Access: cannot update %s from outside a method", name)
	}
	if m.Rules.Reserved && reservedFieldNames[name] {
		return fmt.Errorf("Validation: reserved property name %q", name)
	}
	if (m.Rules.LocationBindings && bindingFieldNames[name]) || (m.Rules.UTXOBindings && (name == "owner" || name == "satoshis")) {
		return fmt.Errorf("Access: %s cannot be deleted", name)
	}
	delete(m.fields, name)
	if m.Rules.RecordUpdates && m.Recorder != nil {
		m.Recorder.RecordUpdate(m.Ref)
	}
	return nil
}

// Has implements the membrane's `has` trap (the `in` operator).
func (m *Membrane) Has(name string, fromOutside bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fromOutside && m.Rules.Privacy && privateName(name) {
		return false, fmt.Errorf("Access: cannot check private property %s", name)
	}
	if _, ok := m.bindingField(name); ok {
		return true, nil
	}
	_, ok := m.fields[name]
	return ok, nil
}

// OwnKeys implements the membrane's `ownKeys` trap, filtering underscored
// names when called from outside and privacy applies.
func (m *Membrane) OwnKeys(fromOutside bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		if fromOutside && m.Rules.Privacy && privateName(k) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// GetPrototype implements the membrane's `getPrototypeOf` trap. Jigs have no
// mutable prototype chain in this runtime (dynamic class replacement models
// classes as stable handles, not prototypes), so this always reports the
// jig's own kind as its identity.
func (m *Membrane) GetPrototype() rules.Kind { return m.Rules.Kind }

// SetPrototype implements the membrane's `setPrototypeOf` trap, always
// rejected.
func (m *Membrane) SetPrototype(sandbox.Value) error {
	return fmt.Errorf("Access: setPrototypeOf disabled")
}

// PreventExtensions implements the membrane's `preventExtensions` trap: once
// sealed, Set cannot introduce new own property names.
func (m *Membrane) PreventExtensions() { m.mu.Lock(); m.sealed = true; m.mu.Unlock() }

// Call dispatches a method invocation through the membrane, checking
// disabledMethods ("init disabled" after first call is the concrete case)
// and reporting the call to the active record.
func (m *Membrane) Call(method string, args []sandbox.Value, fromOutside bool) error {
	m.mu.Lock()
	if m.Rules.MethodDisabled(method) || m.calledOnce[method] {
		m.mu.Unlock()
		return fmt.Errorf("Execution: %s is disabled", method)
	}
	if method == "init" {
		m.calledOnce[method] = true
	}
	rec, ref := m.Recorder, m.Ref
	recordCalls := m.Rules.RecordCalls
	m.mu.Unlock()
	if recordCalls && rec != nil {
		rec.RecordCall(ref, method, args)
	}
	return nil
}
