// Package rules defines the immutable policy records attached to every
// membrane. Grounded in core/access_control.go's role-keyed permission
// idiom, but adapted from a dynamic ledger-backed RBAC store to a static,
// predefined-per-kind rule set: rules never change at runtime, only the
// kind of the object being wrapped selects which immutable record
// applies.
package rules

// Kind tags which jig/berry/sidekick variant a membrane wraps.
type Kind int

const (
	KindCodeJig Kind = iota
	KindJigInstance
	KindSidekickCode
	KindBerryClass
	KindBerryInstance
	KindNativeCode
	KindArbitraryObject
)

func (k Kind) String() string {
	switch k {
	case KindCodeJig:
		return "code-jig"
	case KindJigInstance:
		return "jig-instance"
	case KindSidekickCode:
		return "sidekick-code"
	case KindBerryClass:
		return "berry-class"
	case KindBerryInstance:
		return "berry-instance"
	case KindNativeCode:
		return "native-code"
	case KindArbitraryObject:
		return "arbitrary-object"
	default:
		return "unknown-kind"
	}
}

// BindingSurface selects which identity-field rule flag applies to a Rules
// record: code jigs and instances both expose
// location/origin/nonce (locationBindings) and owner/satoshis
// (utxoBindings); berries and sidekick code expose only
// location/origin/nonce.
type BindingSurface int

const (
	NoBindings BindingSurface = iota
	CodeProps
	JigProps
	BerryProps
)

// Rules is the immutable policy record a membrane consults for every
// operation. All Rules values returned by Predefined are
// shared, read-only package-level singletons.
type Rules struct {
	Kind Kind

	LocationBindings bool // location/origin/nonce are read-only, validated on write
	UTXOBindings     bool // owner/satoshis are read-only, validated on write
	Reserved         bool // deps/presets/constructor/prototype are protected
	BindingSurface   BindingSurface
	Privacy          bool // underscored names filtered on cross-jig access
	Immutable        bool // writes and deletes rejected outright
	RecordReads      bool
	RecordUpdates    bool
	RecordCalls      bool
	RecordableTarget bool // the object itself appears in the record's ref/input set when read
	SmartAPI         bool // method calls dispatch through the kernel, not directly
	Thisless         bool // function called with no receiver
	DisabledMethods  map[string]bool
}

// predefined holds one immutable Rules value per Kind, built once at
// package init and never mutated afterward.
var predefined = map[Kind]*Rules{
	KindCodeJig: {
		Kind: KindCodeJig, LocationBindings: true, UTXOBindings: true, Reserved: true,
		BindingSurface: CodeProps, Privacy: true, RecordReads: true, RecordUpdates: true,
		RecordCalls: true, RecordableTarget: true, SmartAPI: true,
		DisabledMethods: map[string]bool{},
	},
	KindJigInstance: {
		Kind: KindJigInstance, LocationBindings: true, UTXOBindings: true, Reserved: true,
		BindingSurface: JigProps, Privacy: true, RecordReads: true, RecordUpdates: true,
		RecordCalls: true, RecordableTarget: true, SmartAPI: true,
		DisabledMethods: map[string]bool{"init": true},
	},
	KindSidekickCode: {
		Kind: KindSidekickCode, LocationBindings: true, Reserved: true,
		BindingSurface: CodeProps, Immutable: true, RecordableTarget: true,
	},
	KindBerryClass: {
		Kind: KindBerryClass, LocationBindings: true, Reserved: true,
		BindingSurface: CodeProps, Immutable: true, RecordableTarget: true,
	},
	KindBerryInstance: {
		Kind: KindBerryInstance, LocationBindings: true, Reserved: true,
		BindingSurface: BerryProps, Immutable: true, RecordableTarget: true,
	},
	KindNativeCode: {
		Kind: KindNativeCode, Reserved: true, Immutable: true, Thisless: true,
	},
	KindArbitraryObject: {
		Kind: KindArbitraryObject, Privacy: true, RecordUpdates: true,
	},
}

// Predefined returns the immutable Rules record for a kind. Child-property
// membranes derive their own rules from this via Weaken, never by mutating
// the returned value.
func Predefined(k Kind) *Rules {
	return predefined[k]
}

// Weaken returns the rule set child-property membranes (for inner objects
// owned by a jig) should use: binding semantics stripped, recordableTarget
// weakened. Always returns a fresh copy; callers never
// mutate a Predefined() result in place.
func (r *Rules) Weaken() *Rules {
	cp := *r
	cp.LocationBindings = false
	cp.UTXOBindings = false
	cp.RecordableTarget = false
	cp.BindingSurface = NoBindings
	return &cp
}

// CanWrite reports whether a set/delete operation is allowed at all,
// independent of privacy/reserved-name filtering.
func (r *Rules) CanWrite() bool { return !r.Immutable }

// MethodDisabled reports whether a named method has been turned off for
// this rule set (e.g. "init" on a jig instance).
func (r *Rules) MethodDisabled(name string) bool {
	return r.DisabledMethods != nil && r.DisabledMethods[name]
}
