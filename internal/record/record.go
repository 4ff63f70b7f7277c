// Package record implements the record/commit engine: an ordered log of
// operations performed by one top-level entry, which closes into a script
// + metadata pair ready for the purse/owner/chain pipeline.
//
// Grounded in core/ledger.go's block-assembly path (applyBlock batches
// state mutations, computes a root, and appends to the WAL), generalized
// from a fixed block/transaction shape to a jig-input/output script and
// adapted to report through the membrane.Recorder interface instead of
// direct ledger state writes.
package record

import (
	"fmt"
	"sort"
	"sync"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/codec"
	"github.com/runkernel/kernel/internal/determinism"
	"github.com/runkernel/kernel/internal/ownership"
	"github.com/runkernel/kernel/internal/sandbox"
)

// OpKind tags a top-level entry kind.
type OpKind int

const (
	OpDeploy OpKind = iota
	OpUpgrade
	OpNew
	OpCall
	OpAuth
	OpDestroy
)

func (k OpKind) String() string {
	switch k {
	case OpDeploy:
		return "DEPLOY"
	case OpUpgrade:
		return "UPGRADE"
	case OpNew:
		return "NEW"
	case OpCall:
		return "CALL"
	case OpAuth:
		return "AUTH"
	case OpDestroy:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}

// Op is one entry in the record's exec script.
type Op struct {
	Kind   OpKind
	Target interface{} // *ownership.Jig for UPGRADE/NEW/CALL/AUTH/DESTROY; nil for DEPLOY
	Method string
	Args   []sandbox.Value
	Source *sandbox.ClassSource
}

// snapshot captures a jig's pre-record state for rollback.
type snapshot struct {
	bindings bindings.Bindings
	state    ownership.State
}

// Record is a transient log of operations for one top-level entry or
// batch. It implements membrane.Recorder so every membrane operation
// against a jig touched by this record is tracked automatically.
type Record struct {
	mu sync.Mutex

	id        string
	ops       []Op
	reads     map[*ownership.Jig]struct{}
	updates   map[*ownership.Jig]struct{}
	creates   map[*ownership.Jig]struct{}
	deletes   map[*ownership.Jig]struct{}
	order     []*ownership.Jig // first-touch order, for stable $jig indices
	seen      map[*ownership.Jig]bool
	snapshots map[*ownership.Jig]snapshot
	closed    bool
	poisoned  bool
}

// New allocates an empty record identified by id (used to build provisional
// "record://<id>_o<i>" locations before a real txid is known).
func New(id string) *Record {
	return &Record{
		id:        id,
		reads:     map[*ownership.Jig]struct{}{},
		updates:   map[*ownership.Jig]struct{}{},
		creates:   map[*ownership.Jig]struct{}{},
		deletes:   map[*ownership.Jig]struct{}{},
		seen:      map[*ownership.Jig]bool{},
		snapshots: map[*ownership.Jig]snapshot{},
	}
}

func (r *Record) track(jig *ownership.Jig) {
	if !r.seen[jig] {
		r.seen[jig] = true
		r.order = append(r.order, jig)
		b, s := jig.Snapshot()
		r.snapshots[jig] = snapshot{bindings: b, state: s}
	}
}

// RecordRead implements membrane.Recorder.
func (r *Record) RecordRead(ref interface{}) {
	jig, ok := ref.(*ownership.Jig)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(jig)
	r.reads[jig] = struct{}{}
}

// RecordUpdate implements membrane.Recorder.
func (r *Record) RecordUpdate(ref interface{}) {
	jig, ok := ref.(*ownership.Jig)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(jig)
	r.updates[jig] = struct{}{}
}

// RecordCall implements membrane.Recorder; the call itself is attached to
// the exec script via AddOp, so this only needs to ensure the target is
// tracked (a called-but-unmutated jig still counts as read).
func (r *Record) RecordCall(ref interface{}, method string, args []sandbox.Value) {
	jig, ok := ref.(*ownership.Jig)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(jig)
	if _, mutated := r.updates[jig]; !mutated {
		r.reads[jig] = struct{}{}
	}
}

// MarkCreated records jig as newly created by this record, the
// "creates" subset of updates.
func (r *Record) MarkCreated(jig *ownership.Jig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(jig)
	r.creates[jig] = struct{}{}
	r.updates[jig] = struct{}{}
}

// MarkDestroyed records jig as destroyed by this record, the
// "deletes" subset of updates.
func (r *Record) MarkDestroyed(jig *ownership.Jig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(jig)
	r.deletes[jig] = struct{}{}
	r.updates[jig] = struct{}{}
}

// AddOp appends one top-level or nested operation to the exec script.
func (r *Record) AddOp(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// CheckConsistency enforces that within one record, every referenced jig
// of the same origin must agree on location. Returns "Inconsistent
// worldview" otherwise.
func (r *Record) CheckConsistency() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	worldview := map[string]string{}
	for jig := range r.seen {
		b, _ := jig.Snapshot()
		if b.Origin == "" {
			continue
		}
		if prior, ok := worldview[b.Origin]; ok && prior != b.Location {
			return fmt.Errorf("Ownership: Inconsistent worldview for origin %s (%s vs %s)", b.Origin, prior, b.Location)
		}
		worldview[b.Origin] = b.Location
	}
	return nil
}

// ExecEntry is one entry of the metadata's exec list.
type ExecEntry struct {
	Op   string
	Data map[string]codec.Value
}

// Metadata is the transaction metadata object. Keys are serialized in
// sorted order when embedded in the anchor output (pkg/kernel's
// encodeMetadataJSON, via encoding/json rather than the codec).
type Metadata struct {
	Version int
	App     string
	In      int
	Ref     []string
	Out     map[int]determinism.Hash
	Del     map[int]determinism.Hash
	Cre     map[int]bindings.Lock
	Exec    []ExecEntry
	Root    determinism.Hash // merkle root over Out's per-output hashes, in index order
}

// Script is the closed record's output: jig index assignment plus the
// metadata ready for transaction construction.
type Script struct {
	Inputs  []*ownership.Jig // spent, in first-touch order
	Refs    []*ownership.Jig // read-only
	Outputs []*ownership.Jig // new/mutated
	Deletes []*ownership.Jig
	Meta    Metadata
}

// Close finalizes the record: partitions tracked jigs into inputs/refs/
// outputs/deletes in the canonical $jig index order (inputs, references,
// outputs, deletes), then builds the exec list and metadata shell. Callers still need to fill in Out/Del state hashes and Cre locks
// once the new bindings are computed, and App/Version from the caller's
// protocol context.
func (r *Record) Close(app string, version int) (*Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("Execution: record already closed")
	}
	if r.poisoned {
		return nil, fmt.Errorf("Execution: Deploy failed")
	}
	r.closed = true

	var refs, outputs, deletes []*ownership.Jig
	for _, jig := range r.order {
		_, isUpdate := r.updates[jig]
		_, isDelete := r.deletes[jig]
		switch {
		case isDelete:
			deletes = append(deletes, jig)
		case isUpdate:
			outputs = append(outputs, jig)
		default:
			refs = append(refs, jig)
		}
	}
	// Inputs are every pre-existing (nonce > 0, i.e. already-committed) jig
	// this record mutates or destroys; newly created jigs have no prior
	// location to spend.
	var inputs []*ownership.Jig
	for _, jig := range outputs {
		b, _ := jig.Snapshot()
		if b.Nonce > 0 {
			inputs = append(inputs, jig)
		}
	}
	for _, jig := range deletes {
		b, _ := jig.Snapshot()
		if b.Nonce > 0 {
			inputs = append(inputs, jig)
		}
	}

	exec := make([]ExecEntry, 0, len(r.ops))
	for _, op := range r.ops {
		data := map[string]codec.Value{}
		if op.Source != nil {
			data["class"] = op.Source.Name
		}
		if op.Method != "" {
			data["method"] = op.Method
		}
		if len(op.Args) > 0 {
			items := make([]codec.Value, len(op.Args))
			for i, a := range op.Args {
				items[i] = a
			}
			data["args"] = &codec.PlainArray{Items: items}
		}
		if jig, ok := op.Target.(*ownership.Jig); ok && jig != nil {
			data["target"] = &codec.JigRef{Ref: jig}
		}
		exec = append(exec, ExecEntry{Op: op.Kind.String(), Data: data})
	}

	refLocations := make([]string, 0, len(refs))
	for _, jig := range refs {
		b, _ := jig.Snapshot()
		refLocations = append(refLocations, b.Location)
	}
	sort.Strings(refLocations)

	return &Script{
		Inputs:  inputs,
		Refs:    refs,
		Outputs: outputs,
		Deletes: deletes,
		Meta: Metadata{
			Version: version,
			App:     app,
			In:      len(inputs),
			Ref:     refLocations,
			Out:     map[int]determinism.Hash{},
			Del:     map[int]determinism.Hash{},
			Cre:     map[int]bindings.Lock{},
			Exec:    exec,
		},
	}, nil
}

// Poison marks the record unrecoverably failed; subsequent Close calls
// fail and every tracked jig should be poisoned by the caller via
// Jig.FailDeploy-equivalent handling at the kernel layer.
func (r *Record) Poison() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poisoned = true
}

// Rollback restores every jig touched by this record to its pre-record
// snapshot: if publish fails, every jig that entered the record is
// reverted to its pre-record state.
func (r *Record) Rollback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for jig, snap := range r.snapshots {
		jig.Rollback(snap.bindings, snap.state)
	}
}

// TrackedJigs returns every jig this record has observed, for callers that
// need to iterate independent of read/update classification.
func (r *Record) TrackedJigs() []*ownership.Jig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ownership.Jig{}, r.order...)
}
