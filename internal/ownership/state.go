// Package ownership implements the jig lifecycle state machine:
// undeployed -> deploying -> live -> {spent, destroyed}, plus the
// per-action "unbound" sub-state guarding ambiguous owner/satoshis changes.
// Grounded in the UTXO lifecycle embedded in core/ledger.go (a ledger entry
// moves from pooled to confirmed to spent) generalized from a fixed
// token-balance ledger to an arbitrary jig's identity bindings.
package ownership

import (
	"fmt"
	"sync"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/rules"
)

// State is a jig's position in the lifecycle state machine.
type State int

const (
	StateUndeployed State = iota
	StateDeploying
	StateLive
	StateSpent
	StateDestroyed
	StatePoisoned
)

func (s State) String() string {
	switch s {
	case StateUndeployed:
		return "undeployed"
	case StateDeploying:
		return "deploying"
	case StateLive:
		return "live"
	case StateSpent:
		return "spent"
	case StateDestroyed:
		return "destroyed"
	case StatePoisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

// Jig is the runtime identity + lifecycle record for one jig, berry, or
// sidekick object. The membrane wraps a Jig's live value; Jig itself only
// tracks bindings and state-machine transitions.
type Jig struct {
	mu       sync.Mutex
	Kind     rules.Kind
	Bindings bindings.Bindings
	State    State

	// unbound is true for the remainder of the current action once owner or
	// satoshis has changed. It is cleared at commit.
	unbound bool
}

// NewUndeployed allocates a jig awaiting its first deploy/new/load.
func NewUndeployed(kind rules.Kind) *Jig {
	return &Jig{Kind: kind, State: StateUndeployed}
}

// BeginDeploy transitions undeployed -> deploying, the only legal
// predecessor state for a deploy/new/load attempt.
func (j *Jig) BeginDeploy() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != StateUndeployed {
		return fmt.Errorf("Execution: cannot deploy jig in state %s", j.State)
	}
	j.State = StateDeploying
	return nil
}

// CommitDeploy transitions deploying -> live with the bindings produced by
// the commit (nonce 1, origin==location).
func (j *Jig) CommitDeploy(b bindings.Bindings) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != StateDeploying {
		return fmt.Errorf("Execution: cannot commit deploy from state %s", j.State)
	}
	if err := b.CheckInvariants(); err != nil {
		return err
	}
	j.Bindings = b
	j.State = StateLive
	return nil
}

// FailDeploy poisons a jig whose deploy could not be rolled back cleanly.
func (j *Jig) FailDeploy() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.State = StatePoisoned
}

// RequireLive returns an error unless the jig is live and not currently
// unbound, the precondition for auth/destroy/committed-ownership reads.
func (j *Jig) RequireLive() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.State {
	case StatePoisoned:
		return fmt.Errorf("Execution: Deploy failed")
	case StateDestroyed:
		return fmt.Errorf("Ownership: cannot auth destroyed jig")
	case StateLive:
		if j.unbound {
			return fmt.Errorf("Ownership: unbound owner or satoshis value")
		}
		return nil
	default:
		return fmt.Errorf("Execution: jig is not live (state=%s)", j.State)
	}
}

// MarkUnbound flips the per-action unbound sub-state after an owner or
// satoshis change, guarding against a subsequent auth/destroy in the same
// script.
func (j *Jig) MarkUnbound() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.unbound = true
}

// Rebind clears the unbound sub-state and commits new bindings at the end
// of a successful publish, bumping the nonce.
func (j *Jig) Rebind(b bindings.Bindings) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != StateLive {
		return fmt.Errorf("Execution: cannot rebind jig in state %s", j.State)
	}
	if err := b.CheckInvariants(); err != nil {
		return err
	}
	j.Bindings = b
	j.unbound = false
	return nil
}

// Destroy transitions live -> destroyed. The location passed in must already
// carry a deletion-slot suffix; callers build it via bindings.Location.
func (j *Jig) Destroy(location string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != StateLive {
		return fmt.Errorf("Execution: cannot destroy jig in state %s", j.State)
	}
	j.Bindings.Location = location
	j.Bindings.Owner = nil
	j.Bindings.Satoshis = 0
	j.State = StateDestroyed
	j.unbound = false
	return nil
}

// ApplyBindingEdit updates the live owner/satoshis bindings mid-action,
// before MarkUnbound's caller records the pending unbound sub-state. Unlike
// Rebind/CommitDeploy it does not check invariants or touch nonce, since the
// binding is intentionally provisional until the record commits.
func (j *Jig) ApplyBindingEdit(b bindings.Bindings) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Bindings = b
}

// Rollback restores a jig to a previously captured snapshot after a failed
// publish, leaving it live and bound.
func (j *Jig) Rollback(snapshot bindings.Bindings, state State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Bindings = snapshot
	j.State = state
	j.unbound = false
}

// Snapshot captures the current bindings and state for potential rollback.
func (j *Jig) Snapshot() (bindings.Bindings, State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Bindings, j.State
}
