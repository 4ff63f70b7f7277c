package ownership

import (
	"testing"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/rules"
)

const testTxID = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9"

func deployedBindings(owner bindings.Lock) bindings.Bindings {
	loc := testTxID + "_o0"
	return bindings.Bindings{Origin: loc, Location: loc, Nonce: 1, Owner: owner}
}

func TestLifecycleUndeployedThroughLive(t *testing.T) {
	j := NewUndeployed(rules.KindJigInstance)
	if j.State != StateUndeployed {
		t.Fatalf("expected a fresh jig to start undeployed, got %s", j.State)
	}
	if err := j.BeginDeploy(); err != nil {
		t.Fatalf("begin deploy: %v", err)
	}
	if j.State != StateDeploying {
		t.Fatalf("expected deploying, got %s", j.State)
	}
	lock := bindings.NewCommonLock(bindings.Address{1})
	if err := j.CommitDeploy(deployedBindings(lock)); err != nil {
		t.Fatalf("commit deploy: %v", err)
	}
	if j.State != StateLive {
		t.Fatalf("expected live, got %s", j.State)
	}
	if err := j.RequireLive(); err != nil {
		t.Fatalf("expected RequireLive to pass, got %v", err)
	}
}

func TestBeginDeployRejectsWrongPredecessorState(t *testing.T) {
	j := NewUndeployed(rules.KindJigInstance)
	if err := j.BeginDeploy(); err != nil {
		t.Fatalf("begin deploy: %v", err)
	}
	if err := j.BeginDeploy(); err == nil {
		t.Fatal("expected a second BeginDeploy to fail from the deploying state")
	}
}

func TestCommitDeployRejectsInvalidBindings(t *testing.T) {
	j := NewUndeployed(rules.KindJigInstance)
	if err := j.BeginDeploy(); err != nil {
		t.Fatalf("begin deploy: %v", err)
	}
	bad := bindings.Bindings{Origin: testTxID + "_o0", Location: testTxID + "_o1", Nonce: 1}
	if err := j.CommitDeploy(bad); err == nil {
		t.Fatal("expected CommitDeploy to reject bindings that fail CheckInvariants")
	}
	if j.State != StateDeploying {
		t.Fatalf("expected state to remain deploying after a rejected commit, got %s", j.State)
	}
}

func TestDestroyThenRequireLiveFails(t *testing.T) {
	j := NewUndeployed(rules.KindJigInstance)
	j.BeginDeploy()
	lock := bindings.NewCommonLock(bindings.Address{1})
	if err := j.CommitDeploy(deployedBindings(lock)); err != nil {
		t.Fatalf("commit deploy: %v", err)
	}
	if err := j.Destroy(testTxID + "_d0"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if j.State != StateDestroyed {
		t.Fatalf("expected destroyed, got %s", j.State)
	}
	b, _ := j.Snapshot()
	if b.Owner != nil || b.Satoshis != 0 {
		t.Fatalf("expected a destroyed jig's owner/satoshis cleared, got %+v", b)
	}
	if err := j.RequireLive(); err == nil {
		t.Fatal("expected RequireLive to fail on a destroyed jig")
	}
}

func TestMarkUnboundBlocksRequireLiveUntilRebind(t *testing.T) {
	j := NewUndeployed(rules.KindJigInstance)
	j.BeginDeploy()
	lock := bindings.NewCommonLock(bindings.Address{1})
	j.CommitDeploy(deployedBindings(lock))

	j.MarkUnbound()
	if err := j.RequireLive(); err == nil {
		t.Fatal("expected RequireLive to fail while unbound")
	}

	next := bindings.Bindings{Origin: testTxID + "_o0", Location: testTxID + "_o1", Nonce: 2, Owner: lock}
	if err := j.Rebind(next); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if err := j.RequireLive(); err != nil {
		t.Fatalf("expected RequireLive to pass after rebind clears unbound, got %v", err)
	}
}

func TestFailDeployPoisonsAndBlocksRequireLive(t *testing.T) {
	j := NewUndeployed(rules.KindJigInstance)
	j.BeginDeploy()
	j.FailDeploy()
	if j.State != StatePoisoned {
		t.Fatalf("expected poisoned, got %s", j.State)
	}
	if err := j.RequireLive(); err == nil {
		t.Fatal("expected RequireLive to fail on a poisoned jig")
	}
}

func TestRollbackRestoresSnapshot(t *testing.T) {
	j := NewUndeployed(rules.KindJigInstance)
	j.BeginDeploy()
	lock := bindings.NewCommonLock(bindings.Address{1})
	initial := deployedBindings(lock)
	j.CommitDeploy(initial)

	snap, state := j.Snapshot()
	j.MarkUnbound()
	j.Rollback(snap, state)

	if err := j.RequireLive(); err != nil {
		t.Fatalf("expected rollback to restore a bound live jig, got %v", err)
	}
	got, _ := j.Snapshot()
	if got != initial {
		t.Fatalf("expected rollback to restore the exact snapshot, got %+v", got)
	}
}
