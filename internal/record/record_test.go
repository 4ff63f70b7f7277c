package record

import (
	"strings"
	"testing"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/ownership"
	"github.com/runkernel/kernel/internal/rules"
)

var (
	txA = strings.Repeat("a", 64)
	txB = strings.Repeat("b", 64)
)

func committedJig(t *testing.T, origin, location string, nonce uint64) *ownership.Jig {
	t.Helper()
	j := ownership.NewUndeployed(rules.KindJigInstance)
	if err := j.BeginDeploy(); err != nil {
		t.Fatalf("begin deploy: %v", err)
	}
	b := bindings.Bindings{Origin: origin, Location: location, Nonce: nonce, Owner: bindings.NewCommonLock(bindings.AddressZero)}
	if err := j.CommitDeploy(b); err != nil {
		t.Fatalf("commit deploy: %v", err)
	}
	return j
}

func TestRecordClassifiesReadsAndUpdates(t *testing.T) {
	r := New("abc")
	readOnly := committedJig(t, txA+"_o1", txA+"_o1", 1)
	mutated := committedJig(t, txB+"_o1", txB+"_o1", 1)

	r.RecordRead(readOnly)
	r.RecordUpdate(mutated)

	script, err := r.Close("myapp", 1)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(script.Refs) != 1 || script.Refs[0] != readOnly {
		t.Fatalf("expected readOnly in refs, got %+v", script.Refs)
	}
	if len(script.Outputs) != 1 || script.Outputs[0] != mutated {
		t.Fatalf("expected mutated in outputs, got %+v", script.Outputs)
	}
	if len(script.Inputs) != 1 || script.Inputs[0] != mutated {
		t.Fatalf("expected mutated (nonce>0) in inputs, got %+v", script.Inputs)
	}
}

func TestRecordDetectsInconsistentWorldview(t *testing.T) {
	r := New("abc")
	a1 := committedJig(t, txA+"_o1", txA+"_o1", 1)
	a2 := committedJig(t, txA+"_o1", txB+"_o1", 2) // same origin, different location

	r.RecordRead(a1)
	r.RecordRead(a2)

	if err := r.CheckConsistency(); err == nil {
		t.Fatal("expected Inconsistent worldview error")
	}
}

func TestRecordCloseTwiceFails(t *testing.T) {
	r := New("abc")
	if _, err := r.Close("app", 1); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := r.Close("app", 1); err == nil {
		t.Fatal("expected second close to fail")
	}
}

func TestRecordPoisonedRecordCannotClose(t *testing.T) {
	r := New("abc")
	r.Poison()
	if _, err := r.Close("app", 1); err == nil {
		t.Fatal("expected close on poisoned record to fail")
	}
}

func TestRecordRollbackRestoresSnapshot(t *testing.T) {
	r := New("abc")
	j := committedJig(t, txA+"_o1", txA+"_o1", 1)
	r.RecordUpdate(j)

	before, _ := j.Snapshot()
	j.MarkUnbound()

	r.Rollback()

	after, state := j.Snapshot()
	if after.Location != before.Location || state != ownership.StateLive {
		t.Fatalf("rollback did not restore snapshot: %+v state=%v", after, state)
	}
	if err := j.RequireLive(); err != nil {
		t.Fatalf("expected live and bound after rollback: %v", err)
	}
}

func TestMarkCreatedAndDestroyed(t *testing.T) {
	r := New("abc")
	created := committedJig(t, txA+"_o1", txA+"_o1", 1)
	destroyed := committedJig(t, txB+"_o1", txB+"_o1", 1)

	r.MarkCreated(created)
	r.MarkDestroyed(destroyed)

	script, err := r.Close("app", 1)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(script.Outputs) != 1 || script.Outputs[0] != created {
		t.Fatalf("expected created jig among outputs, got %+v", script.Outputs)
	}
	if len(script.Deletes) != 1 || script.Deletes[0] != destroyed {
		t.Fatalf("expected destroyed jig among deletes, got %+v", script.Deletes)
	}
}
