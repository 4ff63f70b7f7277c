package membrane

import (
	"testing"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/ownership"
	"github.com/runkernel/kernel/internal/rules"
	"github.com/runkernel/kernel/internal/sandbox"
)

type fakeRecorder struct {
	reads, updates, calls int
}

func (f *fakeRecorder) RecordRead(interface{})   { f.reads++ }
func (f *fakeRecorder) RecordUpdate(interface{}) { f.updates++ }
func (f *fakeRecorder) RecordCall(interface{}, string, []sandbox.Value) { f.calls++ }

func liveJig(t *testing.T, kind rules.Kind) *ownership.Jig {
	t.Helper()
	j := ownership.NewUndeployed(kind)
	if err := j.BeginDeploy(); err != nil {
		t.Fatalf("begin deploy: %v", err)
	}
	addr := bindings.AddressZero
	b := bindings.Bindings{Origin: "record://abc_o1", Location: "record://abc_o1", Nonce: 1, Owner: bindings.NewCommonLock(addr), Satoshis: 0}
	if err := j.CommitDeploy(b); err != nil {
		t.Fatalf("commit deploy: %v", err)
	}
	return j
}

func TestPrivatePropertyBlockedFromOutside(t *testing.T) {
	j := liveJig(t, rules.KindJigInstance)
	rec := &fakeRecorder{}
	m := New(j, rules.Predefined(rules.KindJigInstance), j, rec, map[string]sandbox.Value{"_x": 1.0})
	if _, err := m.Get("_x", true); err == nil {
		t.Fatal("expected private property read to fail from outside")
	}
	if _, err := m.Get("_x", false); err != nil {
		t.Fatalf("expected private property read to succeed from inside: %v", err)
	}
}

func TestLocationFieldsReadOnly(t *testing.T) {
	j := liveJig(t, rules.KindJigInstance)
	m := New(j, rules.Predefined(rules.KindJigInstance), j, nil, nil)
	if err := m.Set("location", "whatever", false); err == nil {
		t.Fatal("expected location write to fail")
	}
	v, err := m.Get("location", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "record://abc_o1" {
		t.Fatalf("got %v", v)
	}
}

func TestImmutableKindRejectsWrites(t *testing.T) {
	j := liveJig(t, rules.KindBerryInstance)
	m := New(j, rules.Predefined(rules.KindBerryInstance), j, nil, nil)
	if err := m.Set("x", 1.0, false); err == nil {
		t.Fatal("expected immutable set to fail")
	}
}

func TestWriteFromOutsideRejected(t *testing.T) {
	j := liveJig(t, rules.KindJigInstance)
	m := New(j, rules.Predefined(rules.KindJigInstance), j, nil, nil)
	if err := m.Set("x", 1.0, true); err == nil {
		t.Fatal("expected external write to fail")
	}
}

func TestReservedNameRejected(t *testing.T) {
	j := liveJig(t, rules.KindJigInstance)
	m := New(j, rules.Predefined(rules.KindJigInstance), j, nil, nil)
	if err := m.Set("prototype", 1.0, false); err == nil {
		t.Fatal("expected reserved name write to fail")
	}
}

func TestOwnerChangeMarksUnbound(t *testing.T) {
	j := liveJig(t, rules.KindJigInstance)
	m := New(j, rules.Predefined(rules.KindJigInstance), j, nil, nil)
	newAddr := bindings.AddressZero
	if err := m.Set("owner", bindings.NewCommonLock(newAddr), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.RequireLive(); err == nil {
		t.Fatal("expected RequireLive to fail once unbound")
	}
}

func TestInitDisabledAfterFirstCall(t *testing.T) {
	j := liveJig(t, rules.KindCodeJig)
	m := New(j, rules.Predefined(rules.KindCodeJig), j, nil, nil)
	if err := m.Call("init", nil, false); err != nil {
		t.Fatalf("first init call should succeed: %v", err)
	}
	if err := m.Call("init", nil, false); err == nil {
		t.Fatal("expected second init call to fail")
	}
}

func TestRecordReadsUpdatesCalls(t *testing.T) {
	j := liveJig(t, rules.KindJigInstance)
	rec := &fakeRecorder{}
	m := New(j, rules.Predefined(rules.KindJigInstance), j, rec, nil)
	if _, err := m.Get("anything", false); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := m.Set("anything", 1.0, false); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := m.Call("doThing", nil, false); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if rec.reads == 0 || rec.updates == 0 || rec.calls == 0 {
		t.Fatalf("expected all three to be recorded, got %+v", rec)
	}
}

func TestPreventExtensionsBlocksNewFields(t *testing.T) {
	j := liveJig(t, rules.KindJigInstance)
	m := New(j, rules.Predefined(rules.KindJigInstance), j, nil, map[string]sandbox.Value{"a": 1.0})
	m.PreventExtensions()
	if err := m.Set("a", 2.0, false); err != nil {
		t.Fatalf("existing field should remain settable: %v", err)
	}
	if err := m.Set("b", 1.0, false); err == nil {
		t.Fatal("expected new field to be rejected once sealed")
	}
}
