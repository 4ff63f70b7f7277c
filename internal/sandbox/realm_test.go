package sandbox

import "testing"

func TestCompileRejectsAnonymous(t *testing.T) {
	r := NewRealm(0)
	_, err := r.Compile(&ClassSource{}, Dependencies{})
	if err == nil {
		t.Fatal("expected error for anonymous class")
	}
}

func TestCompileRejectsReservedFieldName(t *testing.T) {
	r := NewRealm(0)
	src := &ClassSource{Name: "A", Fields: map[string]Value{"prototype": 1}}
	if _, err := r.Compile(src, Dependencies{}); err == nil {
		t.Fatal("expected error for reserved field name")
	}
}

func TestCompileRequiresParentDependency(t *testing.T) {
	r := NewRealm(0)
	parent := &ClassSource{Name: "Base"}
	child := &ClassSource{Name: "Child", Parent: parent}
	if _, err := r.Compile(child, Dependencies{}); err == nil {
		t.Fatal("expected error when parent dependency missing")
	}
	if _, err := r.Compile(child, Dependencies{"Base": parent}); err != nil {
		t.Fatalf("unexpected error with parent supplied: %v", err)
	}
}

func TestDependenciesResolveUnresolvedAtCallTime(t *testing.T) {
	deps := Dependencies{}
	_, err := deps.Resolve("notThere")
	var undef *UndefinedError
	if err == nil {
		t.Fatal("expected undefined error")
	}
	if !errorsAs(err, &undef) {
		t.Fatalf("expected *UndefinedError, got %T", err)
	}
}

func TestBannedIdentifierWinsOverUserDependency(t *testing.T) {
	deps := Dependencies{"Date": "shadow attempt"}
	_, err := deps.Resolve("Date")
	var disabled *DisabledError
	if !errorsAs(err, &disabled) {
		t.Fatalf("expected *DisabledError, got %v", err)
	}
}

func TestMeterChargesUntilBudgetExhausted(t *testing.T) {
	m := NewMeter(25)
	if err := m.Charge(OpRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Charge(OpNew); err == nil {
		t.Fatal("expected resource limit error")
	}
}

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	r := NewRealm(0)
	m := NewOrderedMap(r)
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("10", 3)
	entries := m.Entries()
	if len(entries) != 3 || entries[0][0] != "b" || entries[2][0] != "10" {
		t.Fatalf("unexpected order: %v", entries)
	}
}

func TestMeterSpentTracksCumulativeCharges(t *testing.T) {
	m := NewMeter(0) // unbounded
	m.Charge(OpRead)
	m.Charge(OpCall)
	if got, want := m.Spent(), Cost(OpRead)+Cost(OpCall); got != want {
		t.Fatalf("got spent=%d, want %d", got, want)
	}
}

func TestCostFallsBackToDefaultForUnknownKind(t *testing.T) {
	if got := Cost(OpKind(99)); got != DefaultCost {
		t.Fatalf("got %d, want DefaultCost %d", got, DefaultCost)
	}
}

func TestByteArrayCopiesInputAndTagsRealm(t *testing.T) {
	r := NewRealm(7)
	src := []byte{1, 2, 3}
	ba := NewByteArray(r, src)
	src[0] = 0xff
	if ba.Bytes[0] == 0xff {
		t.Fatal("expected NewByteArray to copy its input, not alias it")
	}
	if ba.RealmID != r.ID {
		t.Fatalf("expected RealmID %d, got %d", r.ID, ba.RealmID)
	}
}

func TestDetachedByteArrayAttachesToRealm(t *testing.T) {
	ba := NewDetachedByteArray()
	if ba.RealmID != 0 {
		t.Fatalf("expected a detached byte array to start with no realm, got %d", ba.RealmID)
	}
	r := NewRealm(3)
	ba.Attach(r)
	if ba.RealmID != r.ID {
		t.Fatalf("expected Attach to tag the realm, got %d", ba.RealmID)
	}
}

func TestOrderedMapOverwriteAndDelete(t *testing.T) {
	r := NewRealm(0)
	m := NewOrderedMap(r)
	m.Set("a", 1)
	m.Set("a", 2)
	if v, ok := m.Get("a"); !ok || v != 2 {
		t.Fatalf("expected overwrite to replace the value, got %v, %v", v, ok)
	}
	if m.Size() != 1 {
		t.Fatalf("expected size 1 after overwrite, got %d", m.Size())
	}
	if !m.Delete("a") {
		t.Fatal("expected delete to succeed for a present key")
	}
	if m.Delete("a") {
		t.Fatal("expected a second delete of the same key to report false")
	}
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected a deleted key to no longer resolve")
	}
}

func TestOrderedSetAddHasDeletePreservesRemainingOrder(t *testing.T) {
	r := NewRealm(0)
	s := NewOrderedSet(r)
	s.Add("x")
	s.Add("y")
	s.Add("x") // duplicate, should not grow the set
	if s.Size() != 2 {
		t.Fatalf("expected size 2 after a duplicate add, got %d", s.Size())
	}
	if !s.Has("x") || !s.Has("y") {
		t.Fatal("expected both distinct values present")
	}
	if !s.Delete("x") {
		t.Fatal("expected delete of a present value to succeed")
	}
	if s.Has("x") {
		t.Fatal("expected deleted value to be gone")
	}
	vals := s.Values()
	if len(vals) != 1 || vals[0] != "y" {
		t.Fatalf("expected only \"y\" to remain in order, got %v", vals)
	}
}

// errorsAs is a tiny local wrapper so this file doesn't need to import
// "errors" just for a single call in five places.
func errorsAs(err error, target interface{}) bool {
	switch t := target.(type) {
	case **UndefinedError:
		e, ok := err.(*UndefinedError)
		if ok {
			*t = e
		}
		return ok
	case **DisabledError:
		e, ok := err.(*DisabledError)
		if ok {
			*t = e
		}
		return ok
	}
	return false
}
