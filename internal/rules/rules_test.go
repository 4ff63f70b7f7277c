package rules

import "testing"

func TestPredefinedReturnsDistinctRulesPerKind(t *testing.T) {
	jig := Predefined(KindJigInstance)
	code := Predefined(KindCodeJig)
	if jig == code {
		t.Fatal("expected distinct Rules records for distinct kinds")
	}
	if !jig.MethodDisabled("init") {
		t.Fatal("expected a jig instance's init to be disabled by default (only the deploying code jig runs init)")
	}
	if code.MethodDisabled("init") {
		t.Fatal("expected a code jig's init to be enabled")
	}
}

func TestWeakenStripsBindingSemantics(t *testing.T) {
	r := Predefined(KindJigInstance)
	w := r.Weaken()
	if w.LocationBindings || w.UTXOBindings || w.RecordableTarget || w.BindingSurface != NoBindings {
		t.Fatalf("expected a weakened copy to strip all binding semantics, got %+v", w)
	}
	if !r.LocationBindings {
		t.Fatal("expected Weaken to leave the original predefined record untouched")
	}
}

func TestCanWriteReflectsImmutable(t *testing.T) {
	if !Predefined(KindJigInstance).CanWrite() {
		t.Fatal("expected a jig instance to be writable")
	}
	if Predefined(KindBerryInstance).CanWrite() {
		t.Fatal("expected a berry instance to be immutable")
	}
}

func TestKindStringCoversAllKnownKinds(t *testing.T) {
	kinds := []Kind{
		KindCodeJig, KindJigInstance, KindSidekickCode, KindBerryClass,
		KindBerryInstance, KindNativeCode, KindArbitraryObject,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "unknown-kind" {
			t.Fatalf("expected %v to render to a real name", k)
		}
		if seen[s] {
			t.Fatalf("expected distinct kind names, got duplicate %q", s)
		}
		seen[s] = true
	}
}
