package codec

import (
	"math"
	"testing"

	"github.com/runkernel/kernel/internal/sandbox"
)

//-------------------------------------------------------------
// Test canonical key ordering
//-------------------------------------------------------------

func TestEncodeCanonicalKeyOrder(t *testing.T) {
	obj := &PlainObject{Fields: map[string]Value{
		"b":  1.0,
		"a":  2.0,
		"10": 3.0,
		"2":  4.0,
	}}
	out, err := Encode(obj, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"2":4,"10":3,"a":2,"b":1}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}

//-------------------------------------------------------------
// Test plain array round-trips bare, no $arr tag, unless sparse
//-------------------------------------------------------------

func TestEncodeDenseArrayIsBare(t *testing.T) {
	arr := &PlainArray{Items: []Value{1.0, 2.0, 3.0}}
	out, err := Encode(arr, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `[1,2,3]`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}

func TestEncodeSparseArrayUsesArrTag(t *testing.T) {
	arr := &PlainArray{Items: []Value{1.0}, Extra: map[string]Value{"foo": "bar"}}
	out, err := Encode(arr, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"$arr":[1],"props":{"foo":"bar"}}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}

//-------------------------------------------------------------
// Test round-trip across every tag
//-------------------------------------------------------------

func TestRoundTripPrimitives(t *testing.T) {
	tests := []struct {
		name string
		in   Value
	}{
		{"nil", nil},
		{"bool-true", true},
		{"bool-false", false},
		{"string", "hello"},
		{"number", 3.5},
		{"negative-zero", negZero()},
		{"nan", nan()},
		{"inf", inf()},
		{"ninf", ninf()},
		{"undefined", Undefined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Encode(tc.in, Hooks{})
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := Decode(out, Hooks{})
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			assertSameShape(t, tc.in, got)
		})
	}
}

func TestRoundTripPlainObjectAndArray(t *testing.T) {
	obj := &PlainObject{Fields: map[string]Value{
		"name":  "widget",
		"count": 3.0,
		"tags":  &PlainArray{Items: []Value{"a", "b"}},
	}}
	out, err := Encode(obj, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(out, Hooks{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded, ok := got.(*PlainObject)
	if !ok {
		t.Fatalf("got %T, want *PlainObject", got)
	}
	if decoded.Fields["name"] != "widget" {
		t.Fatalf("name = %v", decoded.Fields["name"])
	}
	tags, ok := decoded.Fields["tags"].(*PlainArray)
	if !ok || len(tags.Items) != 2 || tags.Items[0] != "a" {
		t.Fatalf("tags = %v", decoded.Fields["tags"])
	}
}

func TestRoundTripEscapedDollarKey(t *testing.T) {
	obj := &PlainObject{Fields: map[string]Value{"$arr": "not actually an array"}}
	out, err := Encode(obj, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"$obj":{"$arr":"not actually an array"}}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
	got, err := Decode(out, Hooks{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded := got.(*PlainObject)
	if decoded.Fields["$arr"] != "not actually an array" {
		t.Fatalf("got %v", decoded.Fields["$arr"])
	}
}

func TestRoundTripByteArraySetMap(t *testing.T) {
	realm := sandbox.NewRealm(0)
	ba := sandbox.NewByteArray(realm, []byte{1, 2, 3})
	set := sandbox.NewOrderedSet(realm)
	set.Add("x")
	set.Add("y")
	m := sandbox.NewOrderedMap(realm)
	m.Set("k1", "v1")
	m.Set("k2", "v2")

	container := &PlainArray{Items: []Value{ba, set, m}}
	out, err := Encode(container, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(out, Hooks{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, ok := got.(*PlainArray)
	if !ok || len(arr.Items) != 3 {
		t.Fatalf("got %v", got)
	}
	gotBA, ok := arr.Items[0].(*sandbox.ByteArray)
	if !ok || string(gotBA.Bytes) != string([]byte{1, 2, 3}) {
		t.Fatalf("byte array mismatch: %v", arr.Items[0])
	}
	gotSet, ok := arr.Items[1].(*sandbox.OrderedSet)
	if !ok || gotSet.Size() != 2 || !gotSet.Has("x") {
		t.Fatalf("set mismatch: %v", arr.Items[1])
	}
	gotMap, ok := arr.Items[2].(*sandbox.OrderedMap)
	if !ok || gotMap.Size() != 2 {
		t.Fatalf("map mismatch: %v", arr.Items[2])
	}
}

//-------------------------------------------------------------
// Test $dup handles shared references and cycles
//-------------------------------------------------------------

func TestEncodeDecodeSharedReferenceUsesDup(t *testing.T) {
	shared := &PlainObject{Fields: map[string]Value{"v": 1.0}}
	container := &PlainArray{Items: []Value{shared, shared}}
	out, err := Encode(container, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(out, Hooks{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr := got.(*PlainArray)
	first := arr.Items[0].(*PlainObject)
	second := arr.Items[1].(*PlainObject)
	if first != second {
		t.Fatalf("expected shared identity to survive round-trip, got distinct objects")
	}
}

func TestEncodeDecodeCycle(t *testing.T) {
	obj := &PlainObject{Fields: map[string]Value{}}
	obj.Fields["self"] = obj
	out, err := Encode(obj, Hooks{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(out, Hooks{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded := got.(*PlainObject)
	if decoded.Fields["self"].(*PlainObject) != decoded {
		t.Fatalf("expected cycle to reconstruct self-reference")
	}
}

//-------------------------------------------------------------
// Test jig reference hooks
//-------------------------------------------------------------

func TestJigRefHooksRoundTrip(t *testing.T) {
	hooks := Hooks{
		EncodeJig: func(v Value) (string, bool, error) { return "ref-42", true, nil },
		DecodeJig: func(ref string) (Value, error) { return "resolved:" + ref, nil },
	}
	ref := &JigRef{Ref: "anything"}
	out, err := Encode(ref, hooks)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"$jig":"ref-42"}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
	got, err := Decode(out, hooks)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded := got.(*JigRef)
	if decoded.Ref != "resolved:ref-42" {
		t.Fatalf("got %v", decoded.Ref)
	}
}

func TestEncodeJigRefWithoutHookFails(t *testing.T) {
	ref := &JigRef{Ref: "anything"}
	if _, err := Encode(ref, Hooks{}); err == nil {
		t.Fatal("expected error with no EncodeJig hook configured")
	}
}

//-------------------------------------------------------------
// helpers
//-------------------------------------------------------------

func negZero() float64 { return math.Copysign(0, -1) }
func nan() float64     { return math.NaN() }
func inf() float64     { return math.Inf(1) }
func ninf() float64    { return math.Inf(-1) }

func assertSameShape(t *testing.T, want, got Value) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Fatalf("got %v, want nil", got)
		}
		return
	}
	if want == Undefined {
		if got != Undefined {
			t.Fatalf("got %v, want Undefined", got)
		}
		return
	}
	if wf, ok := want.(float64); ok {
		gf, ok := got.(float64)
		if !ok {
			t.Fatalf("got %T, want float64", got)
		}
		if isNaN(wf) {
			if !isNaN(gf) {
				t.Fatalf("got %v, want NaN", gf)
			}
			return
		}
		if wf != gf || math.Signbit(wf) != math.Signbit(gf) {
			t.Fatalf("got %v, want %v", gf, wf)
		}
		return
	}
	if want != got {
		t.Fatalf("got %v (%T), want %v (%T)", got, got, want, want)
	}
}

func isNaN(f float64) bool { return f != f }
