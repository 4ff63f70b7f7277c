package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/runkernel/kernel/internal/determinism"
	"github.com/runkernel/kernel/internal/sandbox"
)

// node is the intermediate canonical tree Encode builds before writing
// bytes. Keeping this separate from raw JSON text lets us control key
// order precisely, which encoding/json's map marshaling cannot do.
type node interface{ writeTo(b *strings.Builder) }

type nullNode struct{}

func (nullNode) writeTo(b *strings.Builder) { b.WriteString("null") }

type rawNode string

func (r rawNode) writeTo(b *strings.Builder) { b.WriteString(string(r)) }

type arrayNode []node

func (a arrayNode) writeTo(b *strings.Builder) {
	b.WriteByte('[')
	for i, n := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		n.writeTo(b)
	}
	b.WriteByte(']')
}

// objectNode holds its entries pre-sorted by the canonical comparator.
type objectNode struct {
	keys   []string
	values map[string]node
}

func newObjectNode() *objectNode {
	return &objectNode{values: map[string]node{}}
}

func (o *objectNode) set(key string, v node) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *objectNode) writeTo(b *strings.Builder) {
	keys := append([]string{}, o.keys...)
	determinism.SortKeys(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(b, k)
		b.WriteByte(':')
		o.values[k].writeTo(b)
	}
	b.WriteByte('}')
}

func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

func stringNode(s string) node {
	var b strings.Builder
	writeJSONString(&b, s)
	return rawNode(b.String())
}

// encoder walks a value graph once, emitting each fresh reference-typed
// value at its first occurrence and a $dup path thereafter.
type encoder struct {
	hooks Hooks
	seen  map[interface{}]string // reference identity -> path where first emitted
}

// Encode canonically serializes v to the restricted JSON-shaped grammar.
func Encode(v Value, hooks Hooks) ([]byte, error) {
	enc := &encoder{hooks: hooks, seen: map[interface{}]string{}}
	n, err := enc.encodeValue(v, "$")
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	n.writeTo(&b)
	return []byte(b.String()), nil
}

func pathChild(base, key string) string { return base + "." + key }
func pathIndex(base string, i int) string {
	return base + "[" + strconv.Itoa(i) + "]"
}

func (e *encoder) encodeValue(v Value, path string) (node, error) {
	switch t := v.(type) {
	case nil:
		return nullNode{}, nil
	case undefinedType:
		o := newObjectNode()
		o.set("$und", rawNode("true"))
		return o, nil
	case bool:
		if t {
			return rawNode("true"), nil
		}
		return rawNode("false"), nil
	case string:
		return stringNode(t), nil
	case float64:
		return e.encodeNumber(t), nil
	case int:
		return rawNode(strconv.Itoa(t)), nil
	case int64:
		return rawNode(strconv.FormatInt(t, 10)), nil
	case uint64:
		return rawNode(strconv.FormatUint(t, 10)), nil
	case *sandbox.ByteArray:
		return e.encodeRef(t, path, func() (node, error) {
			o := newObjectNode()
			o.set("$ui8a", stringNode(base64.StdEncoding.EncodeToString(t.Bytes)))
			return o, nil
		})
	case *sandbox.OrderedSet:
		return e.encodeRef(t, path, func() (node, error) {
			items := t.Values()
			arr := make(arrayNode, len(items))
			for i, it := range items {
				n, err := e.encodeValue(it, pathIndex(path+".$set", i))
				if err != nil {
					return nil, err
				}
				arr[i] = n
			}
			o := newObjectNode()
			o.set("$set", arr)
			return o, nil
		})
	case *sandbox.OrderedMap:
		return e.encodeRef(t, path, func() (node, error) {
			entries := t.Entries()
			arr := make(arrayNode, len(entries))
			for i, kv := range entries {
				kn, err := e.encodeValue(kv[0], pathIndex(path+".$map", i)+".0")
				if err != nil {
					return nil, err
				}
				vn, err := e.encodeValue(kv[1], pathIndex(path+".$map", i)+".1")
				if err != nil {
					return nil, err
				}
				arr[i] = arrayNode{kn, vn}
			}
			o := newObjectNode()
			o.set("$map", arr)
			return o, nil
		})
	case *PlainArray:
		return e.encodeRef(t, path, func() (node, error) {
			return e.encodePlainArray(t, path)
		})
	case []Value:
		return e.encodeValue(&PlainArray{Items: t}, path)
	case *PlainObject:
		return e.encodeRef(t, path, func() (node, error) {
			return e.encodePlainObject(t, path)
		})
	case map[string]Value:
		return e.encodeValue(&PlainObject{Fields: t}, path)
	case *Arbitrary:
		return e.encodeRef(t, path, func() (node, error) {
			o := newObjectNode()
			stateNode, err := e.encodeValue(t.State, path+".$arb")
			if err != nil {
				return nil, err
			}
			o.set("$arb", stateNode)
			classNode, err := e.encodeValue(t.Class, path+".T")
			if err != nil {
				return nil, err
			}
			o.set("T", classNode)
			return o, nil
		})
	case *JigRef:
		if e.hooks.EncodeJig == nil {
			return nil, fmt.Errorf("unsupported value: no EncodeJig hook configured for jig reference")
		}
		ref, ok, err := e.hooks.EncodeJig(t.Ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("unsupported value: EncodeJig hook rejected reference")
		}
		o := newObjectNode()
		o.set("$jig", stringNode(ref))
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported value: %T cannot be encoded", v)
	}
}

// encodeRef handles the $dup bookkeeping shared by every reference-typed
// (pointer) value: first occurrence builds and caches the node under path,
// later occurrences emit {"$dup": [path-segments...]}.
func (e *encoder) encodeRef(ref interface{}, path string, build func() (node, error)) (node, error) {
	if firstPath, ok := e.seen[ref]; ok {
		return dupNode(firstPath), nil
	}
	e.seen[ref] = path
	return build()
}

func dupNode(path string) node {
	o := newObjectNode()
	segs := splitPath(path)
	arr := make(arrayNode, len(segs))
	for i, s := range segs {
		arr[i] = stringNode(s)
	}
	o.set("$dup", arr)
	return o
}

func splitPath(path string) []string {
	// path is built as "$.field[0].field2"; resolveDupPath (decode.go)
	// rejoins these segments with "." to find the referenced node again, so a
	// simple split is sufficient and keeps duplicate-path resolution O(1) per node.
	return strings.Split(strings.TrimPrefix(path, "$"), ".")
}

// encodePlainArray encodes a dense array as a bare JSON array. Only an
// array carrying sparse indices or non-index properties (Extra) needs the
// $arr tag to distinguish it from an ordinary array on decode.
func (e *encoder) encodePlainArray(t *PlainArray, path string) (node, error) {
	arr := make(arrayNode, len(t.Items))
	for i, it := range t.Items {
		n, err := e.encodeValue(it, pathIndex(path, i))
		if err != nil {
			return nil, err
		}
		arr[i] = n
	}
	if len(t.Extra) == 0 {
		return arr, nil
	}
	o := newObjectNode()
	o.set("$arr", arr)
	props := newObjectNode()
	for k, v := range t.Extra {
		n, err := e.encodeValue(v, pathChild(path, k))
		if err != nil {
			return nil, err
		}
		props.set(k, n)
	}
	o.set("props", props)
	return o, nil
}

func (e *encoder) encodePlainObject(t *PlainObject, path string) (*objectNode, error) {
	escaped := false
	for k := range t.Fields {
		if strings.HasPrefix(k, "$") {
			escaped = true
			break
		}
	}
	inner := newObjectNode()
	for k, v := range t.Fields {
		n, err := e.encodeValue(v, pathChild(path, k))
		if err != nil {
			return nil, err
		}
		inner.set(k, n)
	}
	if !escaped {
		return inner, nil
	}
	o := newObjectNode()
	o.set("$obj", inner)
	return o, nil
}

func (e *encoder) encodeNumber(f float64) node {
	switch {
	case math.IsNaN(f):
		o := newObjectNode()
		o.set("$nan", rawNode("true"))
		return o
	case math.IsInf(f, 1):
		o := newObjectNode()
		o.set("$inf", rawNode("true"))
		return o
	case math.IsInf(f, -1):
		o := newObjectNode()
		o.set("$ninf", rawNode("true"))
		return o
	case f == 0 && math.Signbit(f):
		o := newObjectNode()
		o.set("$n0", rawNode("true"))
		return o
	default:
		return rawNode(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

// Undefined is the sentinel Value encoding to the $und tag.
type undefinedType struct{}

// Undefined is the singleton instance callers pass in place of `undefined`.
var Undefined Value = undefinedType{}
