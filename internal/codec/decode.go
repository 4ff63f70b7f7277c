package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/runkernel/kernel/internal/sandbox"
)

// Decode parses canonical codec bytes back into a Value graph. $dup
// back-references are resolved by first allocating an empty shell for every
// reference-typed node (in document order) and patching it in a second
// pass, mirroring how Encode walked the graph once to assign each
// reference its path.
func Decode(data []byte, hooks Hooks) (Value, error) {
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("codec: invalid JSON: %w", err)
	}
	d := &decoder{hooks: hooks, shells: map[string]Value{}}
	// Pass 1: allocate shells for every reference-typed node so forward and
	// backward $dup references both resolve.
	if err := d.allocate(raw, "$"); err != nil {
		return nil, err
	}
	// Pass 2: populate each shell (and build non-reference values fresh).
	return d.decodeValue(raw, "$")
}

type decoder struct {
	hooks  Hooks
	shells map[string]Value // path -> pre-allocated reference shell
}

// allocate walks raw once, creating an empty shell for each reference-typed
// node (arrays, objects, $arr/$set/$map/$ui8a/$arb) at its path, before any
// value is populated. $dup nodes are skipped; they only ever point at a
// shell allocated elsewhere.
func (d *decoder) allocate(raw interface{}, path string) error {
	switch t := raw.(type) {
	case []interface{}:
		arr := &PlainArray{Items: make([]Value, len(t))}
		d.shells[path] = arr
		for i, item := range t {
			if err := d.allocate(item, pathIndex(path, i)); err != nil {
				return err
			}
		}
	case map[string]interface{}:
		if _, ok := t["$dup"]; ok {
			return nil
		}
		if v, ok := t["$arr"]; ok {
			items, ok := v.([]interface{})
			if !ok {
				return fmt.Errorf("codec: $arr at %s is not an array", path)
			}
			arr := &PlainArray{Items: make([]Value, len(items)), Extra: map[string]Value{}}
			d.shells[path] = arr
			for i, item := range items {
				if err := d.allocate(item, pathIndex(path, i)); err != nil {
					return err
				}
			}
			if props, ok := t["props"].(map[string]interface{}); ok {
				for k, v := range props {
					if err := d.allocate(v, pathChild(path, k)); err != nil {
						return err
					}
				}
			}
			return nil
		}
		if v, ok := t["$set"]; ok {
			items, ok := v.([]interface{})
			if !ok {
				return fmt.Errorf("codec: $set at %s is not an array", path)
			}
			s := sandbox.NewDetachedOrderedSet()
			d.shells[path] = s
			for i, item := range items {
				if err := d.allocate(item, pathIndex(path+".$set", i)); err != nil {
					return err
				}
			}
			return nil
		}
		if v, ok := t["$map"]; ok {
			items, ok := v.([]interface{})
			if !ok {
				return fmt.Errorf("codec: $map at %s is not an array", path)
			}
			m := sandbox.NewDetachedOrderedMap()
			d.shells[path] = m
			for i, item := range items {
				pair, ok := item.([]interface{})
				if !ok || len(pair) != 2 {
					return fmt.Errorf("codec: $map entry at %s is not a pair", path)
				}
				if err := d.allocate(pair[0], pathIndex(path+".$map", i)+".0"); err != nil {
					return err
				}
				if err := d.allocate(pair[1], pathIndex(path+".$map", i)+".1"); err != nil {
					return err
				}
			}
			return nil
		}
		if _, ok := t["$ui8a"]; ok {
			d.shells[path] = sandbox.NewDetachedByteArray()
			return nil
		}
		if v, ok := t["$arb"]; ok {
			arb := &Arbitrary{}
			d.shells[path] = arb
			if err := d.allocate(v, path+".$arb"); err != nil {
				return err
			}
			if cls, ok := t["T"]; ok {
				if err := d.allocate(cls, path+".T"); err != nil {
					return err
				}
			}
			return nil
		}
		if _, ok := t["$jig"]; ok {
			return nil
		}
		if v, ok := t["$obj"]; ok {
			inner, ok := v.(map[string]interface{})
			if !ok {
				return fmt.Errorf("codec: $obj at %s is not an object", path)
			}
			obj := &PlainObject{Fields: map[string]Value{}}
			d.shells[path] = obj
			for k, v := range inner {
				if err := d.allocate(v, pathChild(path, k)); err != nil {
					return err
				}
			}
			return nil
		}
		if _, ok := t["$und"]; ok {
			return nil
		}
		if _, ok := t["$nan"]; ok {
			return nil
		}
		if _, ok := t["$inf"]; ok {
			return nil
		}
		if _, ok := t["$ninf"]; ok {
			return nil
		}
		if _, ok := t["$n0"]; ok {
			return nil
		}
		// Ordinary plain object.
		obj := &PlainObject{Fields: map[string]Value{}}
		d.shells[path] = obj
		for k, v := range t {
			if err := d.allocate(v, pathChild(path, k)); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeValue populates (or for primitives, builds fresh) the Value at
// path. Reference-typed nodes must already have a shell from allocate.
func (d *decoder) decodeValue(raw interface{}, path string) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("codec: bad number %q at %s: %w", t, path, err)
		}
		return f, nil
	case string:
		return t, nil
	case []interface{}:
		shell, _ := d.shells[path].(*PlainArray)
		for i, item := range t {
			v, err := d.decodeValue(item, pathIndex(path, i))
			if err != nil {
				return nil, err
			}
			shell.Items[i] = v
		}
		return shell, nil
	case map[string]interface{}:
		return d.decodeObject(t, path)
	default:
		return nil, fmt.Errorf("codec: unrecognized JSON node of type %T at %s", raw, path)
	}
}

func (d *decoder) decodeObject(t map[string]interface{}, path string) (Value, error) {
	if v, ok := t["$dup"]; ok {
		segs, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("codec: $dup at %s is not an array", path)
		}
		target, err := resolveDupPath(segs)
		if err != nil {
			return nil, err
		}
		shell, ok := d.shells[target]
		if !ok {
			return nil, fmt.Errorf("codec: $dup at %s points at unknown path %s", path, target)
		}
		return shell, nil
	}
	if v, ok := t["$arr"]; ok {
		items := v.([]interface{})
		shell := d.shells[path].(*PlainArray)
		for i, item := range items {
			dv, err := d.decodeValue(item, pathIndex(path, i))
			if err != nil {
				return nil, err
			}
			shell.Items[i] = dv
		}
		if props, ok := t["props"].(map[string]interface{}); ok {
			for k, v := range props {
				dv, err := d.decodeValue(v, pathChild(path, k))
				if err != nil {
					return nil, err
				}
				shell.Extra[k] = dv
			}
		}
		return shell, nil
	}
	if v, ok := t["$set"]; ok {
		items := v.([]interface{})
		shell := d.shells[path].(*sandbox.OrderedSet)
		for i, item := range items {
			dv, err := d.decodeValue(item, pathIndex(path+".$set", i))
			if err != nil {
				return nil, err
			}
			shell.Add(dv)
		}
		return shell, nil
	}
	if v, ok := t["$map"]; ok {
		items := v.([]interface{})
		shell := d.shells[path].(*sandbox.OrderedMap)
		for i, item := range items {
			pair := item.([]interface{})
			k, err := d.decodeValue(pair[0], pathIndex(path+".$map", i)+".0")
			if err != nil {
				return nil, err
			}
			val, err := d.decodeValue(pair[1], pathIndex(path+".$map", i)+".1")
			if err != nil {
				return nil, err
			}
			shell.Set(k, val)
		}
		return shell, nil
	}
	if v, ok := t["$ui8a"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("codec: $ui8a at %s is not a string", path)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("codec: $ui8a at %s is not valid base64: %w", path, err)
		}
		shell := d.shells[path].(*sandbox.ByteArray)
		shell.Bytes = b
		return shell, nil
	}
	if v, ok := t["$arb"]; ok {
		shell := d.shells[path].(*Arbitrary)
		state, err := d.decodeValue(v, path+".$arb")
		if err != nil {
			return nil, err
		}
		shell.State = state
		if cls, ok := t["T"]; ok {
			classVal, err := d.decodeValue(cls, path+".T")
			if err != nil {
				return nil, err
			}
			shell.Class = classVal
		}
		return shell, nil
	}
	if v, ok := t["$jig"]; ok {
		ref, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("codec: $jig at %s is not a string", path)
		}
		if d.hooks.DecodeJig == nil {
			return nil, fmt.Errorf("codec: unresolved jig reference at %s: no DecodeJig hook configured", path)
		}
		val, err := d.hooks.DecodeJig(ref)
		if err != nil {
			return nil, fmt.Errorf("codec: DecodeJig failed at %s: %w", path, err)
		}
		return &JigRef{Ref: val}, nil
	}
	if v, ok := t["$obj"]; ok {
		inner, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("codec: $obj at %s is not an object", path)
		}
		shell := d.shells[path].(*PlainObject)
		for k, v := range inner {
			dv, err := d.decodeValue(v, pathChild(path, k))
			if err != nil {
				return nil, err
			}
			shell.Fields[k] = dv
		}
		return shell, nil
	}
	if _, ok := t["$und"]; ok {
		return Undefined, nil
	}
	if _, ok := t["$nan"]; ok {
		return math.NaN(), nil
	}
	if _, ok := t["$inf"]; ok {
		return math.Inf(1), nil
	}
	if _, ok := t["$ninf"]; ok {
		return math.Inf(-1), nil
	}
	if _, ok := t["$n0"]; ok {
		return math.Copysign(0, -1), nil
	}
	shell := d.shells[path].(*PlainObject)
	for k, v := range t {
		dv, err := d.decodeValue(v, pathChild(path, k))
		if err != nil {
			return nil, err
		}
		shell.Fields[k] = dv
	}
	return shell, nil
}

// resolveDupPath inverts splitPath (encode.go): segs were produced by
// splitting the original "$.field[0].field2"-shaped path on ".", so
// rejoining with "." and restoring the "$" prefix recovers it exactly.
func resolveDupPath(segs []interface{}) (string, error) {
	parts := make([]string, len(segs))
	for i, s := range segs {
		str, ok := s.(string)
		if !ok {
			return "", fmt.Errorf("codec: $dup segment is not a string: %v", s)
		}
		parts[i] = str
	}
	return "$" + strings.Join(parts, "."), nil
}
