package codec

import (
	"fmt"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"
)

// identity is the reference identity of a Go container: the address of its
// data plus, for slices, the length (two slices of one backing array are
// different JavaScript arrays unless they match exactly).
type identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type encoder struct {
	b    Builder
	seen map[identity]int
}

// Encode flattens a host value into a Wire. Reference cycles are preserved.
// Functions and Symbols become undefined; channels, complex numbers and
// unsafe pointers are rejected with ErrUnsupportedType.
func Encode(v any) (*Wire, error) {
	e := &encoder{seen: make(map[identity]int)}
	root, err := e.encode(v)
	if err != nil {
		return nil, err
	}
	return e.b.Wire(root), nil
}

func (e *encoder) encode(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return e.b.Add(Node{Kind: KindNull}), nil
	case undefinedType, Symbol, *Symbol:
		return e.b.Add(Node{Kind: KindUndefined}), nil
	case bool:
		return e.b.Add(Node{Kind: KindBool, Bool: x}), nil
	case string:
		return e.b.Add(Node{Kind: KindString, Str: x}), nil
	case float64:
		return e.b.Add(NumberNode(x)), nil
	case *big.Int:
		if x == nil {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		return e.b.Add(Node{Kind: KindBigInt, Str: x.String()}), nil
	case big.Int:
		return e.b.Add(Node{Kind: KindBigInt, Str: x.String()}), nil
	case time.Time:
		if x.IsZero() {
			return e.b.Add(DateNode(math.NaN())), nil
		}
		return e.b.Add(DateNode(float64(x.UnixMilli()))), nil
	case *url.URL:
		if x == nil {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		return e.b.Add(Node{Kind: KindURL, Str: x.String()}), nil
	case []byte:
		buf := make([]byte, len(x))
		copy(buf, x)
		return e.b.Add(Node{Kind: KindBytes, Bytes: buf}), nil
	case *Error:
		if x == nil {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		return e.b.Add(Node{Kind: KindError, Name: x.Name, Str: x.Message}), nil
	case *Map:
		if x == nil {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		return e.encodeMap(x)
	case *Set:
		if x == nil {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		return e.encodeSet(x)
	}

	return e.encodeReflect(reflect.ValueOf(v))
}

func (e *encoder) encodeMap(m *Map) (int, error) {
	key := identity{typ: reflect.TypeOf(m), ptr: reflect.ValueOf(m).Pointer()}
	if idx, ok := e.seen[key]; ok {
		return idx, nil
	}

	idx := e.b.Reserve(KindMap)
	e.seen[key] = idx

	refs := make([]int, 0, 2*len(m.Entries))
	for _, entry := range m.Entries {
		k, err := e.encode(entry.Key)
		if err != nil {
			return 0, err
		}
		v, err := e.encode(entry.Value)
		if err != nil {
			return 0, err
		}
		refs = append(refs, k, v)
	}
	e.b.Set(idx, Node{Kind: KindMap, Refs: refs})
	return idx, nil
}

func (e *encoder) encodeSet(s *Set) (int, error) {
	key := identity{typ: reflect.TypeOf(s), ptr: reflect.ValueOf(s).Pointer()}
	if idx, ok := e.seen[key]; ok {
		return idx, nil
	}

	idx := e.b.Reserve(KindSet)
	e.seen[key] = idx

	refs := make([]int, 0, len(s.Items))
	for _, item := range s.Items {
		r, err := e.encode(item)
		if err != nil {
			return 0, err
		}
		refs = append(refs, r)
	}
	e.b.Set(idx, Node{Kind: KindSet, Refs: refs})
	return idx, nil
}

func (e *encoder) encodeReflect(rv reflect.Value) (int, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.b.Add(NumberNode(float64(rv.Int()))), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.b.Add(NumberNode(float64(rv.Uint()))), nil
	case reflect.Float32, reflect.Float64:
		return e.b.Add(NumberNode(rv.Float())), nil
	case reflect.String:
		return e.b.Add(Node{Kind: KindString, Str: rv.String()}), nil
	case reflect.Bool:
		return e.b.Add(Node{Kind: KindBool, Bool: rv.Bool()}), nil
	case reflect.Func:
		return e.b.Add(Node{Kind: KindUndefined}), nil
	case reflect.Interface:
		if rv.IsNil() {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		return e.encode(rv.Elem().Interface())
	case reflect.Pointer:
		if rv.IsNil() {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			key := identity{typ: rv.Type(), ptr: rv.Pointer()}
			if idx, ok := e.seen[key]; ok {
				return idx, nil
			}
			return e.encodeStruct(rv.Elem(), &key)
		}
		return e.encode(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		return e.encodeList(rv, identity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true)
	case reflect.Array:
		return e.encodeList(rv, identity{}, false)
	case reflect.Map:
		if rv.IsNil() {
			return e.b.Add(Node{Kind: KindNull}), nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return e.encodeKeyedMap(rv)
		}
		return e.encodeObject(rv)
	case reflect.Struct:
		return e.encodeStruct(rv, nil)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

func (e *encoder) encodeList(rv reflect.Value, key identity, track bool) (int, error) {
	if track && rv.Len() > 0 {
		if idx, ok := e.seen[key]; ok {
			return idx, nil
		}
	}

	idx := e.b.Reserve(KindArray)
	if track && rv.Len() > 0 {
		e.seen[key] = idx
	}

	refs := make([]int, rv.Len())
	for i := range refs {
		r, err := e.encode(rv.Index(i).Interface())
		if err != nil {
			return 0, err
		}
		refs[i] = r
	}
	e.b.Set(idx, Node{Kind: KindArray, Refs: refs})
	return idx, nil
}

// encodeObject encodes a string-keyed Go map as a plain object with sorted
// keys, since Go map iteration order is random.
func (e *encoder) encodeObject(rv reflect.Value) (int, error) {
	key := identity{typ: rv.Type(), ptr: rv.Pointer()}
	if idx, ok := e.seen[key]; ok {
		return idx, nil
	}

	idx := e.b.Reserve(KindObject)
	e.seen[key] = idx

	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	refs := make([]int, len(keys))
	for i, k := range keys {
		r, err := e.encode(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
		if err != nil {
			return 0, err
		}
		refs[i] = r
	}
	e.b.Set(idx, Node{Kind: KindObject, Keys: keys, Refs: refs})
	return idx, nil
}

// encodeKeyedMap encodes a Go map with non-string keys as a Map
func (e *encoder) encodeKeyedMap(rv reflect.Value) (int, error) {
	key := identity{typ: rv.Type(), ptr: rv.Pointer()}
	if idx, ok := e.seen[key]; ok {
		return idx, nil
	}

	idx := e.b.Reserve(KindMap)
	e.seen[key] = idx

	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})

	refs := make([]int, 0, 2*len(keys))
	for _, k := range keys {
		kr, err := e.encode(k.Interface())
		if err != nil {
			return 0, err
		}
		vr, err := e.encode(rv.MapIndex(k).Interface())
		if err != nil {
			return 0, err
		}
		refs = append(refs, kr, vr)
	}
	e.b.Set(idx, Node{Kind: KindMap, Refs: refs})
	return idx, nil
}

// encodeStruct encodes exported fields as a plain object, honouring json
// tag names and "-". key is set when the struct was reached through a
// pointer and can therefore be part of a cycle.
func (e *encoder) encodeStruct(rv reflect.Value, key *identity) (int, error) {
	idx := e.b.Reserve(KindObject)
	if key != nil {
		e.seen[*key] = idx
	}
	rt := rv.Type()

	var (
		keys []string
		refs []int
	)
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		r, err := e.encode(rv.Field(i).Interface())
		if err != nil {
			return 0, err
		}
		keys = append(keys, name)
		refs = append(refs, r)
	}
	e.b.Set(idx, Node{Kind: KindObject, Keys: keys, Refs: refs})
	return idx, nil
}
