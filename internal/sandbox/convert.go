package sandbox

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
)

// maxArrayLength bounds the arrays FromValue walks; a sparse array can
// claim a length far beyond what it stores.
const maxArrayLength = 1 << 24

var (
	typeBytes       = reflect.TypeOf([]byte(nil))
	typeArrayBuffer = reflect.TypeOf(goja.ArrayBuffer{})
)

// ToValue builds the JavaScript value described by w. It must run before
// user code so that built-in prototypes are still pristine.
func (r *Runtime) ToValue(w *codec.Wire) (goja.Value, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	d := &valueDecoder{
		r:      r,
		w:      w,
		values: make([]goja.Value, len(w.Nodes)),
	}

	var (
		v   goja.Value
		err error
	)
	if ex := r.vm.Try(func() { v, err = d.decode(w.Root) }); ex != nil {
		return nil, ex
	}
	return v, err
}

type valueDecoder struct {
	r      *Runtime
	w      *codec.Wire
	values []goja.Value
}

func (d *valueDecoder) decode(i int) (goja.Value, error) {
	if v := d.values[i]; v != nil {
		return v, nil
	}
	vm, in := d.r.vm, d.r.intrinsics
	n := d.w.Nodes[i]

	switch n.Kind {
	case codec.KindArray:
		arr := vm.NewArray()
		d.values[i] = arr
		for j, ref := range n.Refs {
			v, err := d.decode(ref)
			if err != nil {
				return nil, err
			}
			if err := defineOwn(arr, strconv.Itoa(j), v); err != nil {
				return nil, err
			}
		}
		return arr, nil

	case codec.KindObject:
		obj := vm.NewObject()
		d.values[i] = obj
		for j, key := range n.Keys {
			v, err := d.decode(n.Refs[j])
			if err != nil {
				return nil, err
			}
			if err := defineOwn(obj, key, v); err != nil {
				return nil, err
			}
		}
		return obj, nil

	case codec.KindMap:
		m, err := vm.New(in.mapCtor)
		if err != nil {
			return nil, err
		}
		d.values[i] = m
		for j := 0; j < len(n.Refs); j += 2 {
			k, err := d.decode(n.Refs[j])
			if err != nil {
				return nil, err
			}
			v, err := d.decode(n.Refs[j+1])
			if err != nil {
				return nil, err
			}
			if _, err := in.mapSet(m, k, v); err != nil {
				return nil, err
			}
		}
		return m, nil

	case codec.KindSet:
		s, err := vm.New(in.setCtor)
		if err != nil {
			return nil, err
		}
		d.values[i] = s
		for _, ref := range n.Refs {
			v, err := d.decode(ref)
			if err != nil {
				return nil, err
			}
			if _, err := in.setAdd(s, v); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	v, err := d.scalar(n)
	if err != nil {
		return nil, err
	}
	d.values[i] = v
	return v, nil
}

func (d *valueDecoder) scalar(n codec.Node) (goja.Value, error) {
	vm, in := d.r.vm, d.r.intrinsics

	switch n.Kind {
	case codec.KindUndefined:
		return goja.Undefined(), nil
	case codec.KindNull:
		return goja.Null(), nil
	case codec.KindBool:
		return vm.ToValue(n.Bool), nil
	case codec.KindNumber:
		return vm.ToValue(n.Float()), nil
	case codec.KindString:
		return vm.ToValue(n.Str), nil
	case codec.KindBigInt:
		b, ok := new(big.Int).SetString(n.Str, 10)
		if !ok {
			return nil, fmt.Errorf("%w: bigint %q", codec.ErrMalformedWire, n.Str)
		}
		return vm.ToValue(b), nil
	case codec.KindDate:
		return vm.New(in.dateCtor, vm.ToValue(n.Float()))
	case codec.KindURL:
		return vm.New(d.r.url.ctor, vm.ToValue(n.Str))
	case codec.KindBytes:
		buf := make([]byte, len(n.Bytes))
		copy(buf, n.Bytes)
		return vm.New(in.uint8Ctor, vm.ToValue(vm.NewArrayBuffer(buf)))
	case codec.KindError:
		ctor, ok := in.errors[n.Name]
		if !ok {
			ctor = in.errors["Error"]
		}
		e, err := vm.New(ctor, vm.ToValue(n.Str))
		if err != nil {
			return nil, err
		}
		if !ok && n.Name != "" {
			if err := e.Set("name", n.Name); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: kind %q", codec.ErrMalformedWire, n.Kind)
}

// defineOwn creates an own data property without consulting setters on
// the prototype chain, so keys like "__proto__" stay ordinary keys.
func defineOwn(obj *goja.Object, key string, v goja.Value) error {
	return obj.DefineDataProperty(key, v, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// FromValue serializes a JavaScript value. Functions and symbols become
// undefined; getters run, and an exception they throw is returned.
func (r *Runtime) FromValue(v goja.Value) (*codec.Wire, error) {
	e := &valueEncoder{r: r, seen: make(map[*goja.Object]int)}

	var (
		root int
		err  error
	)
	if ex := r.vm.Try(func() { root, err = e.encode(v) }); ex != nil {
		return nil, ex
	}
	if err != nil {
		return nil, err
	}
	return e.b.Wire(root), nil
}

type valueEncoder struct {
	r    *Runtime
	b    codec.Builder
	seen map[*goja.Object]int
}

func (e *valueEncoder) encode(v goja.Value) (int, error) {
	if v == nil || goja.IsUndefined(v) {
		return e.b.Add(codec.Node{Kind: codec.KindUndefined}), nil
	}
	if goja.IsNull(v) {
		return e.b.Add(codec.Node{Kind: codec.KindNull}), nil
	}
	if obj, ok := v.(*goja.Object); ok {
		return e.encodeObject(obj)
	}
	if _, ok := v.(*goja.Symbol); ok {
		return e.b.Add(codec.Node{Kind: codec.KindUndefined}), nil
	}

	switch x := v.Export().(type) {
	case bool:
		return e.b.Add(codec.Node{Kind: codec.KindBool, Bool: x}), nil
	case string:
		return e.b.Add(codec.Node{Kind: codec.KindString, Str: x}), nil
	case int64:
		return e.b.Add(codec.NumberNode(float64(x))), nil
	case float64:
		return e.b.Add(codec.NumberNode(x)), nil
	case *big.Int:
		return e.b.Add(codec.Node{Kind: codec.KindBigInt, Str: x.String()}), nil
	}
	return e.b.Add(codec.Node{Kind: codec.KindUndefined}), nil
}

func (e *valueEncoder) encodeObject(obj *goja.Object) (int, error) {
	if idx, ok := e.seen[obj]; ok {
		return idx, nil
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return e.b.Add(codec.Node{Kind: codec.KindUndefined}), nil
	}
	in := e.r.intrinsics

	if e.r.url.owns(obj) {
		return e.register(obj, codec.Node{Kind: codec.KindURL, Str: stringProp(obj, "href")}), nil
	}

	switch {
	case in.isMap(obj):
		return e.encodeCollection(obj, codec.KindMap, in.mapForEach, 2)
	case in.isSet(obj):
		return e.encodeCollection(obj, codec.KindSet, in.setForEach, 1)
	case promiseOf(obj) != nil:
		return e.b.Add(codec.Node{Kind: codec.KindUndefined}), nil
	}

	switch obj.ClassName() {
	case "Array":
		return e.encodeArray(obj)
	case "Date":
		ms, err := in.dateGetTime(obj)
		if err != nil {
			return 0, err
		}
		return e.register(obj, codec.DateNode(ms.ToFloat())), nil
	case "Error":
		return e.register(obj, codec.Node{
			Kind: codec.KindError,
			Name: stringProp(obj, "name"),
			Str:  stringProp(obj, "message"),
		}), nil
	}

	switch obj.ExportType() {
	case typeBytes:
		if b, ok := obj.Export().([]byte); ok {
			return e.register(obj, codec.Node{Kind: codec.KindBytes, Bytes: append([]byte{}, b...)}), nil
		}
	case typeArrayBuffer:
		if ab, ok := obj.Export().(goja.ArrayBuffer); ok {
			return e.register(obj, codec.Node{Kind: codec.KindBytes, Bytes: append([]byte{}, ab.Bytes()...)}), nil
		}
	}

	return e.encodePlain(obj)
}

func (e *valueEncoder) register(obj *goja.Object, n codec.Node) int {
	idx := e.b.Add(n)
	e.seen[obj] = idx
	return idx
}

func (e *valueEncoder) encodeArray(obj *goja.Object) (int, error) {
	length := obj.Get("length").ToInteger()
	if length > maxArrayLength {
		return 0, fmt.Errorf("array of length %d is too large to serialize", length)
	}

	idx := e.b.Reserve(codec.KindArray)
	e.seen[obj] = idx

	refs := make([]int, length)
	for i := range refs {
		r, err := e.encode(obj.Get(strconv.Itoa(i)))
		if err != nil {
			return 0, err
		}
		refs[i] = r
	}
	e.b.Set(idx, codec.Node{Kind: codec.KindArray, Refs: refs})
	return idx, nil
}

// encodeCollection walks a Map or Set with its captured forEach. Each
// callback receives (value, key); a Map stores key then value, a Set its
// value once.
func (e *valueEncoder) encodeCollection(obj *goja.Object, kind codec.Kind, forEach goja.Callable, width int) (int, error) {
	idx := e.b.Reserve(kind)
	e.seen[obj] = idx

	var items []goja.Value
	collect := e.r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if width == 2 {
			items = append(items, call.Argument(1), call.Argument(0))
		} else {
			items = append(items, call.Argument(0))
		}
		return goja.Undefined()
	})
	if _, err := forEach(obj, collect); err != nil {
		return 0, err
	}

	refs := make([]int, len(items))
	for i, item := range items {
		r, err := e.encode(item)
		if err != nil {
			return 0, err
		}
		refs[i] = r
	}
	e.b.Set(idx, codec.Node{Kind: kind, Refs: refs})
	return idx, nil
}

func (e *valueEncoder) encodePlain(obj *goja.Object) (int, error) {
	idx := e.b.Reserve(codec.KindObject)
	e.seen[obj] = idx

	keys := obj.Keys()
	refs := make([]int, len(keys))
	for i, key := range keys {
		r, err := e.encode(obj.Get(key))
		if err != nil {
			return 0, err
		}
		refs[i] = r
	}
	e.b.Set(idx, codec.Node{Kind: codec.KindObject, Keys: keys, Refs: refs})
	return idx, nil
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return ""
	}
	return v.String()
}
