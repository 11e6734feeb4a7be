package sandbox

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"
)

// maxProtoDepth bounds prototype chain walks
const maxProtoDepth = 1000

var (
	typeMapEntries = reflect.TypeOf([][2]interface{}{})
	typeSetValues  = reflect.TypeOf([]interface{}{})
	typePromise    = reflect.TypeOf((*goja.Promise)(nil))
)

// errorNames are the constructors an Error value may be rebuilt with
var errorNames = []string{
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError", "EvalError", "URIError",
}

// intrinsics are built-ins captured before user code runs
type intrinsics struct {
	mapCtor   *goja.Object
	setCtor   *goja.Object
	dateCtor  *goja.Object
	uint8Ctor *goja.Object
	errors    map[string]*goja.Object
	mapProto  *goja.Object
	setProto  *goja.Object

	mapSet      goja.Callable
	mapForEach  goja.Callable
	setAdd      goja.Callable
	setForEach  goja.Callable
	dateGetTime goja.Callable
}

func captureIntrinsics(vm *goja.Runtime) (*intrinsics, error) {
	c := &capturer{global: vm.GlobalObject()}

	in := &intrinsics{
		mapCtor:   c.object("Map"),
		setCtor:   c.object("Set"),
		dateCtor:  c.object("Date"),
		uint8Ctor: c.object("Uint8Array"),
		errors:    make(map[string]*goja.Object, len(errorNames)),
	}
	for _, name := range errorNames {
		in.errors[name] = c.object(name)
	}

	in.mapProto = c.prototype(in.mapCtor, "Map")
	in.setProto = c.prototype(in.setCtor, "Set")
	in.mapSet = c.method(in.mapCtor, "set")
	in.mapForEach = c.method(in.mapCtor, "forEach")
	in.setAdd = c.method(in.setCtor, "add")
	in.setForEach = c.method(in.setCtor, "forEach")
	in.dateGetTime = c.method(in.dateCtor, "getTime")

	if c.err != nil {
		return nil, c.err
	}
	return in, nil
}

// capturer records the first lookup failure
type capturer struct {
	global *goja.Object
	err    error
}

func (c *capturer) object(name string) *goja.Object {
	obj, ok := c.global.Get(name).(*goja.Object)
	if !ok && c.err == nil {
		c.err = fmt.Errorf("missing built-in %s", name)
	}
	return obj
}

func (c *capturer) prototype(ctor *goja.Object, name string) *goja.Object {
	if ctor == nil {
		return nil
	}
	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok && c.err == nil {
		c.err = fmt.Errorf("missing prototype for %s", name)
	}
	return proto
}

func (c *capturer) method(ctor *goja.Object, name string) goja.Callable {
	proto := c.prototype(ctor, name)
	if proto == nil {
		return nil
	}
	return c.function(proto, name)
}

func (c *capturer) function(obj *goja.Object, name string) goja.Callable {
	fn, ok := goja.AssertFunction(obj.Get(name))
	if !ok && c.err == nil {
		c.err = fmt.Errorf("missing built-in method %s", name)
	}
	return fn
}

// isMap reports whether obj is a Map instance, subclasses included. Class
// names cannot tell Map and Set apart from plain objects.
func (in *intrinsics) isMap(obj *goja.Object) bool {
	return obj.ExportType() == typeMapEntries && inherits(obj, in.mapProto)
}

// isSet reports whether obj is a Set instance. Sets export like arrays,
// so arrays are excluded by class.
func (in *intrinsics) isSet(obj *goja.Object) bool {
	return obj.ClassName() != "Array" && obj.ExportType() == typeSetValues && inherits(obj, in.setProto)
}

// promiseOf returns the promise behind obj, or nil
func promiseOf(obj *goja.Object) *goja.Promise {
	if obj.ExportType() != typePromise {
		return nil
	}
	p, _ := obj.Export().(*goja.Promise)
	return p
}

func inherits(obj, proto *goja.Object) bool {
	if proto == nil {
		return false
	}
	p := obj.Prototype()
	for i := 0; p != nil && i < maxProtoDepth; i++ {
		if p == proto {
			return true
		}
		p = p.Prototype()
	}
	return false
}
