package sandbox

import (
	"net/url"
	"strings"

	"github.com/dop251/goja"
)

// schemes with a host and a default "/" path
var specialSchemes = map[string]bool{
	"http": true, "https": true, "ws": true, "wss": true, "ftp": true, "file": true,
}

// urlClass is the URL constructor installed in every runtime. Instances are
// plain objects with data properties; the class remembers which objects it
// built so the serializer can tell a URL from a look-alike.
type urlClass struct {
	vm        *goja.Runtime
	ctor      *goja.Object
	instances map[*goja.Object]struct{}
}

func installURL(vm *goja.Runtime) (*urlClass, error) {
	c := &urlClass{vm: vm, instances: make(map[*goja.Object]struct{})}
	c.ctor = vm.ToValue(c.construct).(*goja.Object)

	proto, ok := c.ctor.Get("prototype").(*goja.Object)
	if !ok {
		return nil, errMissingPrototype
	}
	if err := proto.Set("toString", c.href); err != nil {
		return nil, err
	}
	if err := proto.Set("toJSON", c.href); err != nil {
		return nil, err
	}
	if err := c.ctor.DefineDataProperty("name", vm.ToValue("URL"), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}
	return c, vm.Set("URL", c.ctor)
}

func (c *urlClass) construct(call goja.ConstructorCall) *goja.Object {
	raw := call.Argument(0).String()

	var base *url.URL
	if b := call.Argument(1); !goja.IsUndefined(b) {
		parsed, err := parseAbsoluteURL(b.String(), nil)
		if err != nil {
			panic(c.vm.NewTypeError("Invalid base URL: %s", b.String()))
		}
		base = parsed
	}

	u, err := parseAbsoluteURL(raw, base)
	if err != nil {
		panic(c.vm.NewTypeError("Invalid URL: %s", raw))
	}

	for _, f := range urlFields(u) {
		if err := call.This.Set(f.name, f.value); err != nil {
			panic(err)
		}
	}
	c.instances[call.This] = struct{}{}
	return call.This
}

func (c *urlClass) href(call goja.FunctionCall) goja.Value {
	return call.This.ToObject(c.vm).Get("href")
}

// owns reports whether obj was built by this class
func (c *urlClass) owns(obj *goja.Object) bool {
	_, ok := c.instances[obj]
	return ok
}

func parseAbsoluteURL(raw string, base *url.URL) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" {
		return nil, errRelativeURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if specialSchemes[u.Scheme] && u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u, nil
}

type urlField struct {
	name  string
	value string
}

func urlFields(u *url.URL) []urlField {
	pathname := u.EscapedPath()
	if u.Opaque != "" {
		pathname = u.Opaque
	}
	search, hash := "", ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		hash = "#" + u.EscapedFragment()
	}
	password, _ := u.User.Password()
	origin := "null"
	if specialSchemes[u.Scheme] && u.Scheme != "file" {
		origin = u.Scheme + "://" + u.Host
	}

	return []urlField{
		{"href", u.String()},
		{"origin", origin},
		{"protocol", u.Scheme + ":"},
		{"username", u.User.Username()},
		{"password", password},
		{"host", u.Host},
		{"hostname", u.Hostname()},
		{"port", u.Port()},
		{"pathname", pathname},
		{"search", search},
		{"hash", hash},
	}
}
