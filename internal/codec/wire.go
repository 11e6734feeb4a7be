package codec

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

var (
	ErrMalformedWire   = errors.New("malformed wire value")
	ErrUnsupportedType = errors.New("unsupported value type")
)

// Kind tags a wire node
type Kind string

const (
	KindUndefined Kind = "undefined"
	KindNull      Kind = "null"
	KindBool      Kind = "bool"
	KindNumber    Kind = "number"
	KindString    Kind = "string"
	KindBigInt    Kind = "bigint"
	KindDate      Kind = "date"
	KindURL       Kind = "url"
	KindBytes     Kind = "bytes"
	KindArray     Kind = "array"
	KindObject    Kind = "object"
	KindMap       Kind = "map"
	KindSet       Kind = "set"
	KindError     Kind = "error"
)

// Node is one value in the wire table. Containers reference their
// children by index into Wire.Nodes.
//
// Field usage by kind:
//
//	bool          Bool
//	number, date  Num, or Str for NaN/Infinity/-Infinity/-0
//	string        Str
//	bigint        Str (base 10)
//	url           Str (href)
//	bytes         Bytes
//	error         Name, Str (message)
//	array, set    Refs
//	object        Keys, Refs (parallel)
//	map           Refs (key, value, key, value, ...)
type Node struct {
	Kind  Kind     `json:"k"`
	Bool  bool     `json:"b,omitempty"`
	Num   float64  `json:"n,omitempty"`
	Str   string   `json:"s,omitempty"`
	Name  string   `json:"name,omitempty"`
	Bytes []byte   `json:"bytes,omitempty"`
	Keys  []string `json:"keys,omitempty"`
	Refs  []int    `json:"refs,omitempty"`
}

// Wire is a value graph flattened into a node table, so shared references
// and cycles cross a process boundary intact.
type Wire struct {
	Root  int    `json:"root"`
	Nodes []Node `json:"nodes"`
}

// Builder appends nodes to a table. Both sides of the boundary use it.
type Builder struct {
	nodes []Node
}

// Add appends n and returns its index
func (b *Builder) Add(n Node) int {
	b.nodes = append(b.nodes, n)
	return len(b.nodes) - 1
}

// Reserve appends a placeholder for a container whose children are not
// encoded yet. Registering the index before descending is what lets a child
// refer back to its parent.
func (b *Builder) Reserve(kind Kind) int {
	return b.Add(Node{Kind: kind})
}

// Set replaces the node at i
func (b *Builder) Set(i int, n Node) {
	b.nodes[i] = n
}

// Wire finishes the table with the given root
func (b *Builder) Wire(root int) *Wire {
	return &Wire{Root: root, Nodes: b.nodes}
}

// UndefinedWire returns the encoding of a bare undefined
func UndefinedWire() *Wire {
	return &Wire{Nodes: []Node{{Kind: KindUndefined}}}
}

// NumberNode encodes a float64, keeping the values JSON cannot carry
func NumberNode(f float64) Node {
	return numeric(KindNumber, f)
}

// DateNode encodes milliseconds since the epoch
func DateNode(ms float64) Node {
	return numeric(KindDate, ms)
}

func numeric(kind Kind, f float64) Node {
	if s := specialNumber(f); s != "" {
		return Node{Kind: kind, Str: s}
	}
	return Node{Kind: kind, Num: f}
}

func specialNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	}
	return ""
}

// Float returns the numeric value of a number or date node
func (n Node) Float() float64 {
	switch n.Str {
	case "NaN":
		return math.NaN()
	case "Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	case "-0":
		return math.Copysign(0, -1)
	}
	return n.Num
}

// Validate checks kinds, reference bounds and per-kind invariants
func (w *Wire) Validate() error {
	if w == nil || len(w.Nodes) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedWire)
	}
	if w.Root < 0 || w.Root >= len(w.Nodes) {
		return fmt.Errorf("%w: root %d out of range", ErrMalformedWire, w.Root)
	}

	for i, n := range w.Nodes {
		for _, ref := range n.Refs {
			if ref < 0 || ref >= len(w.Nodes) {
				return fmt.Errorf("%w: node %d references %d", ErrMalformedWire, i, ref)
			}
		}

		switch n.Kind {
		case KindUndefined, KindNull, KindBool, KindNumber, KindString,
			KindDate, KindURL, KindBytes, KindError, KindArray, KindSet:
		case KindBigInt:
			if _, ok := new(big.Int).SetString(n.Str, 10); !ok {
				return fmt.Errorf("%w: node %d bigint %q", ErrMalformedWire, i, n.Str)
			}
		case KindObject:
			if len(n.Keys) != len(n.Refs) {
				return fmt.Errorf("%w: node %d has %d keys for %d values", ErrMalformedWire, i, len(n.Keys), len(n.Refs))
			}
		case KindMap:
			if len(n.Refs)%2 != 0 {
				return fmt.Errorf("%w: node %d has odd map entries", ErrMalformedWire, i)
			}
		default:
			return fmt.Errorf("%w: node %d kind %s", ErrMalformedWire, i, strconv.Quote(string(n.Kind)))
		}
	}
	return nil
}
