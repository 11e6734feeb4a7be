package codec

import (
	"fmt"
	"math"
	"math/big"
	"net/url"
	"time"
)

type decoder struct {
	w      *Wire
	values []any
	done   []bool
}

// Decode rebuilds the host value graph of w. Nodes referenced more than once
// decode to the same Go value, so cycles come back as cycles.
func Decode(w *Wire) (any, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	d := &decoder{
		w:      w,
		values: make([]any, len(w.Nodes)),
		done:   make([]bool, len(w.Nodes)),
	}
	return d.decode(w.Root)
}

func (d *decoder) decode(i int) (any, error) {
	if d.done[i] {
		return d.values[i], nil
	}
	n := d.w.Nodes[i]

	switch n.Kind {
	case KindArray:
		arr := make([]any, len(n.Refs))
		d.register(i, arr)
		for j, ref := range n.Refs {
			v, err := d.decode(ref)
			if err != nil {
				return nil, err
			}
			arr[j] = v
		}
		return arr, nil

	case KindObject:
		obj := make(map[string]any, len(n.Keys))
		d.register(i, obj)
		for j, key := range n.Keys {
			v, err := d.decode(n.Refs[j])
			if err != nil {
				return nil, err
			}
			obj[key] = v
		}
		return obj, nil

	case KindMap:
		m := &Map{Entries: make([]Entry, 0, len(n.Refs)/2)}
		d.register(i, m)
		for j := 0; j < len(n.Refs); j += 2 {
			k, err := d.decode(n.Refs[j])
			if err != nil {
				return nil, err
			}
			v, err := d.decode(n.Refs[j+1])
			if err != nil {
				return nil, err
			}
			m.Entries = append(m.Entries, Entry{Key: k, Value: v})
		}
		return m, nil

	case KindSet:
		s := &Set{Items: make([]any, 0, len(n.Refs))}
		d.register(i, s)
		for _, ref := range n.Refs {
			v, err := d.decode(ref)
			if err != nil {
				return nil, err
			}
			s.Items = append(s.Items, v)
		}
		return s, nil
	}

	v, err := scalar(n)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", i, err)
	}
	d.register(i, v)
	return v, nil
}

func (d *decoder) register(i int, v any) {
	d.values[i] = v
	d.done[i] = true
}

func scalar(n Node) (any, error) {
	switch n.Kind {
	case KindUndefined:
		return Undefined, nil
	case KindNull:
		return nil, nil
	case KindBool:
		return n.Bool, nil
	case KindNumber:
		return n.Float(), nil
	case KindString:
		return n.Str, nil
	case KindBigInt:
		b, ok := new(big.Int).SetString(n.Str, 10)
		if !ok {
			return nil, fmt.Errorf("%w: bigint %q", ErrMalformedWire, n.Str)
		}
		return b, nil
	case KindDate:
		ms := n.Float()
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			// Invalid Date
			return time.Time{}, nil
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	case KindURL:
		u, err := url.Parse(n.Str)
		if err != nil {
			return nil, fmt.Errorf("%w: url: %v", ErrMalformedWire, err)
		}
		return u, nil
	case KindBytes:
		buf := make([]byte, len(n.Bytes))
		copy(buf, n.Bytes)
		return buf, nil
	case KindError:
		return &Error{Name: n.Name, Message: n.Str}, nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrMalformedWire, n.Kind)
}
