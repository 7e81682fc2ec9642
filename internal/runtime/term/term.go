// Package term models the values exchanged with the owning Erlang process and
// converts them to and from the external term format.
//
// Every response written by the port is built from the variants below. Decoding
// additionally yields Float, Ref and Pid so that caller supplied values (most
// notably the request reference) can be echoed back unchanged.
package term

import (
	"fmt"
	"strings"
)

// Term is a value in the port's wire vocabulary.
type Term interface {
	isTerm()
}

// Atom is an Erlang atom.
type Atom string

// Binary is an opaque byte string. Topic names and error messages are always
// encoded as binaries because they carry arbitrary content.
type Binary []byte

// Int is a 32-bit integer (partition indices).
type Int int32

// Long is a 64-bit integer (offsets, timestamps).
type Long int64

// Float is a double precision float. Only produced by the decoder.
type Float float64

// List is a proper list.
type List []Term

// Tuple is a fixed-size tuple.
type Tuple []Term

// Pair is a single Map entry.
type Pair struct {
	Key   Term
	Value Term
}

// Map is an Erlang map. Entries keep their insertion order; keys are unique.
type Map []Pair

// Ref is an Erlang reference as produced by make_ref/0.
type Ref struct {
	Node     Atom
	Creation uint32
	IDs      []uint32
}

// Pid is an Erlang process identifier.
type Pid struct {
	Node     Atom
	ID       uint32
	Serial   uint32
	Creation uint32
}

func (Atom) isTerm()   {}
func (Binary) isTerm() {}
func (Int) isTerm()    {}
func (Long) isTerm()   {}
func (Float) isTerm()  {}
func (List) isTerm()   {}
func (Tuple) isTerm()  {}
func (Map) isTerm()    {}
func (Ref) isTerm()    {}
func (Pid) isTerm()    {}

// Well known atoms.
const (
	Nil   Atom = "nil"
	True  Atom = "true"
	False Atom = "false"
	OK    Atom = "ok"
	Err   Atom = "error"
)

// Get returns the value stored under key. Keys match when they are equal terms.
func (m Map) Get(key Term) (Term, bool) {
	for _, p := range m {
		if Equal(p.Key, key) {
			return p.Value, true
		}
	}
	return nil, false
}

// Lookup returns the value stored under name, accepting both atom and binary
// keys. Elixir callers use atom keys for structs and string keys for
// configuration maps.
func (m Map) Lookup(name string) (Term, bool) {
	if v, ok := m.Get(Atom(name)); ok {
		return v, true
	}
	return m.Get(Binary(name))
}

// Equal reports whether two terms are structurally equal.
func Equal(a, b Term) bool {
	switch x := a.(type) {
	case Atom:
		y, ok := b.(Atom)
		return ok && x == y
	case Binary:
		y, ok := b.(Binary)
		return ok && string(x) == string(y)
	case Int:
		return integerEqual(int64(x), b)
	case Long:
		return integerEqual(int64(x), b)
	case Float:
		y, ok := b.(Float)
		return ok && x == y
	case List:
		y, ok := b.(List)
		return ok && sliceEqual(x, y)
	case Tuple:
		y, ok := b.(Tuple)
		return ok && sliceEqual(x, y)
	case Map:
		y, ok := b.(Map)
		if !ok || len(x) != len(y) {
			return false
		}
		for _, p := range x {
			v, found := y.Get(p.Key)
			if !found || !Equal(p.Value, v) {
				return false
			}
		}
		return true
	case Ref:
		y, ok := b.(Ref)
		if !ok || x.Node != y.Node || x.Creation != y.Creation || len(x.IDs) != len(y.IDs) {
			return false
		}
		for i := range x.IDs {
			if x.IDs[i] != y.IDs[i] {
				return false
			}
		}
		return true
	case Pid:
		y, ok := b.(Pid)
		return ok && x == y
	default:
		return a == nil && b == nil
	}
}

// Int and Long are both Erlang integers, so 1 and Long(1) are the same term.
func integerEqual(x int64, b Term) bool {
	switch y := b.(type) {
	case Int:
		return x == int64(y)
	case Long:
		return x == int64(y)
	default:
		return false
	}
}

func sliceEqual(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Format renders a term in Erlang-like syntax for logs and test failures.
func Format(t Term) string {
	var sb strings.Builder
	format(&sb, t)
	return sb.String()
}

func format(sb *strings.Builder, t Term) {
	switch v := t.(type) {
	case Atom:
		sb.WriteString(string(v))
	case Binary:
		fmt.Fprintf(sb, "<<%q>>", string(v))
	case Int:
		fmt.Fprintf(sb, "%d", int32(v))
	case Long:
		fmt.Fprintf(sb, "%d", int64(v))
	case Float:
		fmt.Fprintf(sb, "%g", float64(v))
	case List:
		sb.WriteByte('[')
		formatSeq(sb, v)
		sb.WriteByte(']')
	case Tuple:
		sb.WriteByte('{')
		formatSeq(sb, v)
		sb.WriteByte('}')
	case Map:
		sb.WriteString("#{")
		for i, p := range v {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, p.Key)
			sb.WriteString(" => ")
			format(sb, p.Value)
		}
		sb.WriteByte('}')
	case Ref:
		fmt.Fprintf(sb, "#Ref<%s.%v>", v.Node, v.IDs)
	case Pid:
		fmt.Fprintf(sb, "<%s.%d.%d>", v.Node, v.ID, v.Serial)
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}

func formatSeq(sb *strings.Builder, items []Term) {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		format(sb, item)
	}
}
