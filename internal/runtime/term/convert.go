package term

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// TypeError reports a term that does not have the expected shape.
type TypeError struct {
	Want string
	Got  Term
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("term: expected %s, got %s", e.Want, Format(e.Got))
}

func typeError(want string, got Term) error {
	return &TypeError{Want: want, Got: got}
}

// IsNil reports whether t is the nil atom (or a Go nil).
func IsNil(t Term) bool {
	if t == nil {
		return true
	}
	a, ok := t.(Atom)
	return ok && a == Nil
}

// ToString accepts a binary, a charlist or an atom.
func ToString(t Term) (string, error) {
	switch v := t.(type) {
	case Binary:
		return string(v), nil
	case Atom:
		return string(v), nil
	case List:
		runes := make([]rune, 0, len(v))
		for _, item := range v {
			n, err := ToInt64(item)
			if err != nil || n < 0 || n > utf8.MaxRune {
				return "", typeError("string", t)
			}
			runes = append(runes, rune(n))
		}
		return string(runes), nil
	default:
		return "", typeError("string", t)
	}
}

// ToBytes accepts a binary or the nil atom (returned as a nil slice).
func ToBytes(t Term) ([]byte, error) {
	if IsNil(t) {
		return nil, nil
	}
	switch v := t.(type) {
	case Binary:
		if v == nil {
			return []byte{}, nil
		}
		return []byte(v), nil
	case List:
		s, err := ToString(v)
		if err != nil {
			return nil, typeError("binary", t)
		}
		return []byte(s), nil
	default:
		return nil, typeError("binary", t)
	}
}

// ToInt64 accepts any integer term.
func ToInt64(t Term) (int64, error) {
	switch v := t.(type) {
	case Int:
		return int64(v), nil
	case Long:
		return int64(v), nil
	default:
		return 0, typeError("integer", t)
	}
}

// ToInt32 accepts integer terms that fit in 32 bits.
func ToInt32(t Term) (int32, error) {
	n, err := ToInt64(t)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, typeError("32-bit integer", t)
	}
	return int32(n), nil
}

// ToList accepts a proper list. The empty list decodes to an empty List.
func ToList(t Term) (List, error) {
	v, ok := t.(List)
	if !ok {
		return nil, typeError("list", t)
	}
	return v, nil
}

// ToTuple accepts a tuple of exactly size elements.
func ToTuple(t Term, size int) (Tuple, error) {
	v, ok := t.(Tuple)
	if !ok || len(v) != size {
		return nil, typeError(fmt.Sprintf("%d-tuple", size), t)
	}
	return v, nil
}

// ToMap accepts a map.
func ToMap(t Term) (Map, error) {
	v, ok := t.(Map)
	if !ok {
		return nil, typeError("map", t)
	}
	return v, nil
}

// ToStrings converts a list of strings.
func ToStrings(t Term) ([]string, error) {
	list, err := ToList(t)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, err := ToString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Strings encodes names as a list of binaries.
func Strings(values []string) List {
	out := make(List, 0, len(values))
	for _, v := range values {
		out = append(out, Binary(v))
	}
	return out
}

// Integer picks the narrowest integer variant for n.
func Integer(n int64) Term {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return Int(n)
	}
	return Long(n)
}

// ToScalar converts a scalar term into a plain Go value: binaries and atoms
// become strings, integers int64, floats float64, true/false bool and the nil
// atom a Go nil.
func ToScalar(t Term) (any, error) {
	switch v := t.(type) {
	case Atom:
		switch v {
		case Nil:
			return nil, nil
		case True:
			return true, nil
		case False:
			return false, nil
		}
		return string(v), nil
	case Binary:
		return string(v), nil
	case Int:
		return int64(v), nil
	case Long:
		return int64(v), nil
	case Float:
		return float64(v), nil
	case List:
		return ToString(v)
	default:
		return nil, typeError("scalar", t)
	}
}
