package term

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) encode(t Term, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("term: nesting deeper than %d", maxDepth)
	}

	switch v := t.(type) {
	case Atom:
		return e.atom(v)
	case Binary:
		e.u8(tagBinary)
		e.u32(uint32(len(v)))
		e.buf = append(e.buf, v...)
	case Int:
		e.integer(int64(v))
	case Long:
		e.integer(int64(v))
	case Float:
		e.u8(tagNewFloat)
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(float64(v)))
	case List:
		if len(v) == 0 {
			e.u8(tagNil)
			return nil
		}
		e.u8(tagList)
		e.u32(uint32(len(v)))
		for _, item := range v {
			if err := e.encode(item, depth+1); err != nil {
				return err
			}
		}
		e.u8(tagNil)
	case Tuple:
		if len(v) <= math.MaxUint8 {
			e.u8(tagSmallTuple)
			e.u8(uint8(len(v)))
		} else {
			e.u8(tagLargeTuple)
			e.u32(uint32(len(v)))
		}
		for _, item := range v {
			if err := e.encode(item, depth+1); err != nil {
				return err
			}
		}
	case Map:
		e.u8(tagMap)
		e.u32(uint32(len(v)))
		for _, p := range v {
			if err := e.encode(p.Key, depth+1); err != nil {
				return err
			}
			if err := e.encode(p.Value, depth+1); err != nil {
				return err
			}
		}
	case Ref:
		if len(v.IDs) == 0 || len(v.IDs) > 5 {
			return fmt.Errorf("term: reference must carry 1 to 5 ids, got %d", len(v.IDs))
		}
		e.u8(tagNewerReference)
		e.u16(uint16(len(v.IDs)))
		if err := e.atom(v.Node); err != nil {
			return err
		}
		e.u32(v.Creation)
		for _, id := range v.IDs {
			e.u32(id)
		}
	case Pid:
		e.u8(tagNewPid)
		if err := e.atom(v.Node); err != nil {
			return err
		}
		e.u32(v.ID)
		e.u32(v.Serial)
		e.u32(v.Creation)
	case nil:
		return fmt.Errorf("term: cannot encode a nil term")
	default:
		return fmt.Errorf("term: cannot encode %T", t)
	}
	return nil
}

func (e *encoder) atom(a Atom) error {
	if !utf8.ValidString(string(a)) {
		return fmt.Errorf("term: atom %q is not valid UTF-8", string(a))
	}
	if utf8.RuneCountInString(string(a)) > 255 {
		return fmt.Errorf("term: atom %q exceeds 255 characters", string(a))
	}
	if len(a) <= math.MaxUint8 {
		e.u8(tagSmallAtomUTF8)
		e.u8(uint8(len(a)))
	} else {
		e.u8(tagAtomUTF8)
		e.u16(uint16(len(a)))
	}
	e.buf = append(e.buf, a...)
	return nil
}

func (e *encoder) integer(n int64) {
	switch {
	case n >= 0 && n <= math.MaxUint8:
		e.u8(tagSmallInteger)
		e.u8(uint8(n))
	case n >= math.MinInt32 && n <= math.MaxInt32:
		e.u8(tagInteger)
		e.u32(uint32(int32(n)))
	default:
		var sign uint8
		magnitude := uint64(n)
		if n < 0 {
			sign = 1
			magnitude = uint64(-(n + 1)) + 1
		}
		var digits []byte
		for magnitude > 0 {
			digits = append(digits, byte(magnitude))
			magnitude >>= 8
		}
		e.u8(tagSmallBig)
		e.u8(uint8(len(digits)))
		e.u8(sign)
		e.buf = append(e.buf, digits...)
	}
}
