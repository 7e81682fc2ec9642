package term

import (
	"encoding/binary"
	"fmt"
	"math"
)

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.pos < n {
		return nil, ErrTruncated
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// count validates an element count against the bytes left; every element
// occupies at least one byte.
func (d *decoder) count(n uint32) (int, error) {
	if uint64(n) > uint64(len(d.buf)-d.pos) {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (d *decoder) decode(depth int) (Term, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("term: nesting deeper than %d", maxDepth)
	}

	tag, err := d.u8()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagSmallInteger:
		n, err := d.u8()
		return Int(n), err
	case tagInteger:
		n, err := d.u32()
		return Int(int32(n)), err
	case tagSmallBig:
		n, err := d.u8()
		if err != nil {
			return nil, err
		}
		return d.big(int(n))
	case tagLargeBig:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		size, err := d.count(n)
		if err != nil {
			return nil, err
		}
		return d.big(size)
	case tagNewFloat:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case tagAtom, tagSmallAtom, tagAtomUTF8, tagSmallAtomUTF8:
		return d.atomBody(tag)
	case tagBinary:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		size, err := d.count(n)
		if err != nil {
			return nil, err
		}
		b, err := d.take(size)
		if err != nil {
			return nil, err
		}
		out := make(Binary, size)
		copy(out, b)
		return out, nil
	case tagNil:
		return List{}, nil
	case tagString:
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n))
		if err != nil {
			return nil, err
		}
		out := make(List, 0, len(b))
		for _, c := range b {
			out = append(out, Int(c))
		}
		return out, nil
	case tagList:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		size, err := d.count(n)
		if err != nil {
			return nil, err
		}
		out := make(List, 0, size)
		for i := 0; i < size; i++ {
			item, err := d.decode(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		tail, err := d.u8()
		if err != nil {
			return nil, err
		}
		if tail != tagNil {
			return nil, fmt.Errorf("term: improper lists are not supported")
		}
		return out, nil
	case tagSmallTuple, tagLargeTuple:
		var n uint32
		if tag == tagSmallTuple {
			small, err := d.u8()
			if err != nil {
				return nil, err
			}
			n = uint32(small)
		} else {
			if n, err = d.u32(); err != nil {
				return nil, err
			}
		}
		size, err := d.count(n)
		if err != nil {
			return nil, err
		}
		out := make(Tuple, 0, size)
		for i := 0; i < size; i++ {
			item, err := d.decode(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case tagMap:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		size, err := d.count(n)
		if err != nil {
			return nil, err
		}
		out := make(Map, 0, size)
		for i := 0; i < size; i++ {
			k, err := d.decode(depth + 1)
			if err != nil {
				return nil, err
			}
			v, err := d.decode(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, Pair{Key: k, Value: v})
		}
		return out, nil
	case tagNewerReference, tagNewReference:
		return d.reference(tag)
	case tagNewPid, tagPid:
		return d.pid(tag)
	case tagBitBinary:
		return nil, fmt.Errorf("term: bitstrings are not supported")
	default:
		return nil, fmt.Errorf("term: unsupported tag %d", tag)
	}
}

func (d *decoder) big(n int) (Term, error) {
	sign, err := d.u8()
	if err != nil {
		return nil, err
	}
	digits, err := d.take(n)
	if err != nil {
		return nil, err
	}
	if n > 8 {
		return nil, fmt.Errorf("term: integer wider than 64 bits")
	}

	var magnitude uint64
	for i := len(digits) - 1; i >= 0; i-- {
		magnitude = magnitude<<8 | uint64(digits[i])
	}

	if sign == 0 {
		if magnitude > math.MaxInt64 {
			return nil, fmt.Errorf("term: integer overflows int64")
		}
		return Integer(int64(magnitude)), nil
	}
	if magnitude > 1<<63 {
		return nil, fmt.Errorf("term: integer overflows int64")
	}
	return Integer(int64(-magnitude)), nil
}

func (d *decoder) atomBody(tag uint8) (Atom, error) {
	var n int
	switch tag {
	case tagSmallAtom, tagSmallAtomUTF8:
		small, err := d.u8()
		if err != nil {
			return "", err
		}
		n = int(small)
	default:
		large, err := d.u16()
		if err != nil {
			return "", err
		}
		n = int(large)
	}

	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	if tag == tagAtom || tag == tagSmallAtom {
		// Latin-1: every byte is its own code point.
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return Atom(string(runes)), nil
	}
	return Atom(string(b)), nil
}

func (d *decoder) nodeAtom() (Atom, error) {
	tag, err := d.u8()
	if err != nil {
		return "", err
	}
	switch tag {
	case tagAtom, tagSmallAtom, tagAtomUTF8, tagSmallAtomUTF8:
		return d.atomBody(tag)
	default:
		return "", fmt.Errorf("term: expected node atom, got tag %d", tag)
	}
}

func (d *decoder) reference(tag uint8) (Term, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	node, err := d.nodeAtom()
	if err != nil {
		return nil, err
	}

	var creation uint32
	if tag == tagNewReference {
		c, err := d.u8()
		if err != nil {
			return nil, err
		}
		creation = uint32(c)
	} else if creation, err = d.u32(); err != nil {
		return nil, err
	}

	ids := make([]uint32, 0, n)
	for i := 0; i < int(n); i++ {
		id, err := d.u32()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return Ref{Node: node, Creation: creation, IDs: ids}, nil
}

func (d *decoder) pid(tag uint8) (Term, error) {
	node, err := d.nodeAtom()
	if err != nil {
		return nil, err
	}
	id, err := d.u32()
	if err != nil {
		return nil, err
	}
	serial, err := d.u32()
	if err != nil {
		return nil, err
	}

	var creation uint32
	if tag == tagPid {
		c, err := d.u8()
		if err != nil {
			return nil, err
		}
		creation = uint32(c)
	} else if creation, err = d.u32(); err != nil {
		return nil, err
	}
	return Pid{Node: node, ID: id, Serial: serial, Creation: creation}, nil
}
