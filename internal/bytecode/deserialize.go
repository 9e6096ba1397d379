package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"jstar/internal/gc"
	"jstar/value"
)

// Sentinel causes distinguished by the embedding API's result codes:
// ErrMagic/ErrTruncated/ErrTag map to DESERIALIZE_ERR, ErrVersion to
// VERSION_ERR.
var (
	ErrMagic     = errors.New("not a compiled jstar file")
	ErrVersion   = errors.New("compiled file version mismatch")
	ErrTruncated = errors.New("compiled file is truncated")
	ErrTag       = errors.New("compiled file contains an undefined constant tag")
)

// Deserialize decodes a container produced by Serialize, allocating
// strings and nested prototypes from heap. path is recorded on every
// prototype for stack traces.
func Deserialize(heap *gc.Heap, data []byte, path string) (*value.FuncProto, error) {
	r := &reader{data: data}
	var magic [4]byte
	if err := r.bytes(magic[:]); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrMagic
	}
	version, err := r.u16()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, errors.Wrapf(ErrVersion, "file version %d, expected %d", version, Version)
	}
	proto, err := readFunc(r, heap, path)
	if err != nil {
		return nil, err
	}
	if r.pos != len(r.data) {
		return nil, errors.Wrap(ErrTruncated, "trailing bytes after function")
	}
	return proto, nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) bytes(dst []byte) error {
	if r.pos+len(dst) > len(r.data) {
		return ErrTruncated
	}
	copy(dst, r.data[r.pos:])
	r.pos += len(dst)
	return nil
}

func (r *reader) u8() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrTruncated
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", ErrTruncated
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func readFunc(r *reader, heap *gc.Heap, path string) (*value.FuncProto, error) {
	arity, err := r.u8()
	if err != nil {
		return nil, err
	}

	nDefaults, err := r.u16()
	if err != nil {
		return nil, err
	}
	if int(nDefaults) > int(arity) {
		return nil, errors.Wrap(ErrTruncated, "more defaults than parameters")
	}
	type slotDefault struct {
		slot byte
		val  value.Value
	}
	defaults := make([]slotDefault, nDefaults)
	for i := range defaults {
		slot, err := r.u8()
		if err != nil {
			return nil, err
		}
		if int(slot) >= int(arity) {
			return nil, errors.Wrap(ErrTruncated, "default slot out of range")
		}
		v, err := readValue(r, heap, path)
		if err != nil {
			return nil, err
		}
		defaults[i] = slotDefault{slot: slot, val: v}
	}

	nUpvals, err := r.u8()
	if err != nil {
		return nil, err
	}
	upvals := make([]value.UpvalDesc, nUpvals)
	for i := range upvals {
		fromLocal, err := r.u8()
		if err != nil {
			return nil, err
		}
		idx, err := r.u8()
		if err != nil {
			return nil, err
		}
		upvals[i] = value.UpvalDesc{FromLocal: fromLocal != 0, Index: idx}
	}

	codeLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(codeLen) > len(r.data) {
		return nil, ErrTruncated
	}
	code := make([]byte, codeLen)
	if err := r.bytes(code); err != nil {
		return nil, err
	}

	nConsts, err := r.u16()
	if err != nil {
		return nil, err
	}
	consts := make([]value.Value, nConsts)
	for i := range consts {
		v, err := readValue(r, heap, path)
		if err != nil {
			return nil, err
		}
		consts[i] = v
	}

	name, err := r.str()
	if err != nil {
		return nil, err
	}

	lines, err := readLineInfo(r, int(codeLen))
	if err != nil {
		return nil, err
	}

	flags, err := r.u8()
	if err != nil {
		return nil, err
	}

	proto := heap.NewFuncProto(name, path)
	proto.Arity = int(arity)
	proto.IsGenerator = flags&flagGenerator != 0
	proto.Vararg = flags&flagVararg != 0
	proto.Code = code
	proto.Lines = lines
	proto.Constants = consts
	proto.Upvalues = upvals

	// Rebuild the full parallel default arrays from the stored
	// slot/value pairs.
	proto.Defaults = make([]value.Value, arity)
	proto.HasDefault = make([]bool, arity)
	for i := range proto.Defaults {
		proto.Defaults[i] = value.NullVal()
	}
	for _, d := range defaults {
		proto.Defaults[d.slot] = d.val
		proto.HasDefault[d.slot] = true
	}
	return proto, nil
}

func readValue(r *reader, heap *gc.Heap, path string) (value.Value, error) {
	tag, err := r.u8()
	if err != nil {
		return value.NullVal(), err
	}
	switch tag {
	case tagNull:
		return value.NullVal(), nil
	case tagTrue:
		return value.BoolVal(true), nil
	case tagFalse:
		return value.BoolVal(false), nil
	case tagNumber:
		bits, err := r.u64()
		if err != nil {
			return value.NullVal(), err
		}
		return value.NumberVal(math.Float64frombits(bits)), nil
	case tagString:
		s, err := r.str()
		if err != nil {
			return value.NullVal(), err
		}
		return value.ObjVal(heap.Intern(s)), nil
	case tagProto:
		p, err := readFunc(r, heap, path)
		if err != nil {
			return value.NullVal(), err
		}
		return value.ObjVal(p), nil
	default:
		return value.NullVal(), errors.Wrapf(ErrTag, "tag %d", tag)
	}
}

func readLineInfo(r *reader, codeLen int) ([]int, error) {
	encLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	end := r.pos + int(encLen)
	if end > len(r.data) {
		return nil, ErrTruncated
	}
	lines := make([]int, 0, codeLen)
	for r.pos < end {
		line, err := r.u32()
		if err != nil {
			return nil, err
		}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		if len(lines)+int(count) > codeLen {
			return nil, errors.Wrap(ErrTruncated, "line info longer than code")
		}
		for i := 0; i < int(count); i++ {
			lines = append(lines, int(line))
		}
	}
	return lines, nil
}
