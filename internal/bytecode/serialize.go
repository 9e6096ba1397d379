// Package bytecode implements the compiled-function container format:
// a self-describing, little-endian, byte-aligned encoding of a function
// prototype tree behind four magic bytes and a version tag. Opcode
// numbering is part of this versioned format: any change to
// internal/opcode's table must bump Version.
package bytecode

import (
	"bytes"
	"encoding/binary"
	"math"

	"jstar/value"
)

// Magic identifies a serialized J* function; Version gates every
// structural or opcode-numbering change.
var Magic = [4]byte{0xb5, 'J', 's', 'C'}

const Version uint16 = 1

// Constant-pool entry tags. Null and Bool appear only in default
// tables, but the decoder accepts them anywhere for uniformity.
const (
	tagNumber byte = iota
	tagString
	tagProto
	tagNull
	tagTrue
	tagFalse
)

// Function flag bits (the is_generator byte of the container grammar).
const (
	flagGenerator byte = 1 << iota
	flagVararg
)

// Serialize encodes proto and its nested prototypes into the container
// format. Compilation is deterministic, so identical source yields a
// byte-identical result.
func Serialize(proto *value.FuncProto) []byte {
	var b bytes.Buffer
	b.Write(Magic[:])
	writeU16(&b, Version)
	writeFunc(&b, proto)
	return b.Bytes()
}

func writeU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}

func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func writeU64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

func writeString(b *bytes.Buffer, s string) {
	writeU16(b, uint16(len(s)))
	b.WriteString(s)
}

// writeFunc encodes one prototype:
//
//	arity(u8) n_defaults(u16) defaults(value[])
//	n_upvalues(u8) upvalues(upvalue_desc[])
//	code_len(u32) code(byte[])
//	const_len(u16) consts(const[])
//	name_len(u16) name(byte[])
//	lineinfo_len(u32) lineinfo(byte[])
//	flags(u8)
func writeFunc(b *bytes.Buffer, f *value.FuncProto) {
	b.WriteByte(byte(f.Arity))

	// Each defaulted parameter is stored as its slot index plus the
	// constant value; the decoder rebuilds the parallel placeholder
	// arrays from the arity. A vararg parameter never carries a default,
	// so slots are not necessarily contiguous from the end.
	nDefaults := 0
	for _, has := range f.HasDefault {
		if has {
			nDefaults++
		}
	}
	writeU16(b, uint16(nDefaults))
	for i, has := range f.HasDefault {
		if has {
			b.WriteByte(byte(i))
			writeValue(b, f.Defaults[i])
		}
	}

	b.WriteByte(byte(len(f.Upvalues)))
	for _, uv := range f.Upvalues {
		fromLocal := byte(0)
		if uv.FromLocal {
			fromLocal = 1
		}
		b.WriteByte(fromLocal)
		b.WriteByte(uv.Index)
	}

	writeU32(b, uint32(len(f.Code)))
	b.Write(f.Code)

	writeU16(b, uint16(len(f.Constants)))
	for _, c := range f.Constants {
		writeValue(b, c)
	}

	writeString(b, f.Name)

	writeLineInfo(b, f.Lines)

	flags := byte(0)
	if f.IsGenerator {
		flags |= flagGenerator
	}
	if f.Vararg {
		flags |= flagVararg
	}
	b.WriteByte(flags)
}

func writeValue(b *bytes.Buffer, v value.Value) {
	switch v.Kind() {
	case value.Null:
		b.WriteByte(tagNull)
	case value.Bool:
		if v.AsBool() {
			b.WriteByte(tagTrue)
		} else {
			b.WriteByte(tagFalse)
		}
	case value.Number:
		b.WriteByte(tagNumber)
		writeU64(b, math.Float64bits(v.AsNumber()))
	case value.Object:
		switch o := v.AsObj().(type) {
		case *value.String:
			b.WriteByte(tagString)
			writeString(b, o.Bytes)
		case *value.FuncProto:
			b.WriteByte(tagProto)
			writeFunc(b, o)
		}
	}
}

// writeLineInfo run-length encodes the per-byte line table as
// (line u32, count u32) pairs, preceded by the encoded byte length.
func writeLineInfo(b *bytes.Buffer, lines []int) {
	var enc bytes.Buffer
	i := 0
	for i < len(lines) {
		j := i
		for j < len(lines) && lines[j] == lines[i] {
			j++
		}
		writeU32(&enc, uint32(lines[i]))
		writeU32(&enc, uint32(j-i))
		i = j
	}
	writeU32(b, uint32(enc.Len()))
	b.Write(enc.Bytes())
}
