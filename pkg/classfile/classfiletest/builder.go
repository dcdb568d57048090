// Package classfiletest builds minimal valid class files for tests.
package classfiletest

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Access flag values usable with the builder.
const (
	Public    uint16 = 0x0001
	Private   uint16 = 0x0002
	Protected uint16 = 0x0004
	Static    uint16 = 0x0008
	Final     uint16 = 0x0010
	Super     uint16 = 0x0020
	Interface uint16 = 0x0200
	Abstract  uint16 = 0x0400
	Native    uint16 = 0x0100
	Enum      uint16 = 0x4000
)

// Insn emits the bytes of one instruction, allocating constants as needed.
type Insn func(p *Pool) []byte

// Method describes a method to emit.
type Method struct {
	Name      string
	Desc      string
	Access    uint16
	Throws    []string
	Handlers  int
	MaxStack  int
	MaxLocals int
	// Code is emitted as a Code attribute unless the method is abstract or
	// native. An empty body becomes a single "return".
	Code []Insn
}

type field struct {
	name, desc string
	access     uint16
}

// Builder assembles a class file.
type Builder struct {
	name       string
	super      string
	access     uint16
	interfaces []string
	fields     []field
	methods    []Method
	inner      [][2]string
	major      uint16
}

// New starts a class with the given dotted binary name extending java.lang.Object.
func New(name string) *Builder {
	return &Builder{
		name:   name,
		super:  "java.lang.Object",
		access: Public | Super,
		major:  52,
	}
}

// Super sets the superclass. An empty name emits super_class = 0.
func (b *Builder) Super(name string) *Builder {
	b.super = name

	return b
}

// Access replaces the class access flags.
func (b *Builder) Access(flags uint16) *Builder {
	b.access = flags

	return b
}

// Implements appends interfaces.
func (b *Builder) Implements(names ...string) *Builder {
	b.interfaces = append(b.interfaces, names...)

	return b
}

// Field declares a field.
func (b *Builder) Field(name, desc string, access uint16) *Builder {
	b.fields = append(b.fields, field{name: name, desc: desc, access: access})

	return b
}

// Method declares a method with a simple body.
func (b *Builder) Method(name, desc string, access uint16, code ...Insn) *Builder {
	return b.AddMethod(Method{Name: name, Desc: desc, Access: access, Code: code})
}

// AddMethod declares a fully described method.
func (b *Builder) AddMethod(m Method) *Builder {
	b.methods = append(b.methods, m)

	return b
}

// Inner records an InnerClasses entry linking inner to outer.
func (b *Builder) Inner(inner, outer string) *Builder {
	b.inner = append(b.inner, [2]string{inner, outer})

	return b
}

// Bytes encodes the class.
func (b *Builder) Bytes() []byte {
	pool := &Pool{index: map[string]uint16{}, next: 1}

	var body bytes.Buffer

	thisIdx := pool.Class(b.name)

	var superIdx uint16
	if b.super != "" {
		superIdx = pool.Class(b.super)
	}

	put16(&body, b.access)
	put16(&body, thisIdx)
	put16(&body, superIdx)

	put16(&body, uint16(len(b.interfaces)))

	for _, iface := range b.interfaces {
		put16(&body, pool.Class(iface))
	}

	put16(&body, uint16(len(b.fields)))

	for _, f := range b.fields {
		put16(&body, f.access)
		put16(&body, pool.Utf8(f.name))
		put16(&body, pool.Utf8(f.desc))
		put16(&body, 0)
	}

	put16(&body, uint16(len(b.methods)))

	for _, m := range b.methods {
		b.writeMethod(&body, pool, m)
	}

	if len(b.inner) == 0 {
		put16(&body, 0)
	} else {
		put16(&body, 1)

		var attr bytes.Buffer

		put16(&attr, uint16(len(b.inner)))

		for _, pair := range b.inner {
			put16(&attr, pool.Class(pair[0]))
			put16(&attr, pool.Class(pair[1]))

			short := pair[0]
			if i := strings.LastIndexByte(short, '$'); i >= 0 {
				short = short[i+1:]
			}

			put16(&attr, pool.Utf8(short))
			put16(&attr, Public)
		}

		put16(&body, pool.Utf8("InnerClasses"))
		put32(&body, uint32(attr.Len()))
		body.Write(attr.Bytes())
	}

	var out bytes.Buffer

	put32(&out, 0xCAFEBABE)
	put16(&out, 0)
	put16(&out, b.major)
	put16(&out, pool.next)
	out.Write(pool.buf.Bytes())
	out.Write(body.Bytes())

	return out.Bytes()
}

func (b *Builder) writeMethod(body *bytes.Buffer, pool *Pool, m Method) {
	put16(body, m.Access)
	put16(body, pool.Utf8(m.Name))
	put16(body, pool.Utf8(m.Desc))

	hasCode := m.Access&(Abstract|Native) == 0
	attrs := 0

	if hasCode {
		attrs++
	}

	if len(m.Throws) > 0 {
		attrs++
	}

	put16(body, uint16(attrs))

	if hasCode {
		var code bytes.Buffer

		insns := m.Code
		if len(insns) == 0 {
			insns = []Insn{Op(0xb1)}
		}

		for _, insn := range insns {
			code.Write(insn(pool))
		}

		var attr bytes.Buffer

		put16(&attr, uint16(max(m.MaxStack, 1)))
		put16(&attr, uint16(max(m.MaxLocals, 1)))
		put32(&attr, uint32(code.Len()))
		attr.Write(code.Bytes())
		put16(&attr, uint16(m.Handlers))

		for range m.Handlers {
			put16(&attr, 0)
			put16(&attr, uint16(code.Len()))
			put16(&attr, 0)
			put16(&attr, 0)
		}

		put16(&attr, 0)

		put16(body, pool.Utf8("Code"))
		put32(body, uint32(attr.Len()))
		body.Write(attr.Bytes())
	}

	if len(m.Throws) > 0 {
		var attr bytes.Buffer

		put16(&attr, uint16(len(m.Throws)))

		for _, ex := range m.Throws {
			put16(&attr, pool.Class(ex))
		}

		put16(body, pool.Utf8("Exceptions"))
		put32(body, uint32(attr.Len()))
		body.Write(attr.Bytes())
	}
}

// Pool accumulates constant pool entries, de-duplicating by content.
type Pool struct {
	buf   bytes.Buffer
	index map[string]uint16
	next  uint16
}

func (p *Pool) add(key string, encode func(*bytes.Buffer)) uint16 {
	if idx, ok := p.index[key]; ok {
		return idx
	}

	encode(&p.buf)

	idx := p.next
	p.index[key] = idx
	p.next++

	return idx
}

// Utf8 interns a CONSTANT_Utf8.
func (p *Pool) Utf8(s string) uint16 {
	return p.add("U:"+s, func(w *bytes.Buffer) {
		w.WriteByte(1)
		put16(w, uint16(len(s)))
		w.WriteString(s)
	})
}

// Class interns a CONSTANT_Class for a dotted name or an array descriptor.
func (p *Pool) Class(name string) uint16 {
	internal := name
	if !strings.HasPrefix(name, "[") {
		internal = strings.ReplaceAll(name, ".", "/")
	}

	nameIdx := p.Utf8(internal)

	return p.add("C:"+internal, func(w *bytes.Buffer) {
		w.WriteByte(7)
		put16(w, nameIdx)
	})
}

// String interns a CONSTANT_String.
func (p *Pool) String(s string) uint16 {
	utf := p.Utf8(s)

	return p.add("S:"+s, func(w *bytes.Buffer) {
		w.WriteByte(8)
		put16(w, utf)
	})
}

func (p *Pool) nameAndType(name, desc string) uint16 {
	n := p.Utf8(name)
	d := p.Utf8(desc)

	return p.add("N:"+name+":"+desc, func(w *bytes.Buffer) {
		w.WriteByte(12)
		put16(w, n)
		put16(w, d)
	})
}

func (p *Pool) member(tag byte, owner, name, desc string) uint16 {
	cls := p.Class(owner)
	nat := p.nameAndType(name, desc)

	return p.add(string(rune('0'+tag))+":"+owner+"."+name+":"+desc, func(w *bytes.Buffer) {
		w.WriteByte(tag)
		put16(w, cls)
		put16(w, nat)
	})
}

// Op emits a single-byte instruction.
func Op(opcode byte) Insn {
	return func(*Pool) []byte { return []byte{opcode} }
}

// Raw emits literal bytes.
func Raw(b ...byte) Insn {
	return func(*Pool) []byte { return b }
}

// Local emits a load or store with a one-byte local index.
func Local(opcode byte, index uint8) Insn {
	return Raw(opcode, index)
}

// Iinc emits an iinc instruction.
func Iinc(index uint8, delta int8) Insn {
	return Raw(0x84, index, byte(delta))
}

// Branch emits a jump with a 16-bit relative offset.
func Branch(opcode byte, offset int16) Insn {
	return func(*Pool) []byte {
		return []byte{opcode, byte(uint16(offset) >> 8), byte(uint16(offset))}
	}
}

// Ldc emits ldc_w of a string constant.
func Ldc(s string) Insn {
	return func(p *Pool) []byte {
		return u16Insn(0x13, p.String(s))
	}
}

// Field emits getstatic, putstatic, getfield or putfield.
func Field(opcode byte, owner, name, desc string) Insn {
	return func(p *Pool) []byte {
		return u16Insn(opcode, p.member(9, owner, name, desc))
	}
}

// Invoke emits invokevirtual, invokespecial or invokestatic.
func Invoke(opcode byte, owner, name, desc string) Insn {
	return func(p *Pool) []byte {
		return u16Insn(opcode, p.member(10, owner, name, desc))
	}
}

// InvokeInterface emits invokeinterface.
func InvokeInterface(owner, name, desc string, args uint8) Insn {
	return func(p *Pool) []byte {
		return append(u16Insn(0xb9, p.member(11, owner, name, desc)), args, 0)
	}
}

// Type emits new, anewarray, checkcast or instanceof.
func Type(opcode byte, class string) Insn {
	return func(p *Pool) []byte {
		return u16Insn(opcode, p.Class(class))
	}
}

func u16Insn(opcode byte, idx uint16) []byte {
	return []byte{opcode, byte(idx >> 8), byte(idx)}
}

func put16(w *bytes.Buffer, v uint16) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func put32(w *bytes.Buffer, v uint32) {
	_ = binary.Write(w, binary.BigEndian, v)
}
