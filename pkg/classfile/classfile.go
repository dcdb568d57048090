// Package classfile decodes JVM class files into structural descriptors.
//
// The decoder reads the constant pool, the class
// header, fields, methods and the handful of attributes needed for metric
// extraction (Code, Exceptions, InnerClasses). Everything else is skipped.
package classfile

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Magic is the leading four bytes of every class file.
const Magic = 0xCAFEBABE

// Sentinel decode errors.
var (
	ErrBadMagic  = errors.New("classfile: bad magic number")
	ErrTruncated = errors.New("classfile: truncated input")
	ErrMalformed = errors.New("classfile: malformed class")
)

// AccessFlags is the JVM access_flags bit set.
type AccessFlags uint16

// Access flag bits. Some bits are overloaded between classes, fields and methods.
const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccSuper        AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

// Has reports whether all bits of flag are set.
func (a AccessFlags) Has(flag AccessFlags) bool {
	return a&flag == flag
}

// Descriptor is the structural view of one decoded class.
type Descriptor struct {
	MajorVersion uint16
	MinorVersion uint16

	// Name is the binary class name in dotted form, e.g. "com.acme.Outer$Inner".
	Name       string
	SuperName  string
	Interfaces []string
	Access     AccessFlags

	Fields       []Field
	Methods      []Method
	InnerClasses []InnerClass

	// References holds every class named by a CONSTANT_Class entry, excluding
	// the class itself, array wrappers stripped, sorted and de-duplicated.
	References []string

	// Size is the length of the encoded class in bytes.
	Size int
}

// Field is a declared field.
type Field struct {
	Name       string
	Descriptor string
	Access     AccessFlags
}

// Method is a declared method. Code is nil for abstract and native methods.
type Method struct {
	Name       string
	Descriptor string
	Access     AccessFlags
	Exceptions []string
	Code       *Code
}

// Signature returns name plus descriptor, unique within a class.
func (m Method) Signature() string {
	return m.Name + m.Descriptor
}

// IsConstructor reports whether the method is an instance initializer.
func (m Method) IsConstructor() bool {
	return m.Name == "<init>"
}

// Code is the decoded Code attribute of a method.
type Code struct {
	MaxStack          int
	MaxLocals         int
	Length            int
	ExceptionHandlers int
	Instructions      []Instruction
}

// Instruction is one decoded bytecode instruction.
// For wide-prefixed instructions Opcode is the widened opcode.
type Instruction struct {
	Offset int
	Opcode Opcode
	// Owner is the class referenced by field, method and type instructions.
	Owner string
}

// InnerClass is an entry of the InnerClasses attribute.
type InnerClass struct {
	Name   string
	Outer  string
	Access AccessFlags
}

// Decode reads a whole class file from r.
func Decode(r io.Reader) (*Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("classfile: read: %w", err)
	}

	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory class file.
func DecodeBytes(data []byte) (*Descriptor, error) {
	rd := &reader{buf: data}

	if rd.u4() != Magic {
		if rd.err != nil {
			return nil, rd.err
		}

		return nil, ErrBadMagic
	}

	desc := &Descriptor{Size: len(data)}
	desc.MinorVersion = rd.u2()
	desc.MajorVersion = rd.u2()

	pool, err := readPool(rd)
	if err != nil {
		return nil, err
	}

	desc.Access = AccessFlags(rd.u2())

	desc.Name, err = pool.className(rd.u2())
	if err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}

	superIdx := rd.u2()
	if superIdx != 0 {
		desc.SuperName, err = pool.className(superIdx)
		if err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	ifaceCount := int(rd.u2())
	for range ifaceCount {
		name, ifaceErr := pool.className(rd.u2())
		if ifaceErr != nil {
			return nil, fmt.Errorf("interfaces: %w", ifaceErr)
		}

		desc.Interfaces = append(desc.Interfaces, name)
	}

	desc.Fields, err = readFields(rd, pool)
	if err != nil {
		return nil, err
	}

	desc.Methods, err = readMethods(rd, pool)
	if err != nil {
		return nil, err
	}

	err = readClassAttributes(rd, pool, desc)
	if err != nil {
		return nil, err
	}

	if rd.err != nil {
		return nil, rd.err
	}

	desc.References = pool.references(desc.Name)

	return desc, nil
}

func readFields(rd *reader, pool *constantPool) ([]Field, error) {
	count := int(rd.u2())
	fields := make([]Field, 0, count)

	for range count {
		access := AccessFlags(rd.u2())

		name, err := pool.utf8(rd.u2())
		if err != nil {
			return nil, fmt.Errorf("field name: %w", err)
		}

		descriptor, err := pool.utf8(rd.u2())
		if err != nil {
			return nil, fmt.Errorf("field descriptor: %w", err)
		}

		skipAttributes(rd)

		fields = append(fields, Field{Name: name, Descriptor: descriptor, Access: access})
	}

	return fields, rd.err
}

func readMethods(rd *reader, pool *constantPool) ([]Method, error) {
	count := int(rd.u2())
	methods := make([]Method, 0, count)

	for range count {
		method := Method{Access: AccessFlags(rd.u2())}

		var err error

		method.Name, err = pool.utf8(rd.u2())
		if err != nil {
			return nil, fmt.Errorf("method name: %w", err)
		}

		method.Descriptor, err = pool.utf8(rd.u2())
		if err != nil {
			return nil, fmt.Errorf("method descriptor: %w", err)
		}

		attrCount := int(rd.u2())
		for range attrCount {
			attrName, body := readAttribute(rd, pool)
			if rd.err != nil {
				return nil, rd.err
			}

			switch attrName {
			case "Code":
				method.Code, err = readCode(body, pool)
				if err != nil {
					return nil, fmt.Errorf("method %s code: %w", method.Name, err)
				}
			case "Exceptions":
				method.Exceptions, err = readExceptions(body, pool)
				if err != nil {
					return nil, fmt.Errorf("method %s exceptions: %w", method.Name, err)
				}
			}
		}

		methods = append(methods, method)
	}

	return methods, rd.err
}

func readClassAttributes(rd *reader, pool *constantPool, desc *Descriptor) error {
	count := int(rd.u2())

	for range count {
		attrName, body := readAttribute(rd, pool)
		if rd.err != nil {
			return rd.err
		}

		if attrName != "InnerClasses" {
			continue
		}

		inner, err := readInnerClasses(body, pool)
		if err != nil {
			return fmt.Errorf("inner classes: %w", err)
		}

		desc.InnerClasses = inner
	}

	return nil
}

// readAttribute returns the attribute name and body.
// Unresolvable names come back as "" and are skipped by callers.
func readAttribute(rd *reader, pool *constantPool) (string, []byte) {
	nameIdx := rd.u2()
	body := rd.bytes(int(rd.u4()))

	name, err := pool.utf8(nameIdx)
	if err != nil {
		return "", body
	}

	return name, body
}

func skipAttributes(rd *reader) {
	count := int(rd.u2())
	for range count {
		rd.u2()
		rd.bytes(int(rd.u4()))
	}
}

func readCode(body []byte, pool *constantPool) (*Code, error) {
	rd := &reader{buf: body}

	code := &Code{
		MaxStack:  int(rd.u2()),
		MaxLocals: int(rd.u2()),
	}

	length := int(rd.u4())
	bytecode := rd.bytes(length)
	code.Length = length
	code.ExceptionHandlers = int(rd.u2())
	rd.bytes(code.ExceptionHandlers * exceptionEntrySize)

	if rd.err != nil {
		return nil, rd.err
	}

	insns, err := walkBytecode(bytecode, pool)
	if err != nil {
		return nil, err
	}

	code.Instructions = insns

	return code, nil
}

// exceptionEntrySize is start_pc, end_pc, handler_pc, catch_type (4 x u2).
const exceptionEntrySize = 8

func readExceptions(body []byte, pool *constantPool) ([]string, error) {
	rd := &reader{buf: body}
	count := int(rd.u2())
	names := make([]string, 0, count)

	for range count {
		name, err := pool.className(rd.u2())
		if err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, rd.err
}

func readInnerClasses(body []byte, pool *constantPool) ([]InnerClass, error) {
	rd := &reader{buf: body}
	count := int(rd.u2())
	inner := make([]InnerClass, 0, count)

	for range count {
		innerIdx := rd.u2()
		outerIdx := rd.u2()
		rd.u2() // inner_name_index.
		access := AccessFlags(rd.u2())

		name, err := pool.className(innerIdx)
		if err != nil {
			return nil, err
		}

		var outer string
		if outerIdx != 0 {
			outer, err = pool.className(outerIdx)
			if err != nil {
				return nil, err
			}
		}

		inner = append(inner, InnerClass{Name: name, Outer: outer, Access: access})
	}

	return inner, rd.err
}

// ParameterCount returns the number of parameters in a method descriptor.
// It returns -1 when the descriptor is malformed.
func ParameterCount(descriptor string) int {
	if !strings.HasPrefix(descriptor, "(") {
		return -1
	}

	count := 0

	for i := 1; i < len(descriptor); i++ {
		switch descriptor[i] {
		case ')':
			return count
		case '[':
			continue
		case 'L':
			end := strings.IndexByte(descriptor[i:], ';')
			if end < 0 {
				return -1
			}

			i += end
			count++
		default:
			count++
		}
	}

	return -1
}

// binaryName converts an internal name ("a/b/C") to dotted form and strips
// array wrappers ("[[La/b/C;" becomes "a.b.C"). Primitive arrays return "".
func binaryName(internal string) string {
	name := strings.TrimLeft(internal, "[")
	if len(name) != len(internal) {
		if !strings.HasPrefix(name, "L") || !strings.HasSuffix(name, ";") {
			return ""
		}

		name = name[1 : len(name)-1]
	}

	return strings.ReplaceAll(name, "/", ".")
}

func sortedUnique(names []string) []string {
	if len(names) == 0 {
		return nil
	}

	sort.Strings(names)

	out := names[:1]
	for _, n := range names[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}

	return out
}
