package classfile

import (
	"fmt"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

type constant struct {
	tag  uint8
	str  string
	idx1 uint16
	idx2 uint16
}

type constantPool struct {
	entries []constant
}

func readPool(rd *reader) (*constantPool, error) {
	count := int(rd.u2())
	if rd.err != nil {
		return nil, rd.err
	}

	if count == 0 {
		return nil, fmt.Errorf("%w: empty constant pool", ErrMalformed)
	}

	pool := &constantPool{entries: make([]constant, count)}

	for i := 1; i < count; i++ {
		tag := rd.u1()
		entry := constant{tag: tag}

		switch tag {
		case tagUtf8:
			entry.str = string(rd.bytes(int(rd.u2())))
		case tagInteger, tagFloat:
			rd.u4()
		case tagLong, tagDouble:
			rd.u4()
			rd.u4()
			pool.entries[i] = entry
			i++ // Eight-byte constants occupy two slots.

			continue
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			entry.idx1 = rd.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			entry.idx1 = rd.u2()
			entry.idx2 = rd.u2()
		case tagMethodHandle:
			rd.u1()
			entry.idx1 = rd.u2()
		default:
			if rd.err != nil {
				return nil, rd.err
			}

			return nil, fmt.Errorf("%w: unknown constant tag %d at index %d", ErrMalformed, tag, i)
		}

		if rd.err != nil {
			return nil, rd.err
		}

		pool.entries[i] = entry
	}

	return pool, nil
}

func (p *constantPool) get(idx uint16, tag uint8) (constant, error) {
	if idx == 0 || int(idx) >= len(p.entries) {
		return constant{}, fmt.Errorf("%w: constant index %d out of range", ErrMalformed, idx)
	}

	entry := p.entries[idx]
	if entry.tag != tag {
		return constant{}, fmt.Errorf("%w: constant %d has tag %d, want %d", ErrMalformed, idx, entry.tag, tag)
	}

	return entry, nil
}

func (p *constantPool) utf8(idx uint16) (string, error) {
	entry, err := p.get(idx, tagUtf8)
	if err != nil {
		return "", err
	}

	return entry.str, nil
}

// className resolves a CONSTANT_Class index to a dotted binary name.
func (p *constantPool) className(idx uint16) (string, error) {
	entry, err := p.get(idx, tagClass)
	if err != nil {
		return "", err
	}

	internal, err := p.utf8(entry.idx1)
	if err != nil {
		return "", err
	}

	return binaryName(internal), nil
}

// memberOwner resolves the owning class of a Fieldref, Methodref or
// InterfaceMethodref.
func (p *constantPool) memberOwner(idx uint16) (string, error) {
	if idx == 0 || int(idx) >= len(p.entries) {
		return "", fmt.Errorf("%w: member index %d out of range", ErrMalformed, idx)
	}

	entry := p.entries[idx]

	switch entry.tag {
	case tagFieldref, tagMethodref, tagInterfaceMethodref:
		return p.className(entry.idx1)
	case tagInvokeDynamic:
		return "", nil
	default:
		return "", fmt.Errorf("%w: constant %d is not a member reference", ErrMalformed, idx)
	}
}

func (p *constantPool) references(self string) []string {
	var names []string

	for _, entry := range p.entries {
		if entry.tag != tagClass {
			continue
		}

		internal, err := p.utf8(entry.idx1)
		if err != nil {
			continue
		}

		name := binaryName(internal)
		if name == "" || name == self {
			continue
		}

		names = append(names, name)
	}

	return sortedUnique(names)
}
