// Package extract turns decoded class files into metric records and whole
// version inputs into snapshots.
package extract

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/pkg/classfile"
)

// ErrIncompleteDescriptor is returned for descriptors missing required structure.
var ErrIncompleteDescriptor = errors.New("incomplete class descriptor")

// Class converts one descriptor into a class record. It is pure: the result
// depends only on the descriptor and no shared state is touched.
func Class(desc *classfile.Descriptor) (*model.ClassRecord, error) {
	if err := validate(desc); err != nil {
		return nil, err
	}

	rec := model.NewClassRecord(desc.Name)
	rec.SuperClass = desc.SuperName
	rec.Interfaces = append([]string(nil), desc.Interfaces...)
	rec.Dependencies = append([]string(nil), desc.References...)

	c := &rec.Counters
	c[model.ClassFieldCount] = int64(len(desc.Fields))
	c[model.ClassMethodCount] = int64(len(desc.Methods))
	c[model.ClassInterfaceCount] = int64(len(desc.Interfaces))
	c[model.ClassInnerClassCount] = int64(memberClasses(desc))
	c[model.ClassFanOutCount] = int64(len(desc.References))
	c[model.ClassRawSize] = int64(desc.Size)

	c[model.ClassIsPublic] = flag(desc.Access.Has(classfile.AccPublic))
	c[model.ClassIsAbstract] = flag(desc.Access.Has(classfile.AccAbstract))
	c[model.ClassIsInterface] = flag(desc.Access.Has(classfile.AccInterface))
	c[model.ClassIsFinal] = flag(desc.Access.Has(classfile.AccFinal))
	c[model.ClassIsSynthetic] = flag(desc.Access.Has(classfile.AccSynthetic))

	for _, f := range desc.Fields {
		c[model.ClassPublicFieldCount] += flag(f.Access.Has(classfile.AccPublic))
		c[model.ClassPrivateFieldCount] += flag(f.Access.Has(classfile.AccPrivate))
		c[model.ClassProtectedFieldCount] += flag(f.Access.Has(classfile.AccProtected))
		c[model.ClassStaticFieldCount] += flag(f.Access.Has(classfile.AccStatic))
		c[model.ClassFinalFieldCount] += flag(f.Access.Has(classfile.AccFinal))
	}

	for i := range desc.Methods {
		m := &desc.Methods[i]
		mc := methodCounters(m)

		c[model.ClassPublicMethodCount] += mc[model.MethodIsPublic]
		c[model.ClassPrivateMethodCount] += mc[model.MethodIsPrivate]
		c[model.ClassProtectedMethodCount] += mc[model.MethodIsProtected]
		c[model.ClassStaticMethodCount] += mc[model.MethodIsStatic]
		c[model.ClassFinalMethodCount] += mc[model.MethodIsFinal]
		c[model.ClassAbstractMethodCount] += mc[model.MethodIsAbstract]
		c[model.ClassSynchronizedMethodCount] += mc[model.MethodIsSynchronized]
		c[model.ClassTryCatchBlockCount] += mc[model.MethodTryCatchBlockCount]
		c[model.ClassLocalVarCount] += mc[model.MethodLocalVarCount]
		c[model.ClassExceptionCount] += mc[model.MethodExceptionCount]

		if m.Code != nil {
			countInstructions(c, m.Code.Instructions)
		}

		rec.Methods[m.Signature()] = model.NewMethodRecord(m.Name, m.Descriptor, mc)
	}

	return rec, nil
}

func validate(desc *classfile.Descriptor) error {
	if desc == nil {
		return fmt.Errorf("%w: nil descriptor", ErrIncompleteDescriptor)
	}

	if desc.Name == "" {
		return fmt.Errorf("%w: missing class name", ErrIncompleteDescriptor)
	}

	if desc.SuperName == "" && desc.Name != "java.lang.Object" {
		return fmt.Errorf("%w: %s has no superclass", ErrIncompleteDescriptor, desc.Name)
	}

	for _, m := range desc.Methods {
		if m.Code == nil && !m.Access.Has(classfile.AccAbstract) && !m.Access.Has(classfile.AccNative) {
			return fmt.Errorf("%w: %s.%s has no code", ErrIncompleteDescriptor, desc.Name, m.Signature())
		}
	}

	return nil
}

// memberClasses counts InnerClasses entries declared directly inside desc.
func memberClasses(desc *classfile.Descriptor) int {
	n := 0

	for _, ic := range desc.InnerClasses {
		if ic.Outer == desc.Name && ic.Name != desc.Name {
			n++
		}
	}

	return n
}

func methodCounters(m *classfile.Method) model.MethodCounters {
	var mc model.MethodCounters

	mc[model.MethodIsPublic] = flag(m.Access.Has(classfile.AccPublic))
	mc[model.MethodIsPrivate] = flag(m.Access.Has(classfile.AccPrivate))
	mc[model.MethodIsProtected] = flag(m.Access.Has(classfile.AccProtected))
	mc[model.MethodIsStatic] = flag(m.Access.Has(classfile.AccStatic))
	mc[model.MethodIsFinal] = flag(m.Access.Has(classfile.AccFinal))
	mc[model.MethodIsAbstract] = flag(m.Access.Has(classfile.AccAbstract))
	mc[model.MethodIsSynchronized] = flag(m.Access.Has(classfile.AccSynchronized))
	mc[model.MethodIsNative] = flag(m.Access.Has(classfile.AccNative))
	mc[model.MethodIsConstructor] = flag(m.IsConstructor())
	mc[model.MethodExceptionCount] = int64(len(m.Exceptions))
	mc[model.MethodParameterCount] = int64(max(classfile.ParameterCount(m.Descriptor), 0))

	if m.Code == nil {
		return mc
	}

	mc[model.MethodMaxStack] = int64(m.Code.MaxStack)
	mc[model.MethodLocalVarCount] = int64(m.Code.MaxLocals)
	mc[model.MethodTryCatchBlockCount] = int64(m.Code.ExceptionHandlers)
	mc[model.MethodInstructionCount] = int64(len(m.Code.Instructions))

	for _, insn := range m.Code.Instructions {
		switch insn.Opcode.Category() {
		case classfile.CatBranch:
			mc[model.MethodBranchCount]++
		case classfile.CatMethodCall:
			mc[model.MethodMethodCallCount]++
		case classfile.CatFieldLoad:
			mc[model.MethodFieldLoadCount]++
		case classfile.CatFieldStore:
			mc[model.MethodFieldStoreCount]++
		case classfile.CatThrow:
			mc[model.MethodThrowCount]++
		}
	}

	return mc
}

func countInstructions(c *model.ClassCounters, insns []classfile.Instruction) {
	c[model.ClassInstructionCount] += int64(len(insns))

	for _, insn := range insns {
		switch insn.Opcode.Category() {
		case classfile.CatBranch:
			c[model.ClassBranchCount]++
		case classfile.CatMethodCall:
			c[model.ClassMethodCallCount]++
		case classfile.CatFieldLoad:
			c[model.ClassFieldLoadCount]++
		case classfile.CatFieldStore:
			c[model.ClassFieldStoreCount]++
		case classfile.CatLocalLoad:
			c[model.ClassLoadCount]++
		case classfile.CatLocalStore:
			c[model.ClassStoreCount]++
		case classfile.CatConstant:
			c[model.ClassConstantLoadCount]++
		case classfile.CatIncrement:
			c[model.ClassIncrementCount]++
		case classfile.CatType:
			c[model.ClassTypeInsnCount]++
		case classfile.CatThrow:
			c[model.ClassThrowCount]++
		case classfile.CatOther:
		}
	}
}

func flag(b bool) int64 {
	if b {
		return 1
	}

	return 0
}
