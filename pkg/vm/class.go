package vm

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/minivm/minijvm/pkg/classfile"
)

// Class is a linked class: the raw decoder records folded into a flat
// runtime constant pool and name-keyed member tables.
type Class struct {
	Descriptor string
	// ConstantPool holds the canonical string form of every pool entry;
	// index 0 is the empty-string sentinel and primitive/empty slots
	// stay "" (typed retrieval goes through TypedConstantAt).
	ConstantPool []string
	Methods      map[string]*Method
	Fields       map[string]*Field

	raw *classfile.ClassFile
}

// Method is a linked method, keyed in its class by "name:descriptor".
type Method struct {
	ID          string
	Name        string
	Descriptor  string
	AccessFlags uint16
	Code        *classfile.CodeAttribute
}

// Field is a linked field, keyed in its class by "name:descriptor".
type Field struct {
	ID          string
	Name        string
	Descriptor  string
	AccessFlags uint16
}

// Link folds a parsed class file into a Class: the descriptor comes
// from this_class, the runtime pool precomputes every string form, and
// methods and fields are keyed by "name:descriptor".
func Link(cf *classfile.ClassFile) (*Class, error) {
	descriptor, err := classfile.AsString(cf.ConstantPool, cf.ThisClass)
	if err != nil {
		return nil, errors.Wrap(err, "resolving this_class")
	}

	pool := make([]string, len(cf.ConstantPool))
	for i := 1; i < len(cf.ConstantPool); i++ {
		s, err := classfile.AsString(cf.ConstantPool, uint16(i))
		if err != nil {
			var nas *classfile.NotAStringError
			if errors.As(err, &nas) {
				continue // primitive or empty slot, retrieved via AsTyped
			}
			return nil, errors.Wrapf(err, "resolving constant pool index %d", i)
		}
		pool[i] = s
	}

	c := &Class{
		Descriptor:   descriptor,
		ConstantPool: pool,
		Methods:      make(map[string]*Method, len(cf.Methods)),
		Fields:       make(map[string]*Field, len(cf.Fields)),
		raw:          cf,
	}

	for i := range cf.Methods {
		m := &cf.Methods[i]
		name, err := classfile.AsString(cf.ConstantPool, m.NameIndex)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving method %d name", i)
		}
		desc, err := classfile.AsString(cf.ConstantPool, m.DescriptorIndex)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving method %d descriptor", i)
		}
		id := name + ":" + desc
		if _, ok := c.Methods[id]; ok {
			return nil, &DuplicateMemberError{Class: descriptor, ID: id}
		}
		c.Methods[id] = &Method{
			ID:          id,
			Name:        name,
			Descriptor:  desc,
			AccessFlags: m.AccessFlags,
			Code:        m.Code,
		}
	}

	for i := range cf.Fields {
		f := &cf.Fields[i]
		name, err := classfile.AsString(cf.ConstantPool, f.NameIndex)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving field %d name", i)
		}
		desc, err := classfile.AsString(cf.ConstantPool, f.DescriptorIndex)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving field %d descriptor", i)
		}
		id := name + ":" + desc
		if _, ok := c.Fields[id]; ok {
			return nil, &DuplicateMemberError{Class: descriptor, ID: id}
		}
		c.Fields[id] = &Field{
			ID:          id,
			Name:        name,
			Descriptor:  desc,
			AccessFlags: f.AccessFlags,
		}
	}

	return c, nil
}

// ConstantAt returns the canonical string at a runtime-pool index.
func (c *Class) ConstantAt(index uint16) (string, error) {
	if index == 0 || int(index) >= len(c.ConstantPool) {
		return "", &classfile.CPIndexOutOfRangeError{Index: index, Size: len(c.ConstantPool)}
	}
	return c.ConstantPool[index], nil
}

// TypedConstantAt returns the typed constant at a pool index, resolved
// against the raw pool.
func (c *Class) TypedConstantAt(index uint16) (classfile.Constant, error) {
	return classfile.AsTyped(c.raw.ConstantPool, index)
}

// FindMethod returns the method with the given "name:descriptor" id.
func (c *Class) FindMethod(id string) (*Method, error) {
	m, ok := c.Methods[id]
	if !ok {
		return nil, &MethodNotFoundError{Class: c.Descriptor, ID: id, Known: lo.Keys(c.Methods)}
	}
	return m, nil
}

// MethodRef is the split form of a "className.name:descriptor" constant.
type MethodRef struct {
	Class             string
	Name              string
	Descriptor        string
	NameAndDescriptor string
}

// ParseMethodRef splits a canonical method-reference string on the
// first "." and ":".
func ParseMethodRef(ref string) (MethodRef, error) {
	class, rest, ok := strings.Cut(ref, ".")
	if !ok {
		return MethodRef{}, &UnresolvedMethodError{Ref: ref}
	}
	name, desc, ok := strings.Cut(rest, ":")
	if !ok || name == "" || desc == "" {
		return MethodRef{}, &UnresolvedMethodError{Ref: ref}
	}
	return MethodRef{
		Class:             class,
		Name:              name,
		Descriptor:        desc,
		NameAndDescriptor: rest,
	}, nil
}
