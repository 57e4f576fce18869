package classfile

import (
	"fmt"

	"github.com/minivm/minijvm/pkg/binary"
)

// Encode serializes the class file back to its on-disk form. Decoding a
// buffer and encoding the result reproduces the original bytes: opaque
// attributes are copied verbatim and the Code attribute is rebuilt from
// its parsed structure.
func (cf *ClassFile) Encode() []byte {
	w := binary.NewWriter()

	w.U32(classMagic)
	w.U16(cf.MinorVersion)
	w.U16(cf.MajorVersion)

	w.U16(cf.PoolCount())
	for i := 1; i < len(cf.ConstantPool); i++ {
		encodeConstant(w, cf.ConstantPool[i])
	}

	w.U16(cf.AccessFlags)
	w.U16(cf.ThisClass)
	w.U16(cf.SuperClass)

	w.U16(uint16(len(cf.Interfaces)))
	for _, iface := range cf.Interfaces {
		w.U16(iface)
	}

	w.U16(uint16(len(cf.Fields)))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		w.U16(f.AccessFlags)
		w.U16(f.NameIndex)
		w.U16(f.DescriptorIndex)
		encodeAttributes(w, f.Attributes)
	}

	w.U16(uint16(len(cf.Methods)))
	for i := range cf.Methods {
		m := &cf.Methods[i]
		w.U16(m.AccessFlags)
		w.U16(m.NameIndex)
		w.U16(m.DescriptorIndex)
		encodeAttributes(w, m.Attributes)
	}

	encodeAttributes(w, cf.Attributes)

	return w.Buf()
}

func encodeConstant(w *binary.Writer, entry ConstantPoolEntry) {
	switch c := entry.(type) {
	case *ConstantUtf8:
		w.U8(TagUtf8)
		w.U16(uint16(len(c.Value)))
		w.Bytes([]byte(c.Value))
	case *ConstantInteger:
		w.U8(TagInteger)
		w.U32(c.Bits)
	case *ConstantFloat:
		w.U8(TagFloat)
		w.U32(c.Bits)
	case *ConstantLong:
		w.U8(TagLong)
		w.U32(c.HighBytes)
		w.U32(c.LowBytes)
	case *ConstantDouble:
		w.U8(TagDouble)
		w.U32(c.HighBytes)
		w.U32(c.LowBytes)
	case *ConstantClass:
		w.U8(TagClass)
		w.U16(c.NameIndex)
	case *ConstantString:
		w.U8(TagString)
		w.U16(c.StringIndex)
	case *ConstantFieldref:
		w.U8(TagFieldref)
		w.U16(c.ClassIndex)
		w.U16(c.NameAndTypeIndex)
	case *ConstantMethodref:
		w.U8(TagMethodref)
		w.U16(c.ClassIndex)
		w.U16(c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		w.U8(TagInterfaceMethodref)
		w.U16(c.ClassIndex)
		w.U16(c.NameAndTypeIndex)
	case *ConstantNameAndType:
		w.U8(TagNameAndType)
		w.U16(c.NameIndex)
		w.U16(c.DescriptorIndex)
	case *ConstantMethodHandle:
		w.U8(TagMethodHandle)
		w.U8(c.ReferenceKind)
		w.U16(c.ReferenceIndex)
	case *ConstantMethodType:
		w.U8(TagMethodType)
		w.U16(c.DescriptorIndex)
	case *ConstantDynamic:
		w.U8(TagDynamic)
		w.U16(c.BootstrapMethodAttrIndex)
		w.U16(c.NameAndTypeIndex)
	case *ConstantInvokeDynamic:
		w.U8(TagInvokeDynamic)
		w.U16(c.BootstrapMethodAttrIndex)
		w.U16(c.NameAndTypeIndex)
	case *ConstantModule:
		w.U8(TagModule)
		w.U16(c.NameIndex)
	case *ConstantPackage:
		w.U8(TagPackage)
		w.U16(c.NameIndex)
	case *ConstantEmpty:
		// the second slot of a Long/Double has no on-disk form
	default:
		panic(fmt.Sprintf("unencodable constant pool entry %T", entry))
	}
}

func encodeAttributes(w *binary.Writer, attrs []AttributeInfo) {
	w.U16(uint16(len(attrs)))
	for i := range attrs {
		a := &attrs[i]
		w.U16(a.NameIndex)
		if a.Code != nil {
			body := encodeCode(a.Code)
			w.U32(uint32(len(body)))
			w.Bytes(body)
			continue
		}
		w.U32(uint32(len(a.Data)))
		w.Bytes(a.Data)
	}
}

func encodeCode(code *CodeAttribute) []byte {
	w := binary.NewWriter()
	w.U16(code.MaxStack)
	w.U16(code.MaxLocals)
	w.U32(uint32(len(code.Code)))
	w.Bytes(code.Code)
	w.U16(uint16(len(code.ExceptionTable)))
	for _, h := range code.ExceptionTable {
		w.U16(h.StartPC)
		w.U16(h.EndPC)
		w.U16(h.HandlerPC)
		w.U16(h.CatchType)
	}
	encodeAttributes(w, code.Attributes)
	return w.Buf()
}
