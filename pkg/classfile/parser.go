package classfile

import (
	"fmt"
	"os"

	"github.com/minivm/minijvm/pkg/binary"
)

const classMagic = 0xCAFEBABE

// ParseFile reads and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a .class file from a fully buffered byte slice.
func Parse(data []byte) (*ClassFile, error) {
	d := &decoder{cur: binary.NewCursor(data)}
	return d.parseClassFile()
}

// decoder wraps a cursor so every read failure carries the offset at
// which the read started.
type decoder struct {
	cur *binary.Cursor
}

func (d *decoder) fail(format string, args ...interface{}) error {
	return &MalformedClassFileError{Offset: d.cur.Off(), Reason: fmt.Sprintf(format, args...)}
}

func (d *decoder) u8(what string) (uint8, error) {
	off := d.cur.Off()
	v, err := d.cur.U8()
	if err != nil {
		return 0, &MalformedClassFileError{Offset: off, Reason: "reading " + what + ": truncated"}
	}
	return v, nil
}

func (d *decoder) u16(what string) (uint16, error) {
	off := d.cur.Off()
	v, err := d.cur.U16()
	if err != nil {
		return 0, &MalformedClassFileError{Offset: off, Reason: "reading " + what + ": truncated"}
	}
	return v, nil
}

func (d *decoder) u32(what string) (uint32, error) {
	off := d.cur.Off()
	v, err := d.cur.U32()
	if err != nil {
		return 0, &MalformedClassFileError{Offset: off, Reason: "reading " + what + ": truncated"}
	}
	return v, nil
}

func (d *decoder) bytes(n int, what string) ([]byte, error) {
	off := d.cur.Off()
	b, err := d.cur.Bytes(n)
	if err != nil {
		return nil, &MalformedClassFileError{Offset: off, Reason: fmt.Sprintf("reading %s: %d bytes wanted, %d left", what, n, d.cur.Remaining())}
	}
	return b, nil
}

func (d *decoder) parseClassFile() (*ClassFile, error) {
	cf := &ClassFile{}

	magic, err := d.u32("magic")
	if err != nil {
		return nil, err
	}
	if magic != classMagic {
		return nil, d.fail("invalid magic number 0x%08X (expected 0xCAFEBABE)", magic)
	}

	if cf.MinorVersion, err = d.u16("minor version"); err != nil {
		return nil, err
	}
	if cf.MajorVersion, err = d.u16("major version"); err != nil {
		return nil, err
	}

	cpCount, err := d.u16("constant pool count")
	if err != nil {
		return nil, err
	}
	if cf.ConstantPool, err = d.parseConstantPool(cpCount); err != nil {
		return nil, err
	}

	if cf.AccessFlags, err = d.u16("access flags"); err != nil {
		return nil, err
	}
	if cf.ThisClass, err = d.u16("this_class"); err != nil {
		return nil, err
	}
	if cf.SuperClass, err = d.u16("super_class"); err != nil {
		return nil, err
	}

	ifaceCount, err := d.u16("interfaces count")
	if err != nil {
		return nil, err
	}
	cf.Interfaces = make([]uint16, ifaceCount)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = d.u16(fmt.Sprintf("interface %d", i)); err != nil {
			return nil, err
		}
	}

	fieldsCount, err := d.u16("fields count")
	if err != nil {
		return nil, err
	}
	if cf.Fields, err = d.parseFields(cf.ConstantPool, fieldsCount); err != nil {
		return nil, err
	}

	methodsCount, err := d.u16("methods count")
	if err != nil {
		return nil, err
	}
	if cf.Methods, err = d.parseMethods(cf.ConstantPool, methodsCount); err != nil {
		return nil, err
	}

	attrCount, err := d.u16("class attributes count")
	if err != nil {
		return nil, err
	}
	if cf.Attributes, err = d.parseAttributes(cf.ConstantPool, attrCount); err != nil {
		return nil, err
	}

	return cf, nil
}

// parseConstantPool reads count-1 logical entries. The returned slice is
// 1-indexed: index 0 stays nil, and the slot after each Long or Double
// entry holds a ConstantEmpty.
func (d *decoder) parseConstantPool(count uint16) ([]ConstantPoolEntry, error) {
	if count == 0 {
		return nil, d.fail("constant pool count is 0")
	}
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		tag, err := d.u8(fmt.Sprintf("constant pool tag at index %d", i))
		if err != nil {
			return nil, err
		}

		switch tag {
		case TagUtf8:
			length, err := d.u16(fmt.Sprintf("Utf8 length at index %d", i))
			if err != nil {
				return nil, err
			}
			b, err := d.bytes(int(length), fmt.Sprintf("Utf8 bytes at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantUtf8{Value: string(b)}

		case TagInteger:
			bits, err := d.u32(fmt.Sprintf("Integer at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantInteger{Bits: bits}

		case TagFloat:
			bits, err := d.u32(fmt.Sprintf("Float at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantFloat{Bits: bits}

		case TagLong:
			high, err := d.u32(fmt.Sprintf("Long high bytes at index %d", i))
			if err != nil {
				return nil, err
			}
			low, err := d.u32(fmt.Sprintf("Long low bytes at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantLong{HighBytes: high, LowBytes: low}
			i++ // long takes 2 slots
			if i < count {
				pool[i] = &ConstantEmpty{}
			}

		case TagDouble:
			high, err := d.u32(fmt.Sprintf("Double high bytes at index %d", i))
			if err != nil {
				return nil, err
			}
			low, err := d.u32(fmt.Sprintf("Double low bytes at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantDouble{HighBytes: high, LowBytes: low}
			i++ // double takes 2 slots
			if i < count {
				pool[i] = &ConstantEmpty{}
			}

		case TagClass:
			nameIndex, err := d.u16(fmt.Sprintf("Class name_index at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			stringIndex, err := d.u16(fmt.Sprintf("String string_index at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			classIndex, err := d.u16(fmt.Sprintf("ref class_index at index %d", i))
			if err != nil {
				return nil, err
			}
			natIndex, err := d.u16(fmt.Sprintf("ref name_and_type_index at index %d", i))
			if err != nil {
				return nil, err
			}
			switch tag {
			case TagFieldref:
				pool[i] = &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			case TagMethodref:
				pool[i] = &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			default:
				pool[i] = &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			}

		case TagNameAndType:
			nameIndex, err := d.u16(fmt.Sprintf("NameAndType name_index at index %d", i))
			if err != nil {
				return nil, err
			}
			descIndex, err := d.u16(fmt.Sprintf("NameAndType descriptor_index at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			kind, err := d.u8(fmt.Sprintf("MethodHandle reference_kind at index %d", i))
			if err != nil {
				return nil, err
			}
			refIndex, err := d.u16(fmt.Sprintf("MethodHandle reference_index at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: refIndex}

		case TagMethodType:
			descIndex, err := d.u16(fmt.Sprintf("MethodType descriptor_index at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			bsmIndex, err := d.u16(fmt.Sprintf("Dynamic bootstrap_method_attr_index at index %d", i))
			if err != nil {
				return nil, err
			}
			natIndex, err := d.u16(fmt.Sprintf("Dynamic name_and_type_index at index %d", i))
			if err != nil {
				return nil, err
			}
			if tag == TagDynamic {
				pool[i] = &ConstantDynamic{BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}
			} else {
				pool[i] = &ConstantInvokeDynamic{BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}
			}

		case TagModule:
			nameIndex, err := d.u16(fmt.Sprintf("Module name_index at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantModule{NameIndex: nameIndex}

		case TagPackage:
			nameIndex, err := d.u16(fmt.Sprintf("Package name_index at index %d", i))
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantPackage{NameIndex: nameIndex}

		default:
			return nil, d.fail("unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return pool, nil
}

func (d *decoder) parseFields(pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := range fields {
		accessFlags, err := d.u16(fmt.Sprintf("field %d access flags", i))
		if err != nil {
			return nil, err
		}
		nameIndex, err := d.u16(fmt.Sprintf("field %d name index", i))
		if err != nil {
			return nil, err
		}
		descIndex, err := d.u16(fmt.Sprintf("field %d descriptor index", i))
		if err != nil {
			return nil, err
		}
		attrCount, err := d.u16(fmt.Sprintf("field %d attributes count", i))
		if err != nil {
			return nil, err
		}
		attrs, err := d.parseAttributes(pool, attrCount)
		if err != nil {
			return nil, err
		}
		fields[i] = FieldInfo{
			AccessFlags:     accessFlags,
			NameIndex:       nameIndex,
			DescriptorIndex: descIndex,
			Attributes:      attrs,
		}
	}
	return fields, nil
}

func (d *decoder) parseMethods(pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := range methods {
		accessFlags, err := d.u16(fmt.Sprintf("method %d access flags", i))
		if err != nil {
			return nil, err
		}
		nameIndex, err := d.u16(fmt.Sprintf("method %d name index", i))
		if err != nil {
			return nil, err
		}
		descIndex, err := d.u16(fmt.Sprintf("method %d descriptor index", i))
		if err != nil {
			return nil, err
		}
		attrCount, err := d.u16(fmt.Sprintf("method %d attributes count", i))
		if err != nil {
			return nil, err
		}
		attrs, err := d.parseAttributes(pool, attrCount)
		if err != nil {
			return nil, err
		}

		m := MethodInfo{
			AccessFlags:     accessFlags,
			NameIndex:       nameIndex,
			DescriptorIndex: descIndex,
			Attributes:      attrs,
		}
		for j := range attrs {
			if attrs[j].Code != nil {
				m.Code = attrs[j].Code
				break
			}
		}
		methods[i] = m
	}
	return methods, nil
}

// parseAttributes reads count attributes. A "Code" attribute is parsed
// structurally; all others are stored opaquely.
func (d *decoder) parseAttributes(pool []ConstantPoolEntry, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := range attrs {
		nameIndex, err := d.u16(fmt.Sprintf("attribute %d name index", i))
		if err != nil {
			return nil, err
		}
		length, err := d.u32(fmt.Sprintf("attribute %d length", i))
		if err != nil {
			return nil, err
		}

		name, err := utf8At(pool, nameIndex)
		if err != nil {
			return nil, d.fail("attribute %d name: %v", i, err)
		}

		if name == "Code" {
			end := d.cur.Off() + int(length)
			code, err := d.parseCodeAttribute(pool)
			if err != nil {
				return nil, err
			}
			if d.cur.Off() != end {
				return nil, d.fail("Code attribute length %d does not match its content", length)
			}
			attrs[i] = AttributeInfo{NameIndex: nameIndex, Name: name, Code: code}
			continue
		}

		data, err := d.bytes(int(length), fmt.Sprintf("attribute %q data", name))
		if err != nil {
			return nil, err
		}
		attrs[i] = AttributeInfo{NameIndex: nameIndex, Name: name, Data: data}
	}
	return attrs, nil
}

func (d *decoder) parseCodeAttribute(pool []ConstantPoolEntry) (*CodeAttribute, error) {
	maxStack, err := d.u16("Code max_stack")
	if err != nil {
		return nil, err
	}
	maxLocals, err := d.u16("Code max_locals")
	if err != nil {
		return nil, err
	}
	codeLength, err := d.u32("Code code_length")
	if err != nil {
		return nil, err
	}
	code, err := d.bytes(int(codeLength), "Code bytecode")
	if err != nil {
		return nil, err
	}

	exTableLen, err := d.u16("Code exception table length")
	if err != nil {
		return nil, err
	}
	handlers := make([]ExceptionHandler, exTableLen)
	for i := range handlers {
		if handlers[i].StartPC, err = d.u16("exception handler start_pc"); err != nil {
			return nil, err
		}
		if handlers[i].EndPC, err = d.u16("exception handler end_pc"); err != nil {
			return nil, err
		}
		if handlers[i].HandlerPC, err = d.u16("exception handler handler_pc"); err != nil {
			return nil, err
		}
		if handlers[i].CatchType, err = d.u16("exception handler catch_type"); err != nil {
			return nil, err
		}
	}

	attrCount, err := d.u16("Code attributes count")
	if err != nil {
		return nil, err
	}
	attrs, err := d.parseAttributes(pool, attrCount)
	if err != nil {
		return nil, err
	}

	return &CodeAttribute{
		MaxStack:       maxStack,
		MaxLocals:      maxLocals,
		Code:           code,
		ExceptionTable: handlers,
		Attributes:     attrs,
	}, nil
}

// utf8At returns the Utf8 value at index without going through the full
// resolver; attribute names must be direct Utf8 entries.
func utf8At(pool []ConstantPoolEntry, index uint16) (string, error) {
	if index == 0 || int(index) >= len(pool) || pool[index] == nil {
		return "", &CPIndexOutOfRangeError{Index: index, Size: len(pool)}
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", &NotAStringError{Index: index, CPTag: pool[index].Tag()}
	}
	return utf8.Value, nil
}
