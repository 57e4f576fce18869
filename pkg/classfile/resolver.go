package classfile

// AsString returns the canonical string form of the entry at index:
//
//	Utf8                        the byte string itself
//	Class                       string form of name_index
//	NameAndType                 "name:descriptor"
//	Field/Method/InterfaceRef   "className.name:descriptor"
//	String/MethodType/Module/   string form of the referenced index
//	Package
//
// Primitive entries and the slot after a Long/Double have no string
// form and fail with *NotAStringError. Recursion terminates because
// Utf8 is a leaf and the on-disk format is acyclic.
func AsString(pool []ConstantPoolEntry, index uint16) (string, error) {
	entry, err := at(pool, index)
	if err != nil {
		return "", err
	}

	switch c := entry.(type) {
	case *ConstantUtf8:
		return c.Value, nil

	case *ConstantClass:
		return AsString(pool, c.NameIndex)

	case *ConstantString:
		return AsString(pool, c.StringIndex)

	case *ConstantNameAndType:
		name, err := AsString(pool, c.NameIndex)
		if err != nil {
			return "", err
		}
		desc, err := AsString(pool, c.DescriptorIndex)
		if err != nil {
			return "", err
		}
		return name + ":" + desc, nil

	case *ConstantFieldref:
		return refString(pool, c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantMethodref:
		return refString(pool, c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		return refString(pool, c.ClassIndex, c.NameAndTypeIndex)

	case *ConstantMethodType:
		return AsString(pool, c.DescriptorIndex)
	case *ConstantModule:
		return AsString(pool, c.NameIndex)
	case *ConstantPackage:
		return AsString(pool, c.NameIndex)

	default:
		return "", &NotAStringError{Index: index, CPTag: entry.Tag()}
	}
}

// AsTyped returns the typed value of the entry at index. Primitive
// entries produce their interpreted value plus raw bits, the slot after
// a Long/Double produces the Null marker, and every other entry is
// resolved through AsString and wrapped as a String constant.
func AsTyped(pool []ConstantPoolEntry, index uint16) (Constant, error) {
	entry, err := at(pool, index)
	if err != nil {
		return Constant{}, err
	}

	switch c := entry.(type) {
	case *ConstantInteger:
		return IntConstant(c.Bits), nil
	case *ConstantLong:
		return LongConstant(c.HighBytes, c.LowBytes), nil
	case *ConstantFloat:
		return FloatConstant(c.Bits), nil
	case *ConstantDouble:
		return DoubleConstant(c.HighBytes, c.LowBytes), nil
	case *ConstantEmpty:
		return NullConstant(), nil
	default:
		s, err := AsString(pool, index)
		if err != nil {
			return Constant{}, err
		}
		return StringConstant(s), nil
	}
}

func at(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if index == 0 || int(index) >= len(pool) || pool[index] == nil {
		return nil, &CPIndexOutOfRangeError{Index: index, Size: len(pool)}
	}
	return pool[index], nil
}

func refString(pool []ConstantPoolEntry, classIndex, natIndex uint16) (string, error) {
	className, err := AsString(pool, classIndex)
	if err != nil {
		return "", err
	}
	nat, err := AsString(pool, natIndex)
	if err != nil {
		return "", err
	}
	return className + "." + nat, nil
}
