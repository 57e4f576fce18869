package classfile

// simpleSumClass builds the class file javac produces for a small
// program with a sum() helper printed from main. The pool layout mirrors
// the javap -v output: this_class is 14, the last Utf8 slot is the
// SourceFile name at index 30.
func simpleSumClass() *ClassFile {
	pool := make([]ConstantPoolEntry, 31)
	pool[1] = &ConstantMethodref{ClassIndex: 2, NameAndTypeIndex: 3}
	pool[2] = &ConstantClass{NameIndex: 4}
	pool[3] = &ConstantNameAndType{NameIndex: 5, DescriptorIndex: 6}
	pool[4] = &ConstantUtf8{Value: "java/lang/Object"}
	pool[5] = &ConstantUtf8{Value: "<init>"}
	pool[6] = &ConstantUtf8{Value: "()V"}
	pool[7] = &ConstantFieldref{ClassIndex: 8, NameAndTypeIndex: 9}
	pool[8] = &ConstantClass{NameIndex: 10}
	pool[9] = &ConstantNameAndType{NameIndex: 11, DescriptorIndex: 12}
	pool[10] = &ConstantUtf8{Value: "java/lang/System"}
	pool[11] = &ConstantUtf8{Value: "out"}
	pool[12] = &ConstantUtf8{Value: "Ljava/io/PrintStream;"}
	pool[13] = &ConstantMethodref{ClassIndex: 14, NameAndTypeIndex: 15}
	pool[14] = &ConstantClass{NameIndex: 16}
	pool[15] = &ConstantNameAndType{NameIndex: 17, DescriptorIndex: 18}
	pool[16] = &ConstantUtf8{Value: "SimpleSum"}
	pool[17] = &ConstantUtf8{Value: "sum"}
	pool[18] = &ConstantUtf8{Value: "()I"}
	pool[19] = &ConstantMethodref{ClassIndex: 20, NameAndTypeIndex: 21}
	pool[20] = &ConstantClass{NameIndex: 22}
	pool[21] = &ConstantNameAndType{NameIndex: 23, DescriptorIndex: 24}
	pool[22] = &ConstantUtf8{Value: "java/io/PrintStream"}
	pool[23] = &ConstantUtf8{Value: "println"}
	pool[24] = &ConstantUtf8{Value: "(I)V"}
	pool[25] = &ConstantUtf8{Value: "Code"}
	pool[26] = &ConstantUtf8{Value: "LineNumberTable"}
	pool[27] = &ConstantUtf8{Value: "main"}
	pool[28] = &ConstantUtf8{Value: "([Ljava/lang/String;)V"}
	pool[29] = &ConstantUtf8{Value: "SourceFile"}
	pool[30] = &ConstantUtf8{Value: "SimpleSum.java"}

	return &ClassFile{
		MinorVersion: 0,
		MajorVersion: 61,
		ConstantPool: pool,
		AccessFlags:  AccPublic | AccSuper,
		ThisClass:    14,
		SuperClass:   2,
		Methods: []MethodInfo{
			methodWithCode(5, 6, 0, 1, 1, []byte{0x2A, 0xB7, 0x00, 0x01, 0xB1}),
			methodWithCode(27, 28, AccPublic|AccStatic, 2, 1,
				[]byte{0xB2, 0x00, 0x07, 0xB8, 0x00, 0x0D, 0xB6, 0x00, 0x13, 0xB1}),
			methodWithCode(17, 18, AccPublic|AccStatic, 2, 3,
				[]byte{0x04, 0x3C, 0x05, 0x3D, 0x1B, 0x1C, 0x60, 0xAC}),
		},
		Attributes: []AttributeInfo{
			{NameIndex: 29, Name: "SourceFile", Data: []byte{0x00, 0x1E}},
		},
	}
}

func methodWithCode(nameIndex, descIndex, accessFlags, maxStack, maxLocals uint16, code []byte) MethodInfo {
	codeAttr := &CodeAttribute{
		MaxStack:  maxStack,
		MaxLocals: maxLocals,
		Code:      code,
	}
	return MethodInfo{
		AccessFlags:     accessFlags,
		NameIndex:       nameIndex,
		DescriptorIndex: descIndex,
		Attributes: []AttributeInfo{
			{NameIndex: 25, Name: "Code", Code: codeAttr},
		},
		Code: codeAttr,
	}
}
