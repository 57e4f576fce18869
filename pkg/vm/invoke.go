package vm

// invokeStatic resolves the method reference at cpIndex, pops the
// arguments from the invoker's operand stack into the callee's locals,
// and installs the callee frame. Only the current class is resolvable;
// cross-class references fail.
func (t *Thread) invokeStatic(frame *Frame, cpIndex uint16) error {
	refStr, err := frame.Class.ConstantAt(cpIndex)
	if err != nil {
		return err
	}
	ref, err := ParseMethodRef(refStr)
	if err != nil {
		return err
	}

	if ref.Class != frame.Class.Descriptor {
		return &UnresolvedMethodError{Ref: refStr, Current: frame.Class.Descriptor}
	}

	method, err := frame.Class.FindMethod(ref.NameAndDescriptor)
	if err != nil {
		return err
	}
	if method.Code == nil {
		return &MethodNotExecutableError{Class: frame.Class.Descriptor, ID: method.ID}
	}

	callee := NewFrame(frame.Class, method)

	argTypes, err := parseArgTypes(method.Descriptor)
	if err != nil {
		return err
	}

	// The last-pushed value is the last parameter: pop right-to-left,
	// then place in declaration order. Long and double take two slots.
	args := make([]Value, len(argTypes))
	for i := len(argTypes) - 1; i >= 0; i-- {
		args[i], err = frame.Pop()
		if err != nil {
			return err
		}
	}
	slot := 0
	for i, typ := range argTypes {
		if err := callee.SetLocal(slot, args[i]); err != nil {
			return err
		}
		slot += slotsFor(typ)
	}

	return t.PushFrame(callee)
}

// parseArgTypes splits the parenthesized argument list of a method
// descriptor into one token per argument:
//
//	( B | C | D | F | I | J | S | Z | L<classname>; | [<type> )*
func parseArgTypes(descriptor string) ([]string, error) {
	if len(descriptor) == 0 || descriptor[0] != '(' {
		return nil, &InvalidDescriptorError{Descriptor: descriptor}
	}
	var types []string
	i := 1
	for i < len(descriptor) && descriptor[i] != ')' {
		start := i
		for i < len(descriptor) && descriptor[i] == '[' {
			i++
		}
		if i >= len(descriptor) {
			return nil, &InvalidDescriptorError{Descriptor: descriptor}
		}
		switch descriptor[i] {
		case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
			i++
		case 'L':
			end := i + 1
			for end < len(descriptor) && descriptor[end] != ';' {
				end++
			}
			if end >= len(descriptor) {
				return nil, &InvalidDescriptorError{Descriptor: descriptor}
			}
			i = end + 1
		default:
			return nil, &InvalidDescriptorError{Descriptor: descriptor}
		}
		types = append(types, descriptor[start:i])
	}
	if i >= len(descriptor) || descriptor[i] != ')' {
		return nil, &InvalidDescriptorError{Descriptor: descriptor}
	}
	return types, nil
}

// slotsFor returns the number of local-variable slots an argument type
// occupies: two for long and double, one otherwise.
func slotsFor(typ string) int {
	if typ == "J" || typ == "D" {
		return 2
	}
	return 1
}
