package classfile

import "fmt"

// MalformedClassFileError reports a structural problem in the byte stream:
// bad magic, truncation, an unknown constant-pool tag, or a size field
// that contradicts the data.
type MalformedClassFileError struct {
	Offset int
	Reason string
}

func (e *MalformedClassFileError) Error() string {
	return fmt.Sprintf("malformed class file at offset %d: %s", e.Offset, e.Reason)
}

// CPIndexOutOfRangeError reports a constant-pool access at index 0 or
// past the end of the pool.
type CPIndexOutOfRangeError struct {
	Index uint16
	Size  int
}

func (e *CPIndexOutOfRangeError) Error() string {
	return fmt.Sprintf("constant pool index %d out of range (pool size %d)", e.Index, e.Size)
}

// NotAStringError reports a string-form request against a primitive or
// empty constant-pool entry.
type NotAStringError struct {
	Index uint16
	CPTag uint8
}

func (e *NotAStringError) Error() string {
	return fmt.Sprintf("constant pool index %d (tag %d) has no string form", e.Index, e.CPTag)
}
