package vm

import "github.com/samber/lo"

// MethodArea is the process-wide registry of linked classes, keyed by
// class descriptor. It is populated during loading, before execution
// starts, and read-only afterwards.
type MethodArea struct {
	classes map[string]*Class
}

// NewMethodArea creates an empty method area.
func NewMethodArea() *MethodArea {
	return &MethodArea{classes: make(map[string]*Class)}
}

// Register adds a class under its descriptor. Re-registering the same
// descriptor replaces the entry; there is no dynamic reloading to keep
// consistent with.
func (a *MethodArea) Register(c *Class) {
	a.classes[c.Descriptor] = c
}

// Lookup returns the class registered under descriptor.
func (a *MethodArea) Lookup(descriptor string) (*Class, error) {
	c, ok := a.classes[descriptor]
	if !ok {
		return nil, &ClassNotFoundError{Descriptor: descriptor}
	}
	return c, nil
}

// Descriptors lists the registered class descriptors.
func (a *MethodArea) Descriptors() []string {
	return lo.Keys(a.classes)
}
