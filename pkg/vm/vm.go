// Package vm links decoded class files and interprets their bytecode.
// The execution model is a single thread owning a stack of frames; the
// method area is populated during loading and read-only once dispatch
// begins.
package vm

import (
	"os"

	"github.com/rs/zerolog"
)

// entryMethods are the recognized entry points, tried in order.
var entryMethods = []string{
	"main:([Ljava/lang/String;)V",
	"main:()I",
	"sum:()I",
}

// Options configures a VM. Zero values select the defaults.
type Options struct {
	// Directory searched for .class files, by default ".".
	ClassPath string

	// Dispatch-iteration fuse, by default DefaultMaxSteps.
	MaxSteps int

	// Call-depth limit, by default DefaultMaxFrames.
	MaxFrames int

	// A custom logger. By default diagnostics go to stdout at the
	// error level; lower the level to Debug for an execution trace.
	Logger *zerolog.Logger
}

// Result is the outcome of a completed run: the ireturn value, or
// HasValue=false for a program ending in a plain return.
type Result struct {
	Value    Value
	HasValue bool
}

// VM owns the method area and bootstrap loader.
type VM struct {
	area   *MethodArea
	loader *BootstrapLoader
	opts   Options
	log    zerolog.Logger
}

// New creates a VM with the given options.
func New(opts *Options) *VM {
	v := &VM{area: NewMethodArea()}
	if opts != nil {
		v.opts = *opts
	}
	if v.opts.ClassPath == "" {
		v.opts.ClassPath = "."
	}
	if v.opts.MaxSteps <= 0 {
		v.opts.MaxSteps = DefaultMaxSteps
	}
	if v.opts.MaxFrames <= 0 {
		v.opts.MaxFrames = DefaultMaxFrames
	}
	if v.opts.Logger != nil {
		v.log = *v.opts.Logger
	} else {
		v.log = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.ErrorLevel)
	}
	v.loader = NewBootstrapLoader(v.opts.ClassPath, v.area, v.log)
	return v
}

// MethodArea exposes the class registry, mainly for inspection.
func (v *VM) MethodArea() *MethodArea {
	return v.area
}

// Run loads className from the classpath and executes its entry method.
func (v *VM) Run(className string) (Result, error) {
	class, err := v.loader.Load(className)
	if err != nil {
		return Result{}, err
	}
	return v.run(class)
}

// RunBytes executes the entry method of a class given as an in-memory
// class-file buffer.
func (v *VM) RunBytes(data []byte) (Result, error) {
	class, err := v.loader.LoadBytes(data)
	if err != nil {
		return Result{}, err
	}
	return v.run(class)
}

func (v *VM) run(class *Class) (Result, error) {
	method, err := findEntry(class)
	if err != nil {
		return Result{}, err
	}
	v.log.Debug().Str("class", class.Descriptor).Str("method", method.ID).Msg("entry method selected")

	frame := NewFrame(class, method)
	// main(String[]) receives a null args array; there is no array
	// support to build a real one.
	argTypes, err := parseArgTypes(method.Descriptor)
	if err != nil {
		return Result{}, err
	}
	slot := 0
	for _, typ := range argTypes {
		if err := frame.SetLocal(slot, NullValue()); err != nil {
			return Result{}, err
		}
		slot += slotsFor(typ)
	}

	thread := NewThread(v.opts.MaxSteps, v.opts.MaxFrames, v.log)
	if err := thread.PushFrame(frame); err != nil {
		return Result{}, err
	}

	value, hasValue, err := thread.Run()
	if err != nil {
		return Result{}, err
	}
	v.log.Debug().Int("steps", thread.Steps()).Bool("hasValue", hasValue).Msg("thread drained")
	return Result{Value: value, HasValue: hasValue}, nil
}

// findEntry returns the first recognized entry method that carries
// bytecode.
func findEntry(class *Class) (*Method, error) {
	for _, id := range entryMethods {
		if m, ok := class.Methods[id]; ok && m.Code != nil {
			return m, nil
		}
	}
	return nil, &NoEntryPointError{Class: class.Descriptor, Tried: entryMethods}
}
