// Package nn implements the module tree that lowrank compresses.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Container interface: Modules that own ordered, named children
//   - Linear: Fully connected layer with optional bias
//   - Sequential, Dict: Containers
//   - Activations and LayerNorm: Leaves that are never factorized
//   - Clone, Walk, CountParameters: Tree utilities
//
// Design inspired by PyTorch's nn.Module.
package nn

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/born-ml/lowrank/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	//
	// Panics if the input shape is not accepted by the module.
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns all parameters of this module, including those of
	// nested modules. Returns an empty slice for parameter-free modules.
	Parameters() []*Parameter

	// StateDict returns a map of dotted parameter names to raw tensors.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies parameters from a state dictionary.
	//
	// Returns an error if a required parameter is missing or has wrong shape.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// Clone returns a deep copy that shares no tensor storage with the
	// receiver.
	Clone() Module
}

// Container is a Module that owns named children.
//
// Child names are unique within a container and ChildNames reports them in
// declaration order.
type Container interface {
	Module

	// ChildNames returns a fresh slice of child names in declaration order.
	ChildNames() []string

	// Child returns the child with the given name.
	Child(name string) (Module, bool)

	// SetChild replaces an existing child. It never adds a new name.
	SetChild(name string, m Module) error
}

// Kind classifies a module for the decomposition pass.
type Kind int

// Module kinds.
const (
	KindOther Kind = iota
	KindLinear
	KindContainer
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindContainer:
		return "container"
	default:
		return "other"
	}
}

// Classify returns the kind of m. Containers are recognized by type, so a
// container with no children is still KindContainer.
func Classify(m Module) Kind {
	switch m.(type) {
	case Container:
		return KindContainer
	case *Linear:
		return KindLinear
	default:
		return KindOther
	}
}

// TypeName returns the bare type name of m (e.g., "Linear" for *nn.Linear).
func TypeName(m Module) string {
	if m == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Clone returns a deep copy of m, or nil if m is nil.
func Clone(m Module) Module {
	if m == nil {
		return nil
	}
	return m.Clone()
}

// Walk calls fn for m and every descendant in depth-first pre-order.
//
// Paths are dotted child names relative to m; m itself has path "".
// Walk stops at the first error returned by fn.
func Walk(m Module, fn func(path string, m Module) error) error {
	return walk("", m, fn)
}

func walk(path string, m Module, fn func(string, Module) error) error {
	if err := fn(path, m); err != nil {
		return err
	}
	c, ok := m.(Container)
	if !ok {
		return nil
	}
	for _, name := range c.ChildNames() {
		child, _ := c.Child(name)
		if err := walk(JoinPath(path, name), child, fn); err != nil {
			return err
		}
	}
	return nil
}

// JoinPath joins a parent path and a child name with a dot.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// CountParameters returns the total number of scalar parameters in m.
func CountParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

// validateChildName rejects names that would break dotted state dict keys.
func validateChildName(name string) error {
	if name == "" {
		return fmt.Errorf("child name must not be empty")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("child name %q must not contain '.'", name)
	}
	return nil
}

// containerStateDict merges child state dicts under "<name>." prefixes.
func containerStateDict(c Container) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, name := range c.ChildNames() {
		child, _ := c.Child(name)
		for key, raw := range child.StateDict() {
			stateDict[name+"."+key] = raw
		}
	}
	return stateDict
}

// containerLoadStateDict routes "<name>."-prefixed entries to each child.
func containerLoadStateDict(c Container, stateDict map[string]*tensor.RawTensor) error {
	for _, name := range c.ChildNames() {
		child, _ := c.Child(name)
		prefix := name + "."

		childStateDict := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if strings.HasPrefix(key, prefix) {
				childStateDict[key[len(prefix):]] = raw
			}
		}

		if len(childStateDict) == 0 && len(child.Parameters()) == 0 {
			continue
		}
		if err := child.LoadStateDict(childStateDict); err != nil {
			return fmt.Errorf("failed to load module %s: %w", name, err)
		}
	}
	return nil
}
