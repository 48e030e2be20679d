package nn

import (
	"fmt"

	"github.com/born-ml/lowrank/internal/tensor"
)

// Dict is a container of uniquely named modules kept in declaration order.
//
// Forward applies the children in declaration order, which makes a Dict the
// natural representation of a block whose forward pass is a plain chain
// (e.g., {fc1, act, fc2}).
//
// Example:
//
//	block := nn.NewDict()
//	block.MustAdd("fc", nn.NewLinear(10, 20))
//	block.MustAdd("act", nn.NewReLU())
type Dict struct {
	names    []string
	children map[string]Module
}

// NewDict creates an empty Dict.
func NewDict() *Dict {
	return &Dict{
		children: make(map[string]Module),
	}
}

// Add appends a named child. Names must be unique, non-empty and free of
// dots.
func (d *Dict) Add(name string, m Module) error {
	if err := validateChildName(name); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("child %q: module must not be nil", name)
	}
	if _, exists := d.children[name]; exists {
		return fmt.Errorf("duplicate child name %q", name)
	}
	d.names = append(d.names, name)
	d.children[name] = m
	return nil
}

// MustAdd is like Add but panics on error.
func (d *Dict) MustAdd(name string, m Module) *Dict {
	if err := d.Add(name, m); err != nil {
		panic(fmt.Sprintf("Dict.MustAdd: %v", err))
	}
	return d
}

// Len returns the number of children.
func (d *Dict) Len() int {
	return len(d.names)
}

// ChildNames returns child names in declaration order.
func (d *Dict) ChildNames() []string {
	return append([]string(nil), d.names...)
}

// Child returns the child with the given name.
func (d *Dict) Child(name string) (Module, bool) {
	m, ok := d.children[name]
	return m, ok
}

// SetChild replaces an existing child, keeping its position.
func (d *Dict) SetChild(name string, m Module) error {
	if _, ok := d.children[name]; !ok {
		return fmt.Errorf("dict has no child %q", name)
	}
	if m == nil {
		return fmt.Errorf("child %q: module must not be nil", name)
	}
	d.children[name] = m
	return nil
}

// Forward applies the children in declaration order.
func (d *Dict) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	output := input
	for _, name := range d.names {
		output = d.children[name].Forward(output)
	}
	return output
}

// Parameters returns all parameters of all children, in declaration order.
func (d *Dict) Parameters() []*Parameter {
	var params []*Parameter
	for _, name := range d.names {
		params = append(params, d.children[name].Parameters()...)
	}
	return params
}

// Clone returns a deep copy of the container and all its children.
func (d *Dict) Clone() Module {
	c := &Dict{
		names:    append([]string(nil), d.names...),
		children: make(map[string]Module, len(d.children)),
	}
	for name, m := range d.children {
		c.children[name] = m.Clone()
	}
	return c
}

// StateDict returns parameters keyed by "<child>.<param>".
func (d *Dict) StateDict() map[string]*tensor.RawTensor {
	return containerStateDict(d)
}

// LoadStateDict loads parameters keyed by "<child>.<param>".
func (d *Dict) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return containerLoadStateDict(d, stateDict)
}
