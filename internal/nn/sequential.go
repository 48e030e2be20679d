package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/lowrank/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Children are named
// by their index ("0", "1", ...), which is also the prefix used in state
// dict keys (e.g., "0.weight", "1.bias").
//
// Example:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10),
//	)
//
//	output := model.Forward(input)
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
//
// Panics if any module is nil.
func NewSequential(modules ...Module) *Sequential {
	for i, m := range modules {
		if m == nil {
			panic(fmt.Sprintf("NewSequential: module %d is nil", i))
		}
	}
	return &Sequential{
		modules: append([]Module(nil), modules...),
	}
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all parameters from all modules, in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Add appends a module to the sequence.
//
// Panics if module is nil.
func (s *Sequential) Add(module Module) {
	if module == nil {
		panic("Sequential.Add: module must not be nil")
	}
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Module(index int) Module {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// ChildNames returns "0" through "Len()-1".
func (s *Sequential) ChildNames() []string {
	names := make([]string, len(s.modules))
	for i := range s.modules {
		names[i] = strconv.Itoa(i)
	}
	return names
}

// Child returns the module named by its decimal index.
func (s *Sequential) Child(name string) (Module, bool) {
	i, ok := s.index(name)
	if !ok {
		return nil, false
	}
	return s.modules[i], true
}

// SetChild replaces the module named by its decimal index.
func (s *Sequential) SetChild(name string, m Module) error {
	i, ok := s.index(name)
	if !ok {
		return fmt.Errorf("sequential has no child %q", name)
	}
	if m == nil {
		return fmt.Errorf("child %q: module must not be nil", name)
	}
	s.modules[i] = m
	return nil
}

func (s *Sequential) index(name string) (int, bool) {
	i, err := strconv.Atoi(name)
	if err != nil || i < 0 || i >= len(s.modules) || strconv.Itoa(i) != name {
		return 0, false
	}
	return i, true
}

// Clone returns a deep copy of the container and all its modules.
func (s *Sequential) Clone() Module {
	modules := make([]Module, len(s.modules))
	for i, m := range s.modules {
		modules[i] = m.Clone()
	}
	return &Sequential{modules: modules}
}

// StateDict returns a map of parameter names to raw tensors, prefixed with
// the module index.
func (s *Sequential) StateDict() map[string]*tensor.RawTensor {
	return containerStateDict(s)
}

// LoadStateDict loads parameters from a state dictionary whose keys are
// prefixed with the module index (e.g., "0.weight", "0.bias").
func (s *Sequential) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return containerLoadStateDict(s, stateDict)
}
