package nn

import (
	"github.com/born-ml/lowrank/internal/tensor"
)

// Parameter represents a named weight or bias tensor of a layer.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
type Parameter struct {
	name   string            // Parameter name (e.g., "weight", "bias")
	tensor *tensor.RawTensor // The parameter tensor
}

// NewParameter creates a new parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Clone returns a parameter with a deep copy of the tensor.
func (p *Parameter) Clone() *Parameter {
	if p == nil {
		return nil
	}
	return &Parameter{
		name:   p.name,
		tensor: p.tensor.Clone(),
	}
}
