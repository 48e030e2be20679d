// Package arch describes module trees as YAML documents.
//
// An architecture file names the layer types and sizes of a model; its
// weights live separately in a SafeTensors file keyed by the dotted paths
// produced by nn.Module.StateDict.
//
// Example:
//
//	name: mlp
//	root:
//	  type: dict
//	  children:
//	    - name: fc1
//	      type: linear
//	      in: 784
//	      out: 128
//	    - name: act
//	      type: relu
//	    - name: head
//	      type: sequential
//	      children:
//	        - type: linear
//	          in: 128
//	          out: 10
//	          bias: false
package arch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/lowrank/internal/nn"
)

// Node types.
const (
	TypeDict       = "dict"
	TypeSequential = "sequential"
	TypeLinear     = "linear"
	TypeReLU       = "relu"
	TypeSigmoid    = "sigmoid"
	TypeTanh       = "tanh"
	TypeLayerNorm  = "layernorm"
)

// DefaultEpsilon is used for layernorm nodes that omit epsilon.
const DefaultEpsilon = 1e-5

// ErrInvalid is wrapped by every error reporting a malformed architecture.
var ErrInvalid = errors.New("invalid architecture")

var validate = validator.New()

// Architecture is the root of an architecture file.
type Architecture struct {
	Name string `yaml:"name,omitempty"`
	Root *Node  `yaml:"root" validate:"required"`
}

// Node describes one module. Name is only meaningful for children of a dict.
type Node struct {
	Name     string  `yaml:"name,omitempty"`
	Type     string  `yaml:"type" validate:"required,oneof=dict sequential linear relu sigmoid tanh layernorm"`
	In       int     `yaml:"in,omitempty" validate:"gte=0"`
	Out      int     `yaml:"out,omitempty" validate:"gte=0"`
	Bias     *bool   `yaml:"bias,omitempty"`
	Features int     `yaml:"features,omitempty" validate:"gte=0"`
	Epsilon  float32 `yaml:"epsilon,omitempty" validate:"gte=0"`
	Children []*Node `yaml:"children,omitempty" validate:"dive,required"`
}

// HasBias reports whether a linear node carries a bias. Bias defaults to true.
func (n *Node) HasBias() bool {
	return n.Bias == nil || *n.Bias
}

// Load reads and validates an architecture file.
func Load(path string) (*Architecture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read architecture: %w", err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("architecture %s: %w", path, err)
	}
	return a, nil
}

// Parse decodes and validates an architecture document.
func Parse(data []byte) (*Architecture, error) {
	var a Architecture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Save writes the architecture as YAML to path.
func (a *Architecture) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create architecture file: %w", err)
	}
	if err := a.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes the architecture as YAML to w.
func (a *Architecture) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("encode architecture: %w", err)
	}
	return enc.Close()
}

// Validate checks field constraints and the per-type shape of every node.
func (a *Architecture) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return a.Root.check("")
}

func (n *Node) check(path string) error {
	fail := func(format string, args ...any) error {
		where := path
		if where == "" {
			where = "root"
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalid, where, fmt.Sprintf(format, args...))
	}

	switch n.Type {
	case TypeDict:
		seen := make(map[string]bool, len(n.Children))
		for _, c := range n.Children {
			if c.Name == "" {
				return fail("dict child without a name")
			}
			if seen[c.Name] {
				return fail("duplicate child %q", c.Name)
			}
			seen[c.Name] = true
			if err := c.check(nn.JoinPath(path, c.Name)); err != nil {
				return err
			}
		}
	case TypeSequential:
		for i, c := range n.Children {
			if c.Name != "" {
				return fail("sequential child %d must not be named", i)
			}
			if err := c.check(nn.JoinPath(path, fmt.Sprint(i))); err != nil {
				return err
			}
		}
	case TypeLinear:
		if n.In <= 0 || n.Out <= 0 {
			return fail("linear needs positive in and out, got in=%d out=%d", n.In, n.Out)
		}
	case TypeLayerNorm:
		if n.Features <= 0 {
			return fail("layernorm needs positive features, got %d", n.Features)
		}
	}

	if n.Type != TypeDict && n.Type != TypeSequential && len(n.Children) > 0 {
		return fail("%s cannot have children", n.Type)
	}
	return nil
}

// Build constructs the module tree described by a. Linear weights are
// initialized from rng (seed 0 when nil) and are normally overwritten by
// LoadStateDict.
func Build(a *Architecture, rng *rand.Rand) (nn.Module, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	return build(a.Root, rng)
}

func build(n *Node, rng *rand.Rand) (nn.Module, error) {
	switch n.Type {
	case TypeDict:
		d := nn.NewDict()
		for _, c := range n.Children {
			m, err := build(c, rng)
			if err != nil {
				return nil, err
			}
			if err := d.Add(c.Name, m); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
			}
		}
		return d, nil
	case TypeSequential:
		s := nn.NewSequential()
		for _, c := range n.Children {
			m, err := build(c, rng)
			if err != nil {
				return nil, err
			}
			s.Add(m)
		}
		return s, nil
	case TypeLinear:
		return nn.NewLinear(n.In, n.Out, nn.WithBias(n.HasBias()), nn.WithRand(rng)), nil
	case TypeReLU:
		return nn.NewReLU(), nil
	case TypeSigmoid:
		return nn.NewSigmoid(), nil
	case TypeTanh:
		return nn.NewTanh(), nil
	case TypeLayerNorm:
		eps := n.Epsilon
		if eps == 0 {
			eps = DefaultEpsilon
		}
		return nn.NewLayerNorm(n.Features, eps), nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalid, n.Type)
	}
}

// Describe returns the architecture of an existing module tree.
func Describe(name string, m nn.Module) (*Architecture, error) {
	root, err := describe(m)
	if err != nil {
		return nil, err
	}
	return &Architecture{Name: name, Root: root}, nil
}

func describe(m nn.Module) (*Node, error) {
	switch v := m.(type) {
	case *nn.Dict:
		n := &Node{Type: TypeDict}
		for _, name := range v.ChildNames() {
			child, _ := v.Child(name)
			c, err := describe(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			c.Name = name
			n.Children = append(n.Children, c)
		}
		return n, nil
	case *nn.Sequential:
		n := &Node{Type: TypeSequential}
		for i := range v.Len() {
			c, err := describe(v.Module(i))
			if err != nil {
				return nil, fmt.Errorf("%d: %w", i, err)
			}
			n.Children = append(n.Children, c)
		}
		return n, nil
	case *nn.Linear:
		n := &Node{Type: TypeLinear, In: v.InFeatures(), Out: v.OutFeatures()}
		if !v.HasBias() {
			noBias := false
			n.Bias = &noBias
		}
		return n, nil
	case *nn.ReLU:
		return &Node{Type: TypeReLU}, nil
	case *nn.Sigmoid:
		return &Node{Type: TypeSigmoid}, nil
	case *nn.Tanh:
		return &Node{Type: TypeTanh}, nil
	case *nn.LayerNorm:
		n := &Node{Type: TypeLayerNorm, Features: v.Features()}
		if v.Epsilon != DefaultEpsilon {
			n.Epsilon = v.Epsilon
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: no architecture type for %s", ErrInvalid, nn.TypeName(m))
	}
}
