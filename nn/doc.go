// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the module tree that lowrank compresses.
//
// # Overview
//
// This package contains:
//   - Layers: Linear, LayerNorm
//   - Activations: ReLU, Sigmoid, Tanh
//   - Containers: Sequential (children "0", "1", ...) and Dict (named children)
//   - Utilities: Module and Container interfaces, Parameter, Walk, CountParameters
//
// # Basic Usage
//
//	import "github.com/born-ml/lowrank/nn"
//
//	func main() {
//	    model := nn.NewDict().
//	        MustAdd("encoder", nn.NewSequential(
//	            nn.NewLinear(784, 128),
//	            nn.NewReLU(),
//	        )).
//	        MustAdd("head", nn.NewLinear(128, 10))
//
//	    output := model.Forward(input)
//	}
//
// # State Dicts
//
// StateDict keys are dotted paths through the tree, for example
// "encoder.0.weight" or "head.bias". They match the tensor names used in
// SafeTensors files.
//
//	for name, t := range model.StateDict() {
//	    fmt.Println(name, t.Shape())
//	}
package nn
