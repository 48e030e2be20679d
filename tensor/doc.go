// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense tensors that hold lowrank model parameters.
//
// # Overview
//
// A RawTensor is a row-major buffer with a Shape and a DataType. Tensors
// always own their storage: Clone copies the bytes, so cloned models never
// share parameters with their source.
//
// # Basic Usage
//
//	import "github.com/born-ml/lowrank/tensor"
//
//	func main() {
//	    w, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    x := tensor.Ones(tensor.Shape{4, 3})
//	    y := tensor.MatMul(x, tensor.Transpose(w)) // (4, 2)
//	}
//
// # Supported Data Types
//
// Float32 is used for all layer parameters. Float64, Int32, Int64, Uint8
// and Bool tensors can be stored and serialized.
package tensor
