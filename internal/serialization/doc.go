// Package serialization reads and writes state dicts in the SafeTensors format.
//
//	File layout:
//	  [8 bytes: header size N (uint64 LE)]
//	  [N bytes: JSON header]
//	  [tensor data: raw little-endian bytes]
//
// The header maps each tensor name to its dtype, shape and [start, end) byte
// range within the data section. An optional "__metadata__" entry holds
// string key/value pairs.
//
// Example usage:
//
//	// Save a model
//	err := serialization.WriteFile("model.safetensors", model.StateDict(), map[string]string{
//	    "format": "pt",
//	})
//
//	// Load a model
//	file, err := serialization.ReadFile("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = model.LoadStateDict(file.Tensors)
package serialization
