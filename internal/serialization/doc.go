// Package serialization saves and restores named dense and row-sparse
// tensors in the SafeTensors layout:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, tensor name -> dtype, shape, data offsets]
//	[tensor data: raw little-endian bytes, in name order]
//
// A dense tensor is stored under its name. A row-sparse tensor stores its
// value rows under its name and its row indices (I64) under
// "<name>:indices"; its declared shape, dtype and initialization flag go into
// the header metadata. An uninitialized row-sparse tensor stores no data.
// The metadata also carries a SHA-256 checksum of the data section, which
// Read verifies.
//
// Example usage:
//
//	arrays := map[string]tensor.Array{"embedding": embedding}
//	meta := map[string]string{"vocab": "1000"}
//	if err := serialization.WriteFile("embedding.safetensors", arrays, meta); err != nil {
//	    return err
//	}
//
//	arrays, meta, err := serialization.ReadFile("embedding.safetensors")
package serialization
