// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero clears secret material such as wallet seeds from memory.
package zero

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear seeds and spending key material from memory.
func Bytes(b []byte) {
	clear(b)
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}
