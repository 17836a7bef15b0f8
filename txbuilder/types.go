// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuilder assembles, signs, and finalizes one side of a
// two-party Mimblewimble transaction. A Builder is constructed fresh for
// every Update() call and is stateless across calls: everything it
// produces is flushed to the parameter bag before the call that created
// it returns.
package txbuilder

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/mwallet/mwwallet/chainkd"
)

// Input is one spent commitment in a transaction, identified by its
// Pedersen commitment.
type Input struct {
	Commitment chainkd.Commitment
}

// Output is one created commitment in a transaction.
type Output struct {
	Commitment chainkd.Commitment
}

// Kernel is a transaction's multisig proof of balance: fee, validity
// window, the summed public excess, and the aggregate Schnorr signature
// over the kernel message.
type Kernel struct {
	Fee       uint64
	MinHeight uint64
	MaxHeight uint64

	Excess    chainkd.Point
	Signature chainkd.Signature
}

// ID returns the canonical identifier of the kernel, the serialization of
// its height window, fee and excess. The signature is not part of it, so
// the id is stable once both parties have contributed their half of the
// excess.
func (k Kernel) ID() []byte {
	return kernelHash(k.MinHeight, k.MaxHeight, k.Fee, k.Excess, chainkd.Point{})
}

// Message returns the byte string both parties sign over: the kernel's
// height window and fee, without the excess or the signature.
func (k Kernel) Message() []byte {
	return kernelHash(k.MinHeight, k.MaxHeight, k.Fee, chainkd.Point{}, chainkd.Point{})
}

func kernelHash(minHeight, maxHeight, fee uint64, excess, nonce chainkd.Point) []byte {
	var buf bytes.Buffer
	writeUint64(&buf, minHeight)
	writeUint64(&buf, maxHeight)
	writeUint64(&buf, fee)
	buf.Write(excess.Bytes())
	buf.Write(nonce.Bytes())
	return buf.Bytes()
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	buf.Write(b[:])
}

// Transaction is a fully assembled, finalized transaction ready for
// registration with the gateway.
type Transaction struct {
	Inputs  []Input
	Outputs []Output
	Offset  chainkd.Scalar
	Kernel  Kernel
}

// MarshalInputs encodes a slice of Input as a count-prefixed list of
// 33-byte compressed commitment points, the wire form carried in the
// PeerInputs parameter.
func MarshalInputs(ins []Input) []byte {
	buf := make([]byte, 4, 4+len(ins)*chainkd.PointSize)
	putUint32(buf[:4], uint32(len(ins)))
	for _, in := range ins {
		buf = append(buf, in.Commitment.Point.Bytes()...)
	}
	return buf
}

// UnmarshalInputs decodes the wire form produced by MarshalInputs.
func UnmarshalInputs(b []byte) ([]Input, error) {
	points, err := unmarshalPoints(b)
	if err != nil {
		return nil, err
	}
	out := make([]Input, len(points))
	for i, p := range points {
		out[i] = Input{Commitment: chainkd.Commitment{Point: p}}
	}
	return out, nil
}

// MarshalOutputs encodes a slice of Output the same way MarshalInputs
// encodes inputs.
func MarshalOutputs(outs []Output) []byte {
	buf := make([]byte, 4, 4+len(outs)*chainkd.PointSize)
	putUint32(buf[:4], uint32(len(outs)))
	for _, out := range outs {
		buf = append(buf, out.Commitment.Point.Bytes()...)
	}
	return buf
}

// UnmarshalOutputs decodes the wire form produced by MarshalOutputs.
func UnmarshalOutputs(b []byte) ([]Output, error) {
	points, err := unmarshalPoints(b)
	if err != nil {
		return nil, err
	}
	out := make([]Output, len(points))
	for i, p := range points {
		out[i] = Output{Commitment: chainkd.Commitment{Point: p}}
	}
	return out, nil
}

func unmarshalPoints(b []byte) ([]chainkd.Point, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("txbuilder: truncated commitment list")
	}
	n := int(getUint32(b))
	want := 4 + n*chainkd.PointSize
	if len(b) != want {
		return nil, fmt.Errorf("txbuilder: commitment list must be %d bytes, got %d", want, len(b))
	}
	out := make([]chainkd.Point, n)
	for i := 0; i < n; i++ {
		off := 4 + i*chainkd.PointSize
		p, err := chainkd.PointFromBytes(b[off : off+chainkd.PointSize])
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Validate checks the transaction's structural validity: it must spend at
// least one input and create at least one output, and its commitments,
// kernel excess, offset and fee must satisfy the balance equation
//
//	Σoutputs + fee·H + offset·G + kernelExcess == Σinputs
//
// A transaction that fails this check has either been tampered with in
// transit or was assembled from a builder bug; either way it must never
// reach the gateway's registration path.
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) == 0 {
		return fmt.Errorf("txbuilder: transaction has no inputs")
	}
	if len(tx.Outputs) == 0 {
		return fmt.Errorf("txbuilder: transaction has no outputs")
	}

	var sumIn, sumOut chainkd.Point
	for _, in := range tx.Inputs {
		sumIn = sumIn.Add(in.Commitment.Point)
	}
	for _, out := range tx.Outputs {
		sumOut = sumOut.Add(out.Commitment.Point)
	}

	feePoint := chainkd.Commit(tx.Kernel.Fee, chainkd.Scalar{}).Point
	lhs := sumOut.Add(feePoint).Add(chainkd.ScalarBaseMult(tx.Offset)).Add(tx.Kernel.Excess)
	if !bytes.Equal(lhs.Bytes(), sumIn.Bytes()) {
		return fmt.Errorf("txbuilder: transaction fails balance equation")
	}
	return nil
}

// canonicalize sorts inputs and outputs by commitment bytes so that two
// parties concatenating their halves in different arrival orders still
// produce byte-identical transactions.
func (tx *Transaction) canonicalize() {
	sort.Slice(tx.Inputs, func(i, j int) bool {
		return bytes.Compare(tx.Inputs[i].Commitment.Point.Bytes(), tx.Inputs[j].Commitment.Point.Bytes()) < 0
	})
	sort.Slice(tx.Outputs, func(i, j int) bool {
		return bytes.Compare(tx.Outputs[i].Commitment.Point.Bytes(), tx.Outputs[j].Commitment.Point.Bytes()) < 0
	})
}
