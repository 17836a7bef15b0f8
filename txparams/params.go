// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txparams defines the closed parameter-id enumeration negotiated
// transactions are described by, and the canonical wire encoding for each
// parameter's value.
package txparams

import (
	"encoding/binary"
	"fmt"
)

// ID is one entry of the closed parameter enumeration a negotiated
// transaction's state lives in.
type ID uint8

const (
	Amount ID = iota
	AmountList
	Fee
	MinHeight
	MaxHeight
	IsSender
	IsInitiator
	MyID
	PeerID
	MyAddressID
	PeerProtoVersion
	Status
	State
	Inputs
	Outputs
	Offset
	Change
	BlindingExcess
	MyNonce
	PeerPublicExcess
	PeerPublicNonce
	PeerSignature
	PeerInputs
	PeerOutputs
	PeerOffset
	PaymentConfirmation
	KernelID
	KernelProofHeight
	TransactionRegistered
	FailureReason
	ModifyTime
	CreateTime
	TransactionType
)

var names = map[ID]string{
	Amount:                 "Amount",
	AmountList:             "AmountList",
	Fee:                    "Fee",
	MinHeight:              "MinHeight",
	MaxHeight:              "MaxHeight",
	IsSender:               "IsSender",
	IsInitiator:            "IsInitiator",
	MyID:                   "MyID",
	PeerID:                 "PeerID",
	MyAddressID:            "MyAddressID",
	PeerProtoVersion:       "PeerProtoVersion",
	Status:                 "Status",
	State:                  "State",
	Inputs:                 "Inputs",
	Outputs:                "Outputs",
	Offset:                 "Offset",
	Change:                 "Change",
	BlindingExcess:         "BlindingExcess",
	MyNonce:                "MyNonce",
	PeerPublicExcess:       "PeerPublicExcess",
	PeerPublicNonce:        "PeerPublicNonce",
	PeerSignature:          "PeerSignature",
	PeerInputs:             "PeerInputs",
	PeerOutputs:            "PeerOutputs",
	PeerOffset:             "PeerOffset",
	PaymentConfirmation:    "PaymentConfirmation",
	KernelID:               "KernelID",
	KernelProofHeight:      "KernelProofHeight",
	TransactionRegistered:  "TransactionRegistered",
	FailureReason:          "FailureReason",
	ModifyTime:             "ModifyTime",
	CreateTime:             "CreateTime",
	TransactionType:        "TransactionType",
}

func (id ID) String() string {
	if s, ok := names[id]; ok {
		return s
	}
	return fmt.Sprintf("ID(%d)", uint8(id))
}

// PutUint64 / Uint64 implement the little-endian integer convention for
// integer-valued parameters (Amount, Fee, MinHeight, MaxHeight,
// KernelProofHeight, ModifyTime, CreateTime as unix seconds, ...).
func PutUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func Uint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("txparams: uint64 blob must be 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PutBool / Bool encode a boolean as a single byte.
func PutBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func Bool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("txparams: bool blob must be 1 byte, got %d", len(b))
	}
	return b[0] != 0, nil
}

// PutString / String encode a UTF-8 string verbatim (the blob length
// prefix is supplied by the store's key/value layer, not the value
// itself).
func PutString(v string) []byte { return []byte(v) }

func String(b []byte) string { return string(b) }

// PutUint64List / Uint64List implement the length-prefixed composite
// convention for lists such as AmountList, declared in field order: a
// 4-byte little-endian count followed by that many 8-byte elements.
func PutUint64List(vs []uint64) []byte {
	out := make([]byte, 4+8*len(vs))
	binary.LittleEndian.PutUint32(out, uint32(len(vs)))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(out[4+8*i:], v)
	}
	return out
}

func Uint64List(b []byte) ([]uint64, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("txparams: uint64 list blob truncated")
	}
	n := binary.LittleEndian.Uint32(b)
	want := 4 + 8*int(n)
	if len(b) != want {
		return nil, fmt.Errorf("txparams: uint64 list blob must be %d bytes, got %d", want, len(b))
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[4+8*i:])
	}
	return out, nil
}
