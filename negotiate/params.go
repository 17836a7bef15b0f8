// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package negotiate

import (
	"time"

	"github.com/mwallet/mwwallet/address"
	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/txbuilder"
	"github.com/mwallet/mwwallet/txparams"
)

func (t *SimpleTransaction) getUint64(id txparams.ID) (uint64, bool, error) {
	v, ok, err := t.st.GetParam(t.txID, id)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := txparams.Uint64(v)
	return n, true, err
}

func (t *SimpleTransaction) setUint64(id txparams.ID, v uint64) error {
	return t.st.SetParam(t.txID, id, txparams.PutUint64(v))
}

func (t *SimpleTransaction) getBool(id txparams.ID) (bool, bool, error) {
	v, ok, err := t.st.GetParam(t.txID, id)
	if err != nil || !ok {
		return false, ok, err
	}
	b, err := txparams.Bool(v)
	return b, true, err
}

func (t *SimpleTransaction) setBool(id txparams.ID, v bool) error {
	return t.st.SetParam(t.txID, id, txparams.PutBool(v))
}

func (t *SimpleTransaction) getBytes(id txparams.ID) ([]byte, bool, error) {
	return t.st.GetParam(t.txID, id)
}

func (t *SimpleTransaction) setBytes(id txparams.ID, v []byte) error {
	return t.st.SetParam(t.txID, id, v)
}

func (t *SimpleTransaction) getState() (State, error) {
	v, ok, err := t.getUint64(txparams.State)
	if err != nil || !ok {
		return StateInitial, err
	}
	return State(v), nil
}

func (t *SimpleTransaction) setState(s State) error {
	return t.setUint64(txparams.State, uint64(s))
}

func (t *SimpleTransaction) getStatus() (Status, error) {
	v, ok, err := t.getUint64(txparams.Status)
	if err != nil || !ok {
		return StatusPending, err
	}
	return Status(v), nil
}

func (t *SimpleTransaction) setStatus(s Status) error {
	if err := t.setUint64(txparams.Status, uint64(s)); err != nil {
		return err
	}
	return t.syncHistoryStatus(s)
}

func (t *SimpleTransaction) getFailureReason() (FailureReason, bool, error) {
	v, ok, err := t.getUint64(txparams.FailureReason)
	if err != nil || !ok {
		return FailureNone, ok, err
	}
	return FailureReason(v), true, nil
}

func (t *SimpleTransaction) setFailureReason(r FailureReason) error {
	return t.setUint64(txparams.FailureReason, uint64(r))
}

func (t *SimpleTransaction) isSender() (bool, error) {
	v, ok, err := t.getBool(txparams.IsSender)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return v, nil
}

func (t *SimpleTransaction) myID() (address.WalletID, error) {
	v, ok, err := t.getBytes(txparams.MyID)
	if err != nil || !ok {
		return address.WalletID{}, err
	}
	var id address.WalletID
	copy(id[:], v)
	return id, nil
}

func (t *SimpleTransaction) peerID() (address.WalletID, error) {
	v, ok, err := t.getBytes(txparams.PeerID)
	if err != nil || !ok {
		return address.WalletID{}, err
	}
	var id address.WalletID
	copy(id[:], v)
	return id, nil
}

// isSelfTransaction reports whether the peer address is one of this
// store's own addresses, i.e. both sides of the negotiation are controlled
// by the same wallet. A self-transaction still runs the same state
// machine, but skips every edge that would otherwise exchange parameters
// with a peer over the Gateway.
func (t *SimpleTransaction) isSelfTransaction() (bool, error) {
	peerID, err := t.peerID()
	if err != nil {
		return false, err
	}
	addr, err := t.st.GetAddress(peerID)
	if err != nil {
		return false, err
	}
	return addr != nil && addr.IsOwn(), nil
}

func (t *SimpleTransaction) getPoint(id txparams.ID) (chainkd.Point, bool, error) {
	v, ok, err := t.getBytes(id)
	if err != nil || !ok {
		return chainkd.Point{}, ok, err
	}
	p, err := chainkd.PointFromBytes(v)
	return p, true, err
}

func (t *SimpleTransaction) setPoint(id txparams.ID, p chainkd.Point) error {
	return t.setBytes(id, p.Bytes())
}

func (t *SimpleTransaction) getScalar(id txparams.ID) (chainkd.Scalar, bool, error) {
	v, ok, err := t.getBytes(id)
	if err != nil || !ok {
		return chainkd.Scalar{}, ok, err
	}
	s, err := chainkd.ScalarFromBytes(v)
	return s, true, err
}

func (t *SimpleTransaction) setScalar(id txparams.ID, s chainkd.Scalar) error {
	return t.setBytes(id, s.Bytes())
}

func (t *SimpleTransaction) getSignature(id txparams.ID) (chainkd.Signature, bool, error) {
	v, ok, err := t.getBytes(id)
	if err != nil || !ok {
		return chainkd.Signature{}, ok, err
	}
	sig, err := chainkd.SignatureFromBytes(v)
	return sig, true, err
}

func (t *SimpleTransaction) setSignature(id txparams.ID, sig chainkd.Signature) error {
	return t.setBytes(id, sig.Bytes())
}

func (t *SimpleTransaction) getFixedSignature(id txparams.ID) (chainkd.FixedSignature, bool, error) {
	v, ok, err := t.getBytes(id)
	if err != nil || !ok {
		return chainkd.FixedSignature{}, ok, err
	}
	sig, err := chainkd.FixedSignatureFromBytes(v)
	return sig, true, err
}

func (t *SimpleTransaction) getInputs(id txparams.ID) ([]txbuilder.Input, error) {
	v, ok, err := t.getBytes(id)
	if err != nil || !ok {
		return nil, err
	}
	return txbuilder.UnmarshalInputs(v)
}

func (t *SimpleTransaction) setInputs(id txparams.ID, ins []txbuilder.Input) error {
	return t.setBytes(id, txbuilder.MarshalInputs(ins))
}

func (t *SimpleTransaction) getOutputs(id txparams.ID) ([]txbuilder.Output, error) {
	v, ok, err := t.getBytes(id)
	if err != nil || !ok {
		return nil, err
	}
	return txbuilder.UnmarshalOutputs(v)
}

func (t *SimpleTransaction) setOutputs(id txparams.ID, outs []txbuilder.Output) error {
	return t.setBytes(id, txbuilder.MarshalOutputs(outs))
}

func (t *SimpleTransaction) setModifyTime(ts time.Time) error {
	return t.setUint64(txparams.ModifyTime, uint64(ts.Unix()))
}
