package types

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/5uwifi/nexuschain/common"
)

// Epoch is a block-production round under a single validator.
type Epoch struct {
	Index             uint64
	Timestamp         int64
	ValidatorAddress  common.Address
	PreviousEpochHash common.Hash
	Hash              common.Hash
	BlockHashes       []common.Hash
}

// NewEpoch builds an Epoch and computes its initial Hash.
func NewEpoch(index uint64, timestamp int64, validator common.Address, previous common.Hash) *Epoch {
	e := &Epoch{Index: index, Timestamp: timestamp, ValidatorAddress: validator, PreviousEpochHash: previous}
	e.Hash = e.computeHash()
	return e
}

// AppendBlockHash records a newly-committed block under this epoch and
// recomputes Hash, since Hash is a digest over BlockHashes too.
func (e *Epoch) AppendBlockHash(hash common.Hash) {
	e.BlockHashes = append(e.BlockHashes, hash)
	e.Hash = e.computeHash()
}

func (e *Epoch) computeHash() common.Hash {
	out := make([]byte, 0, 8+8+common.AddressLength+common.HashLength+4+len(e.BlockHashes)*common.HashLength)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], e.Index)
	out = append(out, idx[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.Timestamp))
	out = append(out, ts[:]...)
	out = append(out, e.ValidatorAddress.Bytes()...)
	out = append(out, e.PreviousEpochHash.Bytes()...)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(e.BlockHashes)))
	out = append(out, count[:]...)
	for _, h := range e.BlockHashes {
		out = append(out, h.Bytes()...)
	}
	digest := sha256.Sum256(out)
	return common.Hash(digest)
}

// MarshalBinary is Epoch's deterministic wire form.
func (e *Epoch) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 64)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], e.Index)
	out = append(out, idx[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.Timestamp))
	out = append(out, ts[:]...)
	out = append(out, e.ValidatorAddress.Bytes()...)
	out = append(out, e.PreviousEpochHash.Bytes()...)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(e.BlockHashes)))
	out = append(out, count[:]...)
	for _, h := range e.BlockHashes {
		out = append(out, h.Bytes()...)
	}
	return out, nil
}

func (e *Epoch) UnmarshalBinary(data []byte) error {
	const head = 8 + 8 + common.AddressLength + common.HashLength + 4
	if len(data) < head {
		return errShortEpoch
	}
	e.Index = binary.BigEndian.Uint64(data[:8])
	data = data[8:]
	e.Timestamp = int64(binary.BigEndian.Uint64(data[:8]))
	data = data[8:]
	e.ValidatorAddress = common.BytesToAddress(data[:common.AddressLength])
	data = data[common.AddressLength:]
	e.PreviousEpochHash = common.BytesToHash(data[:common.HashLength])
	data = data[common.HashLength:]
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	e.BlockHashes = make([]common.Hash, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < common.HashLength {
			return errShortEpoch
		}
		e.BlockHashes = append(e.BlockHashes, common.BytesToHash(data[:common.HashLength]))
		data = data[common.HashLength:]
	}
	e.Hash = e.computeHash()
	return nil
}

var errShortEpoch = shortErr("epoch")

type shortErr string

func (s shortErr) Error() string { return "types: short " + string(s) }
