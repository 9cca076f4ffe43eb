package types

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/5uwifi/nexuschain/common"
)

// Block is an ordered hash list plus per-transaction results and events.
type Block struct {
	Height            uint64
	PreviousHash      common.Hash
	Timestamp         int64
	Hash              common.Hash
	TransactionHashes []common.Hash
	Results           map[common.Hash][]byte
	Events            map[common.Hash][]Event
}

// NewBlock builds a Block whose TransactionHashes are fixed at
// construction and computes its Hash.
func NewBlock(height uint64, previousHash common.Hash, timestamp int64, txHashes []common.Hash) *Block {
	b := &Block{
		Height:            height,
		PreviousHash:      previousHash,
		Timestamp:         timestamp,
		TransactionHashes: append([]common.Hash(nil), txHashes...),
		Results:           make(map[common.Hash][]byte),
		Events:            make(map[common.Hash][]Event),
	}
	b.Hash = b.computeHash()
	return b
}

func (b *Block) computeHash() common.Hash {
	out := make([]byte, 0, 8+common.HashLength+8+4+len(b.TransactionHashes)*common.HashLength)
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], b.Height)
	out = append(out, height[:]...)
	out = append(out, b.PreviousHash.Bytes()...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(b.Timestamp))
	out = append(out, ts[:]...)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(b.TransactionHashes)))
	out = append(out, count[:]...)
	for _, h := range b.TransactionHashes {
		out = append(out, h.Bytes()...)
	}
	digest := sha256.Sum256(out)
	return common.Hash(digest)
}

// SetResultForHash records the serialized result of the transaction
// identified by hash.
func (b *Block) SetResultForHash(hash common.Hash, result []byte) {
	if b.Results == nil {
		b.Results = make(map[common.Hash][]byte)
	}
	b.Results[hash] = result
}

// AppendEvent records an event emitted while executing the transaction
// identified by hash, preserving emission order.
func (b *Block) AppendEvent(hash common.Hash, ev Event) {
	if b.Events == nil {
		b.Events = make(map[common.Hash][]Event)
	}
	b.Events[hash] = append(b.Events[hash], ev)
}

// MarshalBinary is Block's deterministic wire form: the skeleton fields
// plus, for each transaction in TransactionHashes order, its result and
// event list. Iterating in that fixed order (rather than ranging over
// the Results/Events maps) is what keeps the encoding deterministic.
func (b *Block) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 256)
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], b.Height)
	out = append(out, height[:]...)
	out = append(out, b.PreviousHash.Bytes()...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(b.Timestamp))
	out = append(out, ts[:]...)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(b.TransactionHashes)))
	out = append(out, count[:]...)
	for _, h := range b.TransactionHashes {
		out = append(out, h.Bytes()...)
		out = appendUint32Prefixed(out, b.Results[h])
		events := b.Events[h]
		var ecount [4]byte
		binary.BigEndian.PutUint32(ecount[:], uint32(len(events)))
		out = append(out, ecount[:]...)
		for _, ev := range events {
			enc, err := ev.MarshalBinary()
			if err != nil {
				return nil, err
			}
			out = appendUint32Prefixed(out, enc)
		}
	}
	return out, nil
}

func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) < 8+common.HashLength+8+4 {
		return errors.New("types: short block")
	}
	b.Height = binary.BigEndian.Uint64(data[:8])
	data = data[8:]
	b.PreviousHash = common.BytesToHash(data[:common.HashLength])
	data = data[common.HashLength:]
	b.Timestamp = int64(binary.BigEndian.Uint64(data[:8]))
	data = data[8:]
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]

	b.TransactionHashes = make([]common.Hash, 0, count)
	b.Results = make(map[common.Hash][]byte)
	b.Events = make(map[common.Hash][]Event)
	for i := uint32(0); i < count; i++ {
		if len(data) < common.HashLength {
			return errors.New("types: truncated block")
		}
		h := common.BytesToHash(data[:common.HashLength])
		data = data[common.HashLength:]
		b.TransactionHashes = append(b.TransactionHashes, h)

		result, rest, err := readUint32Prefixed(data)
		if err != nil {
			return err
		}
		data = rest
		if len(result) > 0 {
			b.Results[h] = result
		}
		if len(data) < 4 {
			return errors.New("types: truncated block events")
		}
		ecount := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		for j := uint32(0); j < ecount; j++ {
			enc, rest, err := readUint32Prefixed(data)
			if err != nil {
				return err
			}
			data = rest
			var ev Event
			if err := ev.UnmarshalBinary(enc); err != nil {
				return err
			}
			b.Events[h] = append(b.Events[h], ev)
		}
	}
	b.Hash = b.computeHash()
	return nil
}
