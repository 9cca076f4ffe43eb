package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/5uwifi/nexuschain/common"
)

// EventKind enumerates the event shapes the runtime VM bridge can emit.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventTokenMint
	EventTokenBurn
	EventTokenSend
	EventTokenReceive
	EventGasPayment
	EventLog
)

func (k EventKind) String() string {
	switch k {
	case EventTokenMint:
		return "TokenMint"
	case EventTokenBurn:
		return "TokenBurn"
	case EventTokenSend:
		return "TokenSend"
	case EventTokenReceive:
		return "TokenReceive"
	case EventGasPayment:
		return "GasPayment"
	case EventLog:
		return "Log"
	default:
		return "Unknown"
	}
}

// Event is one emission from a transaction's execution.
type Event struct {
	Kind    EventKind
	Address common.Address
	Content []byte
}

// GasPayment is the deterministic payload of an EventGasPayment event.
type GasPayment struct {
	Price  *big.Int
	Amount *big.Int
}

// NewGasPaymentEvent builds the GasPayment event that the gas.pay interop
// emits, once per gas.pay call.
func NewGasPaymentEvent(addr common.Address, price, amount *big.Int) Event {
	return Event{Kind: EventGasPayment, Address: addr, Content: (GasPayment{Price: price, Amount: amount}).Marshal()}
}

// Marshal serializes a GasPayment deterministically: two length-prefixed
// big-endian big.Int byte strings.
func (g GasPayment) Marshal() []byte {
	price := g.Price.Bytes()
	amount := g.Amount.Bytes()
	out := make([]byte, 0, 8+len(price)+len(amount))
	out = appendUint32Prefixed(out, price)
	out = appendUint32Prefixed(out, amount)
	return out
}

// UnmarshalGasPayment is the inverse of GasPayment.Marshal.
func UnmarshalGasPayment(data []byte) (GasPayment, error) {
	price, rest, err := readUint32Prefixed(data)
	if err != nil {
		return GasPayment{}, err
	}
	amount, rest, err := readUint32Prefixed(rest)
	if err != nil {
		return GasPayment{}, err
	}
	if len(rest) != 0 {
		return GasPayment{}, errors.New("types: trailing bytes in GasPayment")
	}
	return GasPayment{Price: new(big.Int).SetBytes(price), Amount: new(big.Int).SetBytes(amount)}, nil
}

// MarshalBinary is Event's deterministic wire form: kind, address, and a
// length-prefixed content string.
func (e Event) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 1+common.AddressLength+4+len(e.Content))
	out = append(out, byte(e.Kind))
	out = append(out, e.Address.Bytes()...)
	out = appendUint32Prefixed(out, e.Content)
	return out, nil
}

func (e *Event) UnmarshalBinary(data []byte) error {
	if len(data) < 1+common.AddressLength {
		return errors.New("types: short Event")
	}
	e.Kind = EventKind(data[0])
	e.Address = common.BytesToAddress(data[1 : 1+common.AddressLength])
	content, rest, err := readUint32Prefixed(data[1+common.AddressLength:])
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("types: trailing bytes in Event")
	}
	e.Content = content
	return nil
}

func appendUint32Prefixed(out []byte, v []byte) []byte {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(v)))
	out = append(out, length[:]...)
	return append(out, v...)
}

func readUint32Prefixed(data []byte) (value, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, errors.New("types: short length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, errors.New("types: truncated length-prefixed field")
	}
	return data[:n], data[n:], nil
}
