// Package storage implements the typed key/value façade (component A) and
// the per-block change-set overlay (component B) of the chain core.
package storage

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/5uwifi/nexuschain/candb"
	"github.com/5uwifi/nexuschain/common"
)

// Context is a key/value mapping with ordered enumeration, the contract
// every sheet and the runtime VM bridge read and write through. It is
// implemented both by a durable/volatile KeyValueContext and by a
// ChangeSet overlaying one.
type Context interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error

	// Keys returns, in ascending byte order, every user key currently
	// present under this context.
	Keys() ([][]byte, error)
}

// Namespaces used to scope the four persisted maps plus VM-visible
// storage assigned to every chain.
const (
	NamespaceTxs    = "txs"
	NamespaceBlocks = "blocks"
	NamespaceTxBlk  = "txbk"
	NamespaceEpoch  = "epoch"
	NamespaceData   = "data"
)

// indexSuffix marks the reserved key under which KeyValueContext keeps its
// sorted directory of live user keys. Put and Delete update it directly in
// the database on every call, so Keys() stays consistent when a ChangeSet
// replays writes through them on Execute or Undo.
var indexSuffix = []byte{0xff, 'i', 'd', 'x'}

// KeyValueContext is the durable/volatile typed façade over a candb.Database,
// scoped to one (chain address, namespace) pair. Keys are composite:
// chain-address, namespace, a 0x00 separator, then the user key.
type KeyValueContext struct {
	db        candb.Database
	chain     common.Address
	namespace string
}

// NewKeyValueContext returns the KV-store façade scoped to chain and
// namespace.
func NewKeyValueContext(db candb.Database, chain common.Address, namespace string) *KeyValueContext {
	return &KeyValueContext{db: db, chain: chain, namespace: namespace}
}

func (c *KeyValueContext) compose(userKey []byte) []byte {
	out := make([]byte, 0, len(c.chain)+len(c.namespace)+1+len(userKey))
	out = append(out, c.chain.Bytes()...)
	out = append(out, []byte(c.namespace)...)
	out = append(out, 0x00)
	out = append(out, userKey...)
	return out
}

func (c *KeyValueContext) indexKey() []byte {
	return c.compose(indexSuffix)
}

func (c *KeyValueContext) loadIndex() ([][]byte, error) {
	raw, err := c.db.Get(c.indexKey())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var keys [][]byte
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *KeyValueContext) storeIndex(keys [][]byte) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return c.db.Put(c.indexKey(), raw)
}

func (c *KeyValueContext) Get(key []byte) ([]byte, error) {
	return c.db.Get(c.compose(key))
}

func (c *KeyValueContext) Put(key []byte, value []byte) error {
	if err := c.db.Put(c.compose(key), value); err != nil {
		return err
	}
	return c.addToIndex(key)
}

func (c *KeyValueContext) Delete(key []byte) error {
	if err := c.db.Delete(c.compose(key)); err != nil {
		return err
	}
	return c.removeFromIndex(key)
}

func (c *KeyValueContext) Keys() ([][]byte, error) {
	return c.loadIndex()
}

func (c *KeyValueContext) addToIndex(key []byte) error {
	keys, err := c.loadIndex()
	if err != nil {
		return err
	}
	i := sort.Search(len(keys), func(i int) bool { return bytes.Compare(keys[i], key) >= 0 })
	if i < len(keys) && bytes.Equal(keys[i], key) {
		return nil
	}
	keys = append(keys, nil)
	copy(keys[i+1:], keys[i:])
	keys[i] = append([]byte(nil), key...)
	return c.storeIndex(keys)
}

func (c *KeyValueContext) removeFromIndex(key []byte) error {
	keys, err := c.loadIndex()
	if err != nil {
		return err
	}
	i := sort.Search(len(keys), func(i int) bool { return bytes.Compare(keys[i], key) >= 0 })
	if i >= len(keys) || !bytes.Equal(keys[i], key) {
		return nil
	}
	keys = append(keys[:i], keys[i+1:]...)
	return c.storeIndex(keys)
}
