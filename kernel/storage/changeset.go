package storage

import (
	"bytes"
	"errors"
	"sort"
)

// ErrChangeSetReused is returned by a second Execute, an Execute after
// Undo, or a second Undo on the same ChangeSet. One Undo after Execute is
// the rollback path and is allowed; this error makes any other reuse
// observable instead of silently corrupting state.
var ErrChangeSetReused = errors.New("storage: change-set already executed or undone")

// entry is one journaled write: the value a key held before this
// change-set first touched it, and the value it holds now.
type entry struct {
	key       []byte
	before    []byte
	hadBefore bool
	after     []byte
	isDelete  bool
}

// ChangeSet is a buffered overlay on a parent Context. All reads consult
// the overlay first, falling back to the parent. Execute replays the
// journal onto the parent in order; Undo replays the inverse in reverse
// order. Each may be called at most once, and Execute may not follow Undo.
type ChangeSet struct {
	parent   Context
	byKey    map[string]*entry
	journal  []*entry
	executed bool
	undone   bool
}

// NewChangeSet builds a change-set staged over parent. Constructed fresh
// on every block application.
func NewChangeSet(parent Context) *ChangeSet {
	return &ChangeSet{parent: parent, byKey: make(map[string]*entry)}
}

func (c *ChangeSet) touch(key []byte) (*entry, error) {
	if e, ok := c.byKey[string(key)]; ok {
		return e, nil
	}
	before, err := c.parent.Get(key)
	if err != nil {
		return nil, err
	}
	e := &entry{key: append([]byte(nil), key...), before: before, hadBefore: before != nil}
	c.byKey[string(key)] = e
	c.journal = append(c.journal, e)
	return e, nil
}

func (c *ChangeSet) Get(key []byte) ([]byte, error) {
	if e, ok := c.byKey[string(key)]; ok {
		if e.isDelete {
			return nil, nil
		}
		return e.after, nil
	}
	return c.parent.Get(key)
}

func (c *ChangeSet) Put(key []byte, value []byte) error {
	e, err := c.touch(key)
	if err != nil {
		return err
	}
	e.after = append([]byte(nil), value...)
	e.isDelete = false
	return nil
}

func (c *ChangeSet) Delete(key []byte) error {
	e, err := c.touch(key)
	if err != nil {
		return err
	}
	e.after = nil
	e.isDelete = true
	return nil
}

func (c *ChangeSet) Keys() ([][]byte, error) {
	base, err := c.parent.Keys()
	if err != nil {
		return nil, err
	}
	set := make(map[string][]byte, len(base))
	for _, k := range base {
		set[string(k)] = k
	}
	for _, e := range c.journal {
		if e.isDelete {
			delete(set, string(e.key))
		} else {
			set[string(e.key)] = e.key
		}
	}
	out := make([][]byte, 0, len(set))
	for _, k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out, nil
}

// Execute applies the journal to the parent in the order entries were
// first touched. It may not be called twice, nor after Undo.
func (c *ChangeSet) Execute() error {
	if c.executed || c.undone {
		return ErrChangeSetReused
	}
	for _, e := range c.journal {
		var err error
		if e.isDelete {
			err = c.parent.Delete(e.key)
		} else {
			err = c.parent.Put(e.key, e.after)
		}
		if err != nil {
			return err
		}
	}
	c.executed = true
	return nil
}

// Undo restores the parent's pre-touch values, in reverse journal order.
// Calling it after Execute is the normal block-rollback path; it may not
// be called twice.
func (c *ChangeSet) Undo() error {
	if c.undone {
		return ErrChangeSetReused
	}
	for i := len(c.journal) - 1; i >= 0; i-- {
		e := c.journal[i]
		var err error
		if !e.hadBefore {
			err = c.parent.Delete(e.key)
		} else {
			err = c.parent.Put(e.key, e.before)
		}
		if err != nil {
			return err
		}
	}
	c.undone = true
	return nil
}
