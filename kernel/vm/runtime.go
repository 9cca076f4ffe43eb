// Package vm is the runtime VM bridge: it executes a transaction's
// script in a small sandboxed interpreter, mediating every side effect
// through the supplied storage.Context and recording emitted events.
// Grounded on the donor's kernel/vm.Contract/CallContext dispatch shape,
// generalized from an opcode jump table to a method-name interop table.
package vm

import (
	"fmt"

	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/kernel/storage"
	"github.com/5uwifi/nexuschain/kernel/types"
)

// ExecutionState is the three-way outcome of a Run, in place of the
// donor's implicit return/revert/panic trichotomy.
type ExecutionState uint8

const (
	Running ExecutionState = iota
	Halt
	Fault
)

func (s ExecutionState) String() string {
	switch s {
	case Running:
		return "Running"
	case Halt:
		return "Halt"
	case Fault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// Handler is one registered interop method. It reads its arguments from
// rt.Arg, may read/write rt.Storage (unless rt.ReadOnly), may call
// rt.Notify, and must return the state execution should continue in.
type Handler func(rt *Runtime) ExecutionState

// ChainLookup is the slice of Chain a Runtime needs: its own identity and
// its token registry. Kept as a narrow interface here (rather than
// importing the chain package) to avoid an import cycle, since the chain
// package is what constructs and drives a Runtime.
type ChainLookup interface {
	ChainAddress() common.Address
	GetToken(symbol string) (types.Token, bool)
}

// NexusLookup lets the runtime resolve "load context by address" into a
// different chain in the tree.
type NexusLookup interface {
	FindChainByAddress(addr common.Address) (ChainLookup, bool)
}

// Runtime is one execution of a transaction's script. Construct fresh
// per transaction; do not reuse.
type Runtime struct {
	Script   []byte
	Nexus    NexusLookup
	Chain    ChainLookup
	Block    *types.Block
	Tx       *types.Transaction
	Storage  storage.Context
	ReadOnly bool

	handlers map[string]Handler

	args  [][]byte
	stack [][]byte

	events []types.Event
	state  ExecutionState
	fault  error
	ioErr  error

	homeChain ChainLookup
}

// NewRuntime builds a Runtime rooted at changes: the constructor shape
// used by both block application and query invocation.
func NewRuntime(script []byte, nexus NexusLookup, chain ChainLookup, block *types.Block, tx *types.Transaction, changes storage.Context, readOnly bool) *Runtime {
	return &Runtime{
		Script:    script,
		Nexus:     nexus,
		Chain:     chain,
		Block:     block,
		Tx:        tx,
		Storage:   changes,
		ReadOnly:  readOnly,
		handlers:  make(map[string]Handler),
		state:     Running,
		homeChain: chain,
	}
}

// Register installs a handler local to this Runtime, shadowing any
// default of the same name. Handlers must be deterministic.
func (rt *Runtime) Register(method string, h Handler) { rt.handlers[method] = h }

// Arg returns the i'th argument of the instruction currently executing,
// or nil if there is no such argument.
func (rt *Runtime) Arg(i int) []byte {
	if i < 0 || i >= len(rt.args) {
		return nil
	}
	return rt.args[i]
}

// Argc returns the argument count of the instruction currently executing.
func (rt *Runtime) Argc() int { return len(rt.args) }

// Push leaves a value on the runtime's result stack.
func (rt *Runtime) Push(v []byte) { rt.stack = append(rt.stack, v) }

// Pop removes and returns the top of the result stack.
func (rt *Runtime) Pop() ([]byte, bool) {
	if len(rt.stack) == 0 {
		return nil, false
	}
	v := rt.stack[len(rt.stack)-1]
	rt.stack = rt.stack[:len(rt.stack)-1]
	return v, true
}

// Peek returns the top of the result stack without removing it.
func (rt *Runtime) Peek() ([]byte, bool) {
	if len(rt.stack) == 0 {
		return nil, false
	}
	return rt.stack[len(rt.stack)-1], true
}

// IsHomeChain reports whether the Runtime is still bound to the chain
// that owns Tx, as opposed to a chain switched to via LoadContext.
func (rt *Runtime) IsHomeChain() bool { return rt.Chain == rt.homeChain }

// LoadContext binds addr's chain as the Runtime's current chain: the
// bridge locates the matching chain in the Nexus tree and rebinds Chain
// to it. Switching away from the home chain forces subsequent writes
// into Fault, since this Runtime only holds a live change-set for the
// home chain.
func (rt *Runtime) LoadContext(addr common.Address) ExecutionState {
	if rt.Nexus == nil {
		return rt.Fault(fmt.Errorf("vm: no nexus bound, cannot load context %s", addr))
	}
	target, ok := rt.Nexus.FindChainByAddress(addr)
	if !ok {
		return rt.Fault(fmt.Errorf("vm: no chain at address %s", addr))
	}
	rt.Chain = target
	return Running
}

// Notify appends content as an emitted event, to be harvested into the
// Block's per-transaction event list by the caller once the transaction
// halts.
func (rt *Runtime) Notify(kind types.EventKind, address common.Address, content []byte) {
	if content == nil {
		content = []byte{}
	}
	rt.events = append(rt.events, types.Event{Kind: kind, Address: address, Content: content})
}

// Fault records err as the reason execution halted abnormally and
// returns Fault, the value every handler that hits a hard failure should
// return.
func (rt *Runtime) Fault(err error) ExecutionState {
	rt.fault = err
	return Fault
}

// FaultIO is like Fault but marks err as a backend I/O failure, which
// Execute propagates as a Go error instead of a plain rejected-transaction
// outcome.
func (rt *Runtime) FaultIO(err error) ExecutionState {
	rt.ioErr = err
	return rt.Fault(err)
}

// Run executes every instruction in Script against the registered
// interop table until a Fault, an explicit Halt, or the script is
// exhausted (which halts successfully). readOnly Runtimes fault as soon
// as a handler attempts a write (enforced by the sheet/interop handlers
// themselves via rt.ReadOnly).
func (rt *Runtime) Run() ExecutionState {
	instructions, err := DecodeScript(rt.Script)
	if err != nil {
		return rt.Fault(err)
	}
	for _, instr := range instructions {
		h, ok := rt.handlers[instr.Method]
		if !ok {
			h, ok = defaultHandlers[instr.Method]
		}
		if !ok {
			rt.state = rt.Fault(fmt.Errorf("vm: unknown method %q", instr.Method))
			return rt.state
		}
		rt.args = instr.Args
		state := h(rt)
		rt.args = nil
		if state == Fault {
			rt.state = Fault
			return rt.state
		}
		if state == Halt {
			rt.state = Halt
			return rt.state
		}
	}
	rt.state = Halt
	return rt.state
}

// State returns the terminal ExecutionState of the last Run call.
func (rt *Runtime) State() ExecutionState { return rt.state }

// FaultError returns the reason the runtime faulted, if it did.
func (rt *Runtime) FaultError() error { return rt.fault }

// Result returns the serialized stack top if the runtime halted with a
// non-empty stack, or nil otherwise.
func (rt *Runtime) Result() []byte {
	if rt.state != Halt {
		return nil
	}
	v, ok := rt.Peek()
	if !ok {
		return nil
	}
	return v
}

// Events returns the events emitted during Run, in emission order.
func (rt *Runtime) Events() []types.Event { return rt.events }

// Execute is the entry point block application delegates to: it builds a
// Runtime, drives it to completion, and reports whether it halted. err is
// only ever a genuine backend failure; a rejected transaction (Fault) is
// reported by halted=false with err=nil.
func Execute(tx *types.Transaction, nexus NexusLookup, chain ChainLookup, block *types.Block, changes storage.Context, readOnly bool) (result []byte, halted bool, events []types.Event, err error) {
	rt := NewRuntime(tx.Script, nexus, chain, block, tx, changes, readOnly)
	state := rt.Run()
	if rt.ioErr != nil {
		return nil, false, nil, rt.ioErr
	}
	if state != Halt {
		return nil, false, nil, nil
	}
	return rt.Result(), true, rt.Events(), nil
}

// Invoke runs a read-only query script over changes and requires the
// result to be a non-empty Halt.
func Invoke(nexus NexusLookup, chain ChainLookup, changes storage.Context, script []byte) ([]byte, error) {
	rt := NewRuntime(script, nexus, chain, nil, nil, changes, true)
	state := rt.Run()
	if rt.ioErr != nil {
		return nil, rt.ioErr
	}
	if state != Halt {
		return nil, fmt.Errorf("vm: query did not halt (state=%s)", state)
	}
	result := rt.Result()
	if len(result) == 0 {
		return nil, fmt.Errorf("vm: query returned no result")
	}
	return result, nil
}
