package vm

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/kernel/types"
)

// defaultHandlers is the process-wide interop registration table: method
// name -> handler. Handlers here mediate every ledger side effect a
// script can cause; nothing outside this file touches sheets on the
// runtime's behalf.
var defaultHandlers = map[string]Handler{
	"balance.get":      handleBalanceGet,
	"balance.transfer": handleBalanceTransfer,
	"token.mint":       handleTokenMint,
	"token.burn":       handleTokenBurn,
	"nft.mint":         handleNFTMint,
	"nft.transfer":     handleNFTTransfer,
	"nft.owner":        handleNFTOwner,
	"notify":           handleNotify,
	"context.load":     handleContextLoad,
	"gas.pay":          handleGasPay,
}

// RegisterHandler installs h as the default implementation of method,
// available to every Runtime that does not shadow it locally. Handlers
// must be deterministic.
func RegisterHandler(method string, h Handler) { defaultHandlers[method] = h }

func tokenState(rt *Runtime, symbol string) (*types.TokenState, ExecutionState) {
	token, ok := rt.Chain.GetToken(symbol)
	if !ok {
		return nil, rt.Fault(fmt.Errorf("vm: unknown token %q", symbol))
	}
	return types.NewTokenState(token), Running
}

func handleBalanceGet(rt *Runtime) ExecutionState {
	symbol := string(rt.Arg(0))
	addr := common.BytesToAddress(rt.Arg(1))
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	sheet, err := ts.Balance()
	if err != nil {
		return rt.Fault(err)
	}
	bal, err := sheet.Get(rt.Storage, addr)
	if err != nil {
		return rt.FaultIO(err)
	}
	rt.Push([]byte(bal.String()))
	return Running
}

func handleBalanceTransfer(rt *Runtime) ExecutionState {
	if rt.ReadOnly {
		return rt.Fault(fmt.Errorf("vm: write attempted in read-only invocation"))
	}
	if !rt.IsHomeChain() {
		return rt.Fault(fmt.Errorf("vm: write attempted against a loaded chain, only the home chain accepts writes"))
	}
	symbol := string(rt.Arg(0))
	from := common.BytesToAddress(rt.Arg(1))
	to := common.BytesToAddress(rt.Arg(2))
	amount, ok := new(big.Int).SetString(string(rt.Arg(3)), 10)
	if !ok {
		return rt.Fault(fmt.Errorf("vm: invalid amount"))
	}
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	sheet, err := ts.Balance()
	if err != nil {
		return rt.Fault(err)
	}
	if err := sheet.Transfer(rt.Storage, from, to, amount); err != nil {
		return rt.Fault(err)
	}
	rt.Notify(types.EventTokenSend, from, []byte(symbol))
	rt.Notify(types.EventTokenReceive, to, []byte(symbol))
	return Running
}

func handleTokenMint(rt *Runtime) ExecutionState {
	if rt.ReadOnly {
		return rt.Fault(fmt.Errorf("vm: write attempted in read-only invocation"))
	}
	if !rt.IsHomeChain() {
		return rt.Fault(fmt.Errorf("vm: write attempted against a loaded chain, only the home chain accepts writes"))
	}
	symbol := string(rt.Arg(0))
	to := common.BytesToAddress(rt.Arg(1))
	amount, ok := new(big.Int).SetString(string(rt.Arg(2)), 10)
	if !ok {
		return rt.Fault(fmt.Errorf("vm: invalid amount"))
	}
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	if ts.Token.IsCapped() {
		supply, err := ts.Supply()
		if err != nil {
			return rt.Fault(err)
		}
		if err := supply.Mint(rt.Storage, amount); err != nil {
			return rt.Fault(err)
		}
	}
	sheet, err := ts.Balance()
	if err != nil {
		return rt.Fault(err)
	}
	if err := sheet.Add(rt.Storage, to, amount); err != nil {
		return rt.FaultIO(err)
	}
	rt.Notify(types.EventTokenMint, to, []byte(symbol))
	return Running
}

func handleTokenBurn(rt *Runtime) ExecutionState {
	if rt.ReadOnly {
		return rt.Fault(fmt.Errorf("vm: write attempted in read-only invocation"))
	}
	if !rt.IsHomeChain() {
		return rt.Fault(fmt.Errorf("vm: write attempted against a loaded chain, only the home chain accepts writes"))
	}
	symbol := string(rt.Arg(0))
	from := common.BytesToAddress(rt.Arg(1))
	amount, ok := new(big.Int).SetString(string(rt.Arg(2)), 10)
	if !ok {
		return rt.Fault(fmt.Errorf("vm: invalid amount"))
	}
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	sheet, err := ts.Balance()
	if err != nil {
		return rt.Fault(err)
	}
	if err := sheet.Subtract(rt.Storage, from, amount); err != nil {
		return rt.Fault(err)
	}
	if ts.Token.IsCapped() {
		supply, err := ts.Supply()
		if err != nil {
			return rt.Fault(err)
		}
		if err := supply.Burn(rt.Storage, amount); err != nil {
			return rt.Fault(err)
		}
	}
	rt.Notify(types.EventTokenBurn, from, []byte(symbol))
	return Running
}

func handleNFTMint(rt *Runtime) ExecutionState {
	if rt.ReadOnly {
		return rt.Fault(fmt.Errorf("vm: write attempted in read-only invocation"))
	}
	if !rt.IsHomeChain() {
		return rt.Fault(fmt.Errorf("vm: write attempted against a loaded chain, only the home chain accepts writes"))
	}
	symbol := string(rt.Arg(0))
	owner := common.BytesToAddress(rt.Arg(1))
	id := string(rt.Arg(2))
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	ownership, err := ts.Ownership()
	if err != nil {
		return rt.Fault(err)
	}
	if err := ownership.Mint(rt.Storage, owner, id); err != nil {
		return rt.Fault(err)
	}
	rt.Notify(types.EventTokenMint, owner, []byte(symbol+":"+id))
	return Running
}

func handleNFTTransfer(rt *Runtime) ExecutionState {
	if rt.ReadOnly {
		return rt.Fault(fmt.Errorf("vm: write attempted in read-only invocation"))
	}
	if !rt.IsHomeChain() {
		return rt.Fault(fmt.Errorf("vm: write attempted against a loaded chain, only the home chain accepts writes"))
	}
	symbol := string(rt.Arg(0))
	to := common.BytesToAddress(rt.Arg(1))
	id := string(rt.Arg(2))
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	ownership, err := ts.Ownership()
	if err != nil {
		return rt.Fault(err)
	}
	if err := ownership.Transfer(rt.Storage, to, id); err != nil {
		return rt.Fault(err)
	}
	rt.Notify(types.EventTokenSend, to, []byte(symbol+":"+id))
	return Running
}

func handleNFTOwner(rt *Runtime) ExecutionState {
	symbol := string(rt.Arg(0))
	id := string(rt.Arg(1))
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	ownership, err := ts.Ownership()
	if err != nil {
		return rt.Fault(err)
	}
	owner, ok, err := ownership.OwnerOf(rt.Storage, id)
	if err != nil {
		return rt.FaultIO(err)
	}
	if !ok {
		return rt.Fault(fmt.Errorf("vm: no owner for %s:%s", symbol, id))
	}
	rt.Push(owner.Bytes())
	return Running
}

func handleNotify(rt *Runtime) ExecutionState {
	addr := common.BytesToAddress(rt.Arg(0))
	content := rt.Arg(1)
	rt.Notify(types.EventLog, addr, content)
	return Running
}

func handleContextLoad(rt *Runtime) ExecutionState {
	addr := common.BytesToAddress(rt.Arg(0))
	return rt.LoadContext(addr)
}

func handleGasPay(rt *Runtime) ExecutionState {
	if rt.ReadOnly {
		return rt.Fault(fmt.Errorf("vm: write attempted in read-only invocation"))
	}
	if !rt.IsHomeChain() {
		return rt.Fault(fmt.Errorf("vm: write attempted against a loaded chain, only the home chain accepts writes"))
	}
	payer := common.BytesToAddress(rt.Arg(0))
	price, ok1 := new(big.Int).SetString(string(rt.Arg(1)), 10)
	amount, ok2 := new(big.Int).SetString(string(rt.Arg(2)), 10)
	if !ok1 || !ok2 {
		return rt.Fault(fmt.Errorf("vm: invalid gas payment amounts"))
	}
	total := new(big.Int).Mul(price, amount)
	symbol := "GAS"
	ts, state := tokenState(rt, symbol)
	if state == Fault {
		return state
	}
	sheet, err := ts.Balance()
	if err != nil {
		return rt.Fault(err)
	}
	if err := sheet.Subtract(rt.Storage, payer, total); err != nil {
		return rt.Fault(err)
	}
	rt.events = append(rt.events, types.NewGasPaymentEvent(payer, price, amount))
	return Running
}

// EncodeUint64 encodes v as 8 big-endian bytes. The handlers above read
// their amounts as decimal strings, not in this form.
func EncodeUint64(v uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out[:]
}
