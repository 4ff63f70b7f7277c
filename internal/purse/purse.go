// Package purse implements the fee-paying adapter: given a raw, unfunded
// transaction and the outputs it already spends, work out whatever
// additional inputs/change are needed to cover its mining fee and return
// them as a FundingPlan. The raw transaction itself is not modified; no
// funded raw transaction is returned.
//
// Grounded in core/ledger.go's `fee := tx.GasLimit * tx.GasPrice` sizing
// (a linear cost-times-rate fee formula charged before a transaction is
// admitted), adapted here from gas-limit*gas-price to size-in-bytes*feerate,
// the UTXO analogue, since this kernel's transactions carry no VM gas limit
// of their own.
package purse

import (
	"context"
	"fmt"
	"sync"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/owner"
)

// UTXO is a spendable output this purse may add as a funding input.
type UTXO struct {
	TxID  string
	Vout  int
	Value int64
	Owner bindings.Lock
	Index uint32 // the owner wallet's derivation index for Owner, for signing
}

// Simple is an in-memory single-feerate purse: it holds a pool of its own
// UTXOs and greedily selects from them to cover a transaction's fee.
type Simple struct {
	mu      sync.Mutex
	feerate int64 // satoshis per byte
	utxos   []UTXO
	wallet  *owner.Wallet
}

// New constructs a purse funded from utxos, charging feerate satoshis per
// byte of the raw transaction it is asked to pay for.
func New(feerate int64, wallet *owner.Wallet, utxos []UTXO) *Simple {
	return &Simple{feerate: feerate, utxos: append([]UTXO(nil), utxos...), wallet: wallet}
}

// Deposit adds a UTXO to the purse's funding pool (e.g. after it receives
// change from a prior Pay call).
func (s *Simple) Deposit(u UTXO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos = append(s.utxos, u)
}

// FundingPlan describes what a Pay call decided to attach, so the caller's
// record/commit bookkeeping can account for the extra input/output.
type FundingPlan struct {
	Inputs   []UTXO
	FeePaid  int64
	Change   int64
	ChangeTo bindings.Lock
}

// Pay selects enough of the purse's UTXOs to cover rawtx's estimated fee
// and returns the funding plan the caller folds into the transaction
// before broadcast. It does not mutate rawtx itself: this kernel's wire
// format anchors fee/funding bookkeeping in the transaction's
// inputs/outputs list, assembled by the caller, not by byte-splicing a
// serialized transaction.
func (s *Simple) Pay(ctx context.Context, rawtx []byte, parentValues []int64) (*FundingPlan, error) {
	fee := int64(len(rawtx)) * s.feerate
	var spent int64
	for _, v := range parentValues {
		spent += v
	}
	need := fee - spent
	if need <= 0 {
		return &FundingPlan{FeePaid: fee}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var chosen []UTXO
	var total int64
	for i := 0; i < len(s.utxos) && total < need; i++ {
		u := s.utxos[i]
		chosen = append(chosen, u)
		total += u.Value
	}
	if total < need {
		return nil, fmt.Errorf("Execution: purse has insufficient funds to cover fee %d (have %d, need %d more)", fee, spent, need)
	}
	s.utxos = s.utxos[len(chosen):]

	change := total - need
	plan := &FundingPlan{Inputs: chosen, FeePaid: fee}
	if change > 0 {
		lock, err := s.wallet.NextOwner()
		if err != nil {
			return nil, err
		}
		plan.Change = change
		plan.ChangeTo = lock
	}
	return plan, nil
}
