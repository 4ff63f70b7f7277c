package chain

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mem is an in-process chain adapter with no networking, for tests and
// single-node development. Grounded in core/network.go's package-level
// replicatedMessages map (an in-memory stand-in for "real" gossip
// replication, explicitly called out there as swappable for a DB or network
// broadcaster later).
type Mem struct {
	mu     sync.RWMutex
	txs    map[string][]byte
	spends map[string]string
	utxos  map[string]map[int]bool
	clock  func() time.Time
}

// NewMem constructs an empty in-memory chain.
func NewMem() *Mem {
	return &Mem{
		txs: map[string][]byte{}, spends: map[string]string{}, utxos: map[string]map[int]bool{},
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (m *Mem) Broadcast(ctx context.Context, txid string, raw []byte, spends []Spend, outs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txid] = raw
	if _, ok := m.utxos[txid]; !ok {
		set := make(map[int]bool, outs)
		for i := 0; i < outs; i++ {
			set[i] = true
		}
		m.utxos[txid] = set
	}
	for _, s := range spends {
		m.spends[key(s.TxID, s.Vout)] = txid
		if set, ok := m.utxos[s.TxID]; ok {
			delete(set, s.Vout)
		}
	}
	return nil
}

func (m *Mem) Fetch(ctx context.Context, txid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("Load: transaction %s not found", txid)
	}
	return raw, nil
}

func (m *Mem) Spends(ctx context.Context, txid string, vout int) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spender, ok := m.spends[key(txid, vout)]
	return spender, ok, nil
}

func (m *Mem) UTXOs(ctx context.Context, txid string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.utxos[txid]
	if !ok {
		return nil, fmt.Errorf("Load: transaction %s not found", txid)
	}
	out := make([]int, 0, len(set))
	for vout, unspent := range set {
		if unspent {
			out = append(out, vout)
		}
	}
	return out, nil
}

func (m *Mem) Time(ctx context.Context) (time.Time, error) {
	return m.clock(), nil
}
