// Package chain implements the blockchain adapter: broadcast a transaction,
// fetch a transaction's raw bytes by txid, list a location's
// UTXO set and the spender of a given output, and report chain time.
//
// Grounded in core/network.go's Node (a libp2p host wrapping go-libp2p-pubsub
// gossip topics, with a package-level Broadcast hook for callers that don't
// hold a *Node directly). P2P replicates transactions; a separate in-memory
// index tracks spends so Spends/UTXOs can answer without a full UTXO-set
// scan, the way core/network.go's replicatedMessages map lets
// GetReplicatedMessages answer without re-walking the gossip log.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

const txTopic = "runkernel-tx"

// Node is a gossip-replicated transaction index: every transaction
// broadcast on txTopic is both gossiped to peers and recorded locally, so
// Fetch/Spends/UTXOs can be answered from local state.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Logger

	mu     sync.RWMutex
	txs    map[string][]byte       // txid -> raw metadata bytes
	spends map[string]string       // "txid:vout" -> spender txid
	utxos  map[string]map[int]bool // txid -> set of unspent vout

	peerMu sync.RWMutex
	peers  map[string]string // peer id -> multiaddr, from dialSeeds/mDNS
}

// New bootstraps a libp2p host joined to the transaction gossip topic, dials
// bootstrapPeers and starts an mDNS discovery service tagged discoveryTag so
// LAN peers find each other without a seed list.
func New(ctx context.Context, listenAddr string, bootstrapPeers []string, discoveryTag string, log *logrus.Logger) (*Node, error) {
	if _, err := multiaddr.NewMultiaddr(listenAddr); err != nil {
		return nil, fmt.Errorf("chain: bad listen address %q: %w", listenAddr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("chain: create host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("chain: create pubsub: %w", err)
	}
	topic, err := ps.Join(txTopic)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("chain: join topic: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}
	n := &Node{
		host: h, pubsub: ps, topic: topic, ctx: ctx, cancel: cancel, log: log,
		txs: map[string][]byte{}, spends: map[string]string{}, utxos: map[string]map[int]bool{},
		peers: map[string]string{},
	}
	go n.listen()

	if err := n.dialSeeds(bootstrapPeers); err != nil {
		log.Warnf("chain: bootstrap dial warning: %v", err)
	}
	if discoveryTag != "" {
		mdns.NewMdnsService(h, discoveryTag, n)
	}
	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee: dial a LAN peer discovered via
// mDNS, ignoring ourselves and peers we already know.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	n.peerMu.RLock()
	_, known := n.peers[info.ID.String()]
	n.peerMu.RUnlock()
	if known {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.log.Warnf("chain: connect to mDNS peer %s failed: %v", info.ID, err)
		return
	}
	n.peerMu.Lock()
	n.peers[info.ID.String()] = info.String()
	n.peerMu.Unlock()
	n.log.Infof("chain: connected to peer %s via mDNS", info.ID)
}

// dialSeeds connects to a fixed bootstrap list, the way a new node finds its
// first peers before mDNS or further gossip-driven discovery takes over.
func (n *Node) dialSeeds(seeds []string) error {
	var errs []string
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid addr %s: %v", addr, err))
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			errs = append(errs, fmt.Sprintf("connect %s: %v", addr, err))
			continue
		}
		n.peerMu.Lock()
		n.peers[pi.ID.String()] = addr
		n.peerMu.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

type wireTx struct {
	TxID   string `json:"txid"`
	Raw    []byte `json:"raw"`
	Spends []spend `json:"spends"` // inputs this tx consumes
	Outs   int     `json:"outs"`   // number of outputs this tx creates
}

type spend struct {
	TxID string `json:"txid"`
	Vout int    `json:"vout"`
}

func (n *Node) listen() {
	sub, err := n.topic.Subscribe()
	if err != nil {
		n.log.Warnf("chain: subscribe failed: %v", err)
		return
	}
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return
		}
		var wt wireTx
		if err := json.Unmarshal(msg.Data, &wt); err != nil {
			n.log.Warnf("chain: malformed gossip message: %v", err)
			continue
		}
		n.index(wt)
	}
}

func (n *Node) index(wt wireTx) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txs[wt.TxID] = wt.Raw
	if _, ok := n.utxos[wt.TxID]; !ok {
		set := make(map[int]bool, wt.Outs)
		for i := 0; i < wt.Outs; i++ {
			set[i] = true
		}
		n.utxos[wt.TxID] = set
	}
	for _, s := range wt.Spends {
		n.spends[key(s.TxID, s.Vout)] = wt.TxID
		if set, ok := n.utxos[s.TxID]; ok {
			delete(set, s.Vout)
		}
	}
}

// Broadcast publishes a transaction's wire bytes and input/output shape so
// every node's local index (including this one) can answer Fetch/Spends.
func (n *Node) Broadcast(ctx context.Context, txid string, raw []byte, spends []Spend, outs int) error {
	ws := make([]spend, len(spends))
	for i, s := range spends {
		ws[i] = spend{TxID: s.TxID, Vout: s.Vout}
	}
	data, err := json.Marshal(wireTx{TxID: txid, Raw: raw, Spends: ws, Outs: outs})
	if err != nil {
		return err
	}
	n.index(wireTx{TxID: txid, Raw: raw, Spends: ws, Outs: outs})
	return n.topic.Publish(ctx, data)
}

// Spend names one output a new transaction consumes.
type Spend struct {
	TxID string
	Vout int
}

// Fetch returns a transaction's raw metadata bytes by txid (replay.Chain).
func (n *Node) Fetch(ctx context.Context, txid string) ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	raw, ok := n.txs[txid]
	if !ok {
		return nil, fmt.Errorf("Load: transaction %s not found", txid)
	}
	return raw, nil
}

// Spends reports the spender of (txid, vout), if any (replay.Chain).
func (n *Node) Spends(ctx context.Context, txid string, vout int) (string, bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	spender, ok := n.spends[key(txid, vout)]
	return spender, ok, nil
}

// UTXOs lists the unspent output indices of txid.
func (n *Node) UTXOs(ctx context.Context, txid string) ([]int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	set, ok := n.utxos[txid]
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

// Time reports the adapter's view of chain time: the local clock, in UTC.
func (n *Node) Time(ctx context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

// Close tears down the host.
func (n *Node) Close() error {
	n.cancel()
	return n.host.Close()
}

func key(txid string, vout int) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}
