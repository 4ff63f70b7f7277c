// Package replay implements the replay/load pipeline: given a location,
// consult the state cache, else fetch+parse the owning
// transaction, recursively load its dependencies, re-execute its script
// inside a fresh sandbox realm, and verify the re-encoded states match the
// metadata's declared hashes before publishing the result.
//
// Grounded in core/ledger.go's RebuildChain/applyBlock replay path (fed a
// block list, it reapplies each block's transactions against fresh state
// and recomputes a root to compare), generalized from "blocks of balance
// transfers" to "jig scripts of arbitrary op kinds" and split here into
// pluggable Chain/Cache/TrustSet/BanSet/Executor collaborators so the
// kernel facade can wire concrete adapters without this package importing
// them (avoiding an import cycle with internal/chain and internal/cache).
package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/determinism"
	"github.com/runkernel/kernel/internal/envcheck"
	"github.com/runkernel/kernel/internal/sandbox"
)

func parseMetadataJSON(raw []byte) (*ParsedMetadata, error) {
	var meta ParsedMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Chain is the subset of the blockchain adapter contract the replay
// pipeline calls directly.
type Chain interface {
	Fetch(ctx context.Context, txid string) ([]byte, error)
	Spends(ctx context.Context, txid string, vout int) (spenderTxid string, ok bool, err error)
}

// Cache is the subset of the cache adapter contract the replay pipeline
// calls directly: codec-shaped JSON values keyed by the
// stringly-typed namespaces `jig://`, `tx://`, `ban://`.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// TrustSet reports whether a txid's embedded source may be executed.
// "*" trusts every txid.
type TrustSet interface {
	IsTrusted(txid string) bool
	Trust(txid string)
}

// BanSet records locations whose load has deterministically failed, with
// the failure reason, so repeated loads don't reissue the same network
// traffic.
type BanSet interface {
	Ban(location, reason string)
	Banned(location string) (reason string, ok bool)
	ClearBan(location string)
}

// ParsedMetadata is the decoded form of a transaction's anchor-output
// metadata. This kernel's wire encoding embeds the metadata
// object directly as the "rawtx" payload Chain.Fetch returns: no full
// Bitcoin-script transaction parser exists anywhere in the example pack
// (btcec/secp256k1 cover only signing primitives, not wire tx parsing), so
// parsing here is a JSON decode of the metadata object rather than a
// scan over op-return script chunks.
type ParsedMetadata struct {
	Version int               `json:"version"`
	App     string            `json:"app"`
	In      int               `json:"in"`
	Ref     []string          `json:"ref"`
	Out     map[string]string `json:"out"` // output index (string) -> expected state hash hex
	Del     map[string]string `json:"del"`
	Cre     map[string]string `json:"cre"` // output index -> owner descriptor
	Exec    []ExecEntry       `json:"exec"`
	Deps    []string          `json:"deps"` // dependency txids gathered from $jig references
	Root    string            `json:"root"` // merkle root over Out's per-output hashes, in index order
}

// ExecEntry is one operation of the transaction's script.
type ExecEntry struct {
	Op   string `json:"op"`
	Data []byte `json:"data"` // codec-encoded operand payload
}

// ClassRegistry resolves a deployed class's compiled source by its origin
// location, so replay can re-run the exact method bodies a live deploy
// would have compiled, rather than re-parsing source (this sandbox has no
// text parser to begin with; see internal/sandbox package doc).
type ClassRegistry interface {
	Resolve(origin string) (*sandbox.ClassSource, bool)
}

// Executor re-executes one transaction's script inside a fresh realm and
// returns the canonically-encoded state produced at each output index. The
// kernel facade supplies this, since it alone knows how to dispatch CALL/
// NEW/DEPLOY ops against compiled class methods and the membrane.
type Executor interface {
	Execute(ctx context.Context, realm *sandbox.Realm, meta *ParsedMetadata, deps map[string][]byte) (outputs map[int][]byte, err error)
}

// Pipeline wires the collaborators the replay/load flow describes.
type Pipeline struct {
	Chain      Chain
	Cache      Cache
	Trust      TrustSet
	Bans       BanSet
	Executor   Executor
	ClientMode bool // client mode skips fetch+execute, cache-only
}

// Result is a materialized location: its canonical state bytes plus which
// txid produced it, for Publish/forward-sync bookkeeping at the kernel
// layer.
type Result struct {
	Location string
	TxID     string
	State    []byte
}

// Load materializes location through the six-step replay pipeline.
func (p *Pipeline) Load(ctx context.Context, location string) (*Result, error) {
	if reason, banned := p.Bans.Banned(location); banned {
		loc, perr := bindings.ParseLocation(location)
		if reason != "untrusted code" || perr != nil || !p.Trust.IsTrusted(loc.TxID) {
			return nil, fmt.Errorf("Load: banned location %s: %s", location, reason)
		}
		p.Bans.ClearBan(location)
	}

	cacheKey := "jig://" + location
	if cached, ok, err := p.Cache.Get(ctx, cacheKey); err != nil {
		return nil, err
	} else if ok {
		return &Result{Location: location, State: cached}, nil
	}

	if p.ClientMode {
		return nil, fmt.Errorf("Execution: client mode only permits state-cache loads")
	}

	loc, err := bindings.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if loc.Kind == bindings.LocationPartial {
		return nil, fmt.Errorf("Bad location: cannot load a provisional location %q", location)
	}
	if loc.Kind == bindings.LocationNative {
		return nil, fmt.Errorf("Execution: native code has no loadable state")
	}
	txid := loc.TxID

	raw, err := p.Chain.Fetch(ctx, txid)
	if err != nil {
		p.Bans.Ban(location, err.Error())
		return nil, err
	}
	meta, err := parseMetadataJSON(raw)
	if err != nil {
		p.Bans.Ban(location, "not-a-run-transaction")
		return nil, fmt.Errorf("Load: not-a-run-transaction: %w", err)
	}
	if err := envcheck.CheckHostVersion(meta.Version); err != nil {
		p.Bans.Ban(location, err.Error())
		return nil, err
	}

	if needsTrust(meta) && !p.Trust.IsTrusted(txid) {
		p.Bans.Ban(location, "untrusted code")
		return nil, fmt.Errorf("Load: Cannot load untrusted code")
	} else if wasBannedForTrust, ok := p.Bans.Banned(location); ok && wasBannedForTrust == "untrusted code" && p.Trust.IsTrusted(txid) {
		p.Bans.ClearBan(location)
	}

	deps := map[string][]byte{}
	for _, depTxid := range meta.Deps {
		depLocation := depTxid + "_o0"
		depResult, err := p.Load(ctx, depLocation)
		if err != nil {
			return nil, err
		}
		deps[depTxid] = depResult.State
	}

	realm := sandbox.NewRealm(0)
	outputs, err := p.Executor.Execute(ctx, realm, meta, deps)
	if err != nil {
		p.Bans.Ban(location, err.Error())
		return nil, err
	}

	leaves := make([][]byte, len(meta.Out))
	for idxStr, expectedHex := range meta.Out {
		idx := indexFromKey(idxStr)
		produced, ok := outputs[idx]
		if !ok {
			p.Bans.Ban(location, "State mismatch")
			return nil, fmt.Errorf("Load: State mismatch: output %d not produced", idx)
		}
		got := determinism.CanonicalHash(produced)
		if hexEncode(got[:]) != expectedHex {
			p.Bans.Ban(location, "State mismatch")
			return nil, fmt.Errorf("Load: State mismatch at output %d", idx)
		}
		if idx >= 0 && idx < len(leaves) {
			leaves[idx] = got[:]
		}
	}
	if meta.Root != "" && len(leaves) > 0 {
		root, err := determinism.MerkleRoot(leaves)
		if err != nil {
			p.Bans.Ban(location, "State mismatch")
			return nil, fmt.Errorf("Load: State mismatch: cannot compute script root: %w", err)
		}
		if hexEncode(root[:]) != meta.Root {
			p.Bans.Ban(location, "State mismatch")
			return nil, fmt.Errorf("Load: State mismatch: script root")
		}
	}

	idx := loc.Index
	state, ok := outputs[int(idx)]
	if !ok {
		return nil, fmt.Errorf("Load: State mismatch: requested output %d not produced", idx)
	}
	if err := p.Cache.Set(ctx, cacheKey, state); err != nil {
		return nil, err
	}
	return &Result{Location: location, TxID: txid, State: state}, nil
}

// Sync follows the chain of spending outputs from a known location to the
// tip ("forward-sync").
func (p *Pipeline) Sync(ctx context.Context, location string) (string, error) {
	current := location
	for {
		loc, err := bindings.ParseLocation(current)
		if err != nil {
			return current, err
		}
		if loc.Kind != bindings.LocationDeployed {
			return current, nil
		}
		spender, found, err := p.Chain.Spends(ctx, loc.TxID, int(loc.Index))
		if err != nil {
			return current, err
		}
		if !found {
			return current, nil
		}
		current = spender + "_o0"
	}
}

func needsTrust(meta *ParsedMetadata) bool {
	for _, e := range meta.Exec {
		if e.Op == "DEPLOY" || e.Op == "UPGRADE" {
			return true
		}
	}
	return false
}

func indexFromKey(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
