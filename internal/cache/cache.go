// Package cache implements a content-addressed key/value store for
// jig/berry state (`jig://...`), transaction metadata (`tx://...`) and ban
// records (`ban://...`), content-addressed so equal values dedupe to one
// on-disk blob.
//
// Grounded in core/storage.go's diskLRU (an insertion-ordered, size-bounded
// on-disk cache keyed by CID, evicting the oldest entry once full),
// generalized from pinning raw blobs on an IPFS gateway to storing the
// kernel's own namespaced keys: this package computes a CIDv1 digest of the
// value with github.com/ipfs/go-cid and github.com/multiformats/go-multihash
// the same way storage.go's Pin does, and keeps a separate key->cid index
// so callers address entries by their own key rather than by content hash.
// Every distinct blob is also stamped with a github.com/google/uuid entry
// id at write time (independent of its content hash), and the blob itself
// is RLP-framed on disk via github.com/ethereum/go-ethereum/rlp, the same
// `$ui8a` canonical byte-array framing the codec hands off to storage.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"go.uber.org/zap"
)

const defaultMaxEntries = 10_000

type entry struct {
	id   string // uuid stamped at first write, independent of the content hash
	path string
	size int64
	at   time.Time
}

// Disk is an on-disk, size-bounded cache that evicts the oldest-inserted
// blob once full. Safe for concurrent use.
type Disk struct {
	mu     sync.Mutex
	dir    string
	max    int
	log    *zap.SugaredLogger
	byKey  map[string]string // key -> cid
	byCid  map[string]*entry
	order  []string // cids in insertion order, oldest first
}

// New opens (creating if absent) an on-disk cache rooted at dir.
func New(dir string, maxEntries int, log *zap.SugaredLogger) (*Disk, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Disk{dir: dir, max: maxEntries, log: log, byKey: map[string]string{}, byCid: map[string]*entry{}}, nil
}

// Get returns the value stored under key, if any (replay.Cache).
func (d *Disk) Get(ctx context.Context, key string) ([]byte, bool, error) {
	d.mu.Lock()
	cidStr, ok := d.byKey[key]
	if !ok {
		d.mu.Unlock()
		return nil, false, nil
	}
	ent, ok := d.byCid[cidStr]
	if !ok {
		d.mu.Unlock()
		return nil, false, nil
	}
	ent.at = time.Now()
	path := ent.path
	d.mu.Unlock()

	framed, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	var value []byte
	if err := rlp.DecodeBytes(framed, &value); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return value, true, nil
}

// Stat reports the entry id and size stored under key, for callers that
// want to audit cache contents independent of the content hash.
func (d *Disk) Stat(ctx context.Context, key string) (id string, size int64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cidStr, ok := d.byKey[key]
	if !ok {
		return "", 0, false
	}
	ent, ok := d.byCid[cidStr]
	if !ok {
		return "", 0, false
	}
	return ent.id, ent.size, true
}

// Set stores value under key, evicting the oldest entry if the cache is at
// capacity and this is a genuinely new blob, mirroring core/storage.go's
// disk-backed implementation so the kernel doesn't grow an unbounded state
// directory.
func (d *Disk) Set(ctx context.Context, key string, value []byte) error {
	sum, err := mh.Sum(value, mh.SHA2_256, -1)
	if err != nil {
		return fmt.Errorf("cache: hash: %w", err)
	}
	c := cid.NewCidV1(cid.Raw, sum)
	cidStr := c.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byCid[cidStr]; !ok {
		if len(d.byCid) >= d.max && len(d.order) > 0 {
			oldest := d.order[0]
			d.order = d.order[1:]
			if oldEnt, ok := d.byCid[oldest]; ok {
				_ = os.Remove(oldEnt.path)
				delete(d.byCid, oldest)
			}
		}
		framed, err := rlp.EncodeToBytes(value)
		if err != nil {
			return fmt.Errorf("cache: frame: %w", err)
		}
		path := filepath.Join(d.dir, cidStr)
		if err := os.WriteFile(path, framed, 0o644); err != nil {
			return fmt.Errorf("cache: write: %w", err)
		}
		d.byCid[cidStr] = &entry{id: uuid.NewString(), path: path, size: int64(len(value)), at: time.Now()}
		d.order = append(d.order, cidStr)
	}
	d.byKey[key] = cidStr
	d.log.Debugw("cache set", "key", key, "cid", cidStr, "bytes", len(value))
	return nil
}

// Delete removes key's index entry (the underlying blob is kept if another
// key still references it, and is reclaimed only by oldest-first eviction).
func (d *Disk) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byKey, key)
	return nil
}
