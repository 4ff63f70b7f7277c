// Package kernel wires sandbox, codec, bindings, membrane/rules,
// record/commit, replay/load, and ownership into the single process-wide
// "Run" instance, fronted by the chain/cache/purse/owner adapters and
// serialized through the task queue.
//
// Grounded in core/ledger.go's Ledger (a single top-level facade wrapping
// storage, consensus hooks, and gas accounting behind one set of public
// methods) and core/virtual_machine.go's dispatch-by-opcode entry point,
// generalized from opcode dispatch to the kernel's
// deploy/new/call/auth/destroy/upgrade/sync/load/import/publish surface.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/runkernel/kernel/internal/bindings"
	"github.com/runkernel/kernel/internal/chain"
	"github.com/runkernel/kernel/internal/codec"
	"github.com/runkernel/kernel/internal/determinism"
	"github.com/runkernel/kernel/internal/envcheck"
	"github.com/runkernel/kernel/internal/membrane"
	"github.com/runkernel/kernel/internal/owner"
	"github.com/runkernel/kernel/internal/ownership"
	"github.com/runkernel/kernel/internal/purse"
	"github.com/runkernel/kernel/internal/queue"
	"github.com/runkernel/kernel/internal/record"
	"github.com/runkernel/kernel/internal/replay"
	"github.com/runkernel/kernel/internal/rules"
	"github.com/runkernel/kernel/internal/sandbox"
)

// ChainAdapter is the subset of internal/chain's Node/Mem surface the
// kernel depends on: everything replay.Chain needs, plus broadcast and
// chain-time.
type ChainAdapter interface {
	replay.Chain
	Broadcast(ctx context.Context, txid string, raw []byte, spends []chain.Spend, outs int) error
	Time(ctx context.Context) (time.Time, error)
}

// CacheAdapter is the subset of internal/cache's Disk surface the kernel
// depends on.
type CacheAdapter interface {
	replay.Cache
}

// jigHandle is everything the kernel tracks about one live jig beyond the
// ownership.Jig lifecycle record itself: its membrane, its compiled class,
// and its field store.
type jigHandle struct {
	jig       *ownership.Jig
	mem       *membrane.Membrane
	class     *sandbox.ClassSource
	ownerLock bindings.Lock // the lock to record in Meta.Cre the first time this jig binds
}

// Kernel is the process-wide facade. One Kernel per node process, the
// single global "Run" instance.
type Kernel struct {
	log   *logrus.Logger
	queue *queue.Queue

	chain ChainAdapter
	store CacheAdapter
	trust *TrustSet
	bans  *BanSet
	purse *purse.Simple
	owner *owner.Wallet

	replay *replay.Pipeline

	mu       sync.Mutex
	byOrigin map[string]*jigHandle
	classes  map[string]*sandbox.ClassSource // origin -> deployed class source
	registry map[string]*sandbox.ClassSource // name -> class source known to this build, for exec replay

	metrics *metrics
}

type metrics struct {
	queueDepth   prometheus.Gauge
	replayLat    prometheus.Histogram
	banSetSize   prometheus.Gauge
	publishTotal prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		queueDepth:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "runkernel_queue_depth", Help: "pending tasks in the serial queue"}),
		replayLat:    prometheus.NewHistogram(prometheus.HistogramOpts{Name: "runkernel_replay_seconds", Help: "replay/load latency"}),
		banSetSize:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "runkernel_ban_set_size", Help: "number of banned locations"}),
		publishTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "runkernel_publish_total", Help: "successful publishes"}),
	}
	if reg != nil {
		reg.MustRegister(m.queueDepth, m.replayLat, m.banSetSize, m.publishTotal)
	}
	return m
}

// Options configures a new Kernel.
type Options struct {
	Log          *logrus.Logger
	Chain        ChainAdapter
	Cache        CacheAdapter
	Wallet       *owner.Wallet
	Purse        *purse.Simple
	QueueBacklog int
	TrustAll     bool
	ClientMode   bool
	Metrics      prometheus.Registerer

	// Classes is the shared, binary-compiled-in class set this build
	// carries by name (the cmd/runkerneld demoClasses pattern): every node
	// running the same build resolves the same names to the same compiled
	// Methods, so a DEPLOY/NEW this node never locally produced can still be
	// replayed from its exec payload's class name alone.
	Classes map[string]func() *sandbox.ClassSource
}

// New wires a Kernel from already-constructed adapters.
func New(opts Options) *Kernel {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	// Keyed by each class's own Name (not the Options.Classes map key), to
	// match the "class" field exec payloads carry (see internal/record's
	// Close): a CALL-site key like "counter" and a class's Name "Counter"
	// are not interchangeable.
	registry := map[string]*sandbox.ClassSource{}
	for _, factory := range opts.Classes {
		src := factory()
		registry[src.Name] = src
	}
	k := &Kernel{
		log:      log,
		queue:    queue.New(opts.QueueBacklog),
		chain:    opts.Chain,
		store:    opts.Cache,
		trust:    NewTrustSet(opts.TrustAll),
		bans:     NewBanSet(),
		purse:    opts.Purse,
		owner:    opts.Wallet,
		byOrigin: map[string]*jigHandle{},
		classes:  map[string]*sandbox.ClassSource{},
		registry: registry,
		metrics:  newMetrics(opts.Metrics),
	}
	k.replay = &replay.Pipeline{
		Chain: k.chain, Cache: k.store, Trust: k.trust, Bans: k.bans,
		Executor: &kernelExecutor{k: k}, ClientMode: opts.ClientMode,
	}
	return k
}

// submit wraps queue.Submit and keeps the queue-depth gauge current, so
// the metric reflects backlog pressure across every entry point rather
// than just the ones that happen to read it.
func (k *Kernel) submit(ctx context.Context, task queue.Task) (interface{}, error) {
	k.metrics.queueDepth.Set(float64(k.queue.Depth() + 1))
	defer k.metrics.queueDepth.Set(float64(k.queue.Depth()))
	return k.queue.Submit(ctx, task)
}

// hooks builds codec.Hooks that resolve $jig references against this
// kernel's live registry.
func (k *Kernel) hooks() codec.Hooks {
	return codec.Hooks{
		EncodeJig: func(v codec.Value) (string, bool, error) {
			jig, ok := v.(*ownership.Jig)
			if !ok {
				return "", false, nil
			}
			b, _ := jig.Snapshot()
			return b.Origin, true, nil
		},
		DecodeJig: func(ref string) (codec.Value, error) {
			k.mu.Lock()
			h, ok := k.byOrigin[ref]
			k.mu.Unlock()
			if !ok {
				return nil, fmt.Errorf("Load: referenced jig %s is not known to this node", ref)
			}
			return h.jig, nil
		},
	}
}

// Deploy installs a new code jig from source, runs its class-level init
// (if any) through a fresh record, and publishes the result (the DEPLOY
// op).
func (k *Kernel) Deploy(ctx context.Context, source *sandbox.ClassSource) (*ownership.Jig, error) {
	v, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return k.deploy(ctx, source)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ownership.Jig), nil
}

func (k *Kernel) deploy(ctx context.Context, source *sandbox.ClassSource) (*ownership.Jig, error) {
	if err := envcheck.CheckHostVersion(envcheck.ProtocolByte); err != nil {
		return nil, err
	}
	jig := ownership.NewUndeployed(rules.KindCodeJig)
	if err := jig.BeginDeploy(); err != nil {
		return nil, err
	}

	ownerLock, err := k.owner.NextOwner()
	if err != nil {
		jig.FailDeploy()
		return nil, err
	}
	r := record.New(newRecordID())
	h := &jigHandle{jig: jig, class: source, ownerLock: ownerLock}
	h.mem = membrane.New(jig, rules.Predefined(rules.KindCodeJig), jig, r, map[string]sandbox.Value{})
	r.MarkCreated(jig)
	r.AddOp(record.Op{Kind: record.OpDeploy, Source: source})

	if err := k.runInit(source, h, r, nil); err != nil {
		jig.FailDeploy()
		return nil, err
	}

	script, err := r.Close("runkernel", envcheck.ProtocolByte)
	if err != nil {
		jig.FailDeploy()
		return nil, err
	}
	txid, err := k.publish(ctx, script, map[*ownership.Jig]*jigHandle{jig: h})
	if err != nil {
		jig.FailDeploy()
		return nil, err
	}
	k.trust.Trust(txid)

	b, _ := jig.Snapshot()
	k.mu.Lock()
	k.byOrigin[b.Origin] = h
	k.classes[b.Origin] = source
	k.registry[source.Name] = source
	k.mu.Unlock()
	k.log.Infof("kernel: deployed %s as %s", source.Name, txid)
	return jig, nil
}

// New instantiates a jig of a previously deployed class (the NEW op).
func (k *Kernel) New(ctx context.Context, classOrigin string, ownerLock bindings.Lock, args []sandbox.Value) (*ownership.Jig, error) {
	v, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return k.newInstance(ctx, classOrigin, ownerLock, args)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ownership.Jig), nil
}

func (k *Kernel) newInstance(ctx context.Context, classOrigin string, ownerLock bindings.Lock, args []sandbox.Value) (*ownership.Jig, error) {
	k.mu.Lock()
	class, ok := k.classes[classOrigin]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("Execution: class %s is not deployed on this node", classOrigin)
	}

	jig := ownership.NewUndeployed(rules.KindJigInstance)
	if err := jig.BeginDeploy(); err != nil {
		return nil, err
	}
	if ownerLock == nil {
		var err error
		ownerLock, err = k.owner.NextOwner()
		if err != nil {
			jig.FailDeploy()
			return nil, err
		}
	}
	r := record.New(newRecordID())
	h := &jigHandle{jig: jig, class: class, ownerLock: ownerLock}
	h.mem = membrane.New(jig, rules.Predefined(rules.KindJigInstance), jig, r, fieldsFromDefaults(class))
	r.MarkCreated(jig)
	r.AddOp(record.Op{Kind: record.OpNew, Target: jig, Source: class, Args: args})

	if err := k.runInit(class, h, r, args); err != nil {
		jig.FailDeploy()
		return nil, err
	}

	script, err := r.Close("runkernel", envcheck.ProtocolByte)
	if err != nil {
		jig.FailDeploy()
		return nil, err
	}
	txid, err := k.publish(ctx, script, map[*ownership.Jig]*jigHandle{jig: h})
	if err != nil {
		jig.FailDeploy()
		return nil, err
	}
	b, _ := jig.Snapshot()
	k.mu.Lock()
	k.byOrigin[b.Origin] = h
	k.mu.Unlock()
	k.log.Infof("kernel: instantiated %s as %s", class.Name, txid)
	return jig, nil
}

func fieldsFromDefaults(class *sandbox.ClassSource) map[string]sandbox.Value {
	fields := map[string]sandbox.Value{}
	for c := class; c != nil; c = c.Parent {
		for k, v := range c.Fields {
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
	}
	return fields
}

func (k *Kernel) runInit(class *sandbox.ClassSource, h *jigHandle, rec *record.Record, args []sandbox.Value) error {
	if class.Init == nil {
		return nil
	}
	this := &methodThis{mem: h.mem}
	_, err := class.Init(this, sandboxDeps, args)
	return err
}

// sandboxDeps is the empty dependency map every method call resolves
// against: this kernel does not wire user-declared `deps` onto ClassSource
// yet (dependencies are resolved per-compile, not per-call; Deploy's source
// already carries Methods/StaticMethods closed over whatever deps they
// need).
var sandboxDeps = sandbox.Dependencies{}

// methodThis adapts a Membrane to sandbox.MethodThis for a method body
// executing as the jig's own receiver (fromOutside=false throughout).
type methodThis struct{ mem *membrane.Membrane }

func (t *methodThis) Get(name string) (sandbox.Value, bool) {
	v, err := t.mem.Get(name, false)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func (t *methodThis) Set(name string, v sandbox.Value) error {
	return t.mem.Set(name, v, false)
}

// Call dispatches a method on a live jig (the CALL op).
func (k *Kernel) Call(ctx context.Context, origin, method string, args []sandbox.Value) error {
	_, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, k.call(ctx, origin, method, args)
	})
	return err
}

func (k *Kernel) call(ctx context.Context, origin, method string, args []sandbox.Value) error {
	k.mu.Lock()
	h, ok := k.byOrigin[origin]
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("Execution: jig %s is not known to this node", origin)
	}
	if err := h.jig.RequireLive(); err != nil {
		return err
	}

	r := record.New(newRecordID())
	h.mem.Recorder = r
	r.RecordRead(h.jig)
	if err := h.mem.Call(method, args, false); err != nil {
		return err
	}

	fn, ok := h.class.Methods[method]
	if !ok {
		return fmt.Errorf("Execution: %s has no method %s", h.class.Name, method)
	}
	this := &methodThis{mem: h.mem}
	if _, err := fn(this, sandboxDeps, args); err != nil {
		r.Poison()
		return err
	}
	r.AddOp(record.Op{Kind: record.OpCall, Target: h.jig, Method: method, Args: args})

	if err := r.CheckConsistency(); err != nil {
		return err
	}
	script, err := r.Close("runkernel", envcheck.ProtocolByte)
	if err != nil {
		return err
	}
	_, err = k.publish(ctx, script, map[*ownership.Jig]*jigHandle{h.jig: h})
	return err
}

// Auth requires that origin's jig is live and bound, then commits a
// transaction that spends it and recreates it unchanged (the AUTH op: an
// input+output recording with no field mutation, re-locking the output).
func (k *Kernel) Auth(ctx context.Context, origin string) error {
	_, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, k.auth(ctx, origin)
	})
	return err
}

func (k *Kernel) auth(ctx context.Context, origin string) error {
	k.mu.Lock()
	h, ok := k.byOrigin[origin]
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("Execution: jig %s is not known to this node", origin)
	}
	if err := h.jig.RequireLive(); err != nil {
		return err
	}

	r := record.New(newRecordID())
	r.RecordUpdate(h.jig)
	r.AddOp(record.Op{Kind: record.OpAuth, Target: h.jig})

	script, err := r.Close("runkernel", envcheck.ProtocolByte)
	if err != nil {
		return err
	}
	_, err = k.publish(ctx, script, map[*ownership.Jig]*jigHandle{h.jig: h})
	return err
}

// Destroy transitions a live jig to destroyed and publishes the deletion
// (the DESTROY op).
func (k *Kernel) Destroy(ctx context.Context, origin string) error {
	_, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, k.destroy(ctx, origin)
	})
	return err
}

func (k *Kernel) destroy(ctx context.Context, origin string) error {
	k.mu.Lock()
	h, ok := k.byOrigin[origin]
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("Execution: jig %s is not known to this node", origin)
	}
	if err := h.jig.RequireLive(); err != nil {
		return err
	}
	r := record.New(newRecordID())
	r.MarkDestroyed(h.jig)
	r.AddOp(record.Op{Kind: record.OpDestroy, Target: h.jig})

	curBindings, _ := h.jig.Snapshot()
	loc, err := bindings.ParseLocation(curBindings.Location)
	if err != nil {
		return err
	}
	loc.IsDelete = true
	delLocation, err := loc.Compile()
	if err != nil {
		return err
	}
	if err := h.jig.Destroy(delLocation); err != nil {
		return err
	}

	script, err := r.Close("runkernel", envcheck.ProtocolByte)
	if err != nil {
		return err
	}
	_, err = k.publish(ctx, script, map[*ownership.Jig]*jigHandle{h.jig: h})
	return err
}

// Upgrade swaps a code jig's class source while keeping its identity
// bindings: dynamic class replacement via a stable handle.
func (k *Kernel) Upgrade(ctx context.Context, origin string, newSource *sandbox.ClassSource) error {
	_, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		k.mu.Lock()
		h, ok := k.byOrigin[origin]
		k.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("Execution: jig %s is not known to this node", origin)
		}
		if err := h.jig.RequireLive(); err != nil {
			return nil, err
		}
		r := record.New(newRecordID())
		r.RecordUpdate(h.jig)
		r.AddOp(record.Op{Kind: record.OpUpgrade, Target: h.jig, Source: newSource})
		h.class = newSource
		k.mu.Lock()
		k.classes[origin] = newSource
		k.registry[newSource.Name] = newSource
		k.mu.Unlock()
		script, err := r.Close("runkernel", envcheck.ProtocolByte)
		if err != nil {
			return nil, err
		}
		txid, err := k.publish(ctx, script, map[*ownership.Jig]*jigHandle{h.jig: h})
		if err == nil {
			k.trust.Trust(txid)
		}
		return nil, err
	})
	return err
}

// Sync advances a location to the current spend tip (forward sync).
func (k *Kernel) Sync(ctx context.Context, location string) (string, error) {
	v, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return k.replay.Sync(ctx, location)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Load materializes a location's state, consulting the cache first.
func (k *Kernel) Load(ctx context.Context, location string) (*replay.Result, error) {
	start := time.Now()
	v, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return k.replay.Load(ctx, location)
	})
	k.metrics.replayLat.Observe(time.Since(start).Seconds())
	k.metrics.banSetSize.Set(float64(k.bans.Size()))
	if err != nil {
		return nil, err
	}
	return v.(*replay.Result), nil
}

// Import trusts a transaction's txid without publishing anything new
// locally, so a later Load of one of its outputs does not need a fresh
// network fetch. This is the import surface for pre-vetted transactions.
func (k *Kernel) Import(ctx context.Context, txid string, raw []byte) error {
	_, err := k.submit(ctx, func(ctx context.Context) (interface{}, error) {
		k.trust.Trust(txid)
		return nil, k.chain.Broadcast(ctx, txid, raw, nil, 0)
	})
	return err
}

// publish finalizes a closed record's script: hashes each output/delete's
// canonical state, commits every touched jig's new bindings, passes the
// metadata to the purse's Pay when a purse is configured (the returned
// funding plan is not applied), and broadcasts it. Nothing is signed here.
func (k *Kernel) publish(ctx context.Context, script *record.Script, handles map[*ownership.Jig]*jigHandle) (string, error) {
	txid := newTxID()
	nonce := uint64(1)

	for i, jig := range script.Outputs {
		h := handles[jig]
		state, err := codec.Encode(fieldSnapshot(h.mem), k.hooks())
		if err != nil {
			return "", fmt.Errorf("Execution: encode output %d: %w", i, err)
		}
		script.Meta.Out[i] = determinism.CanonicalHash(state)

		b, st := jig.Snapshot()
		newB := b
		newB.Origin = originOrSelf(b, txid, i)
		newB.Location = fmt.Sprintf("%s_o%d", txid, i)
		newB.Nonce = b.Nonce + nonce
		if newB.Owner == nil {
			newB.Owner = h.ownerLock
		}
		if st == ownership.StateDeploying {
			if err := jig.CommitDeploy(newB); err != nil {
				return "", err
			}
			if h.ownerLock != nil {
				script.Meta.Cre[i] = h.ownerLock
			}
		} else if err := jig.Rebind(newB); err != nil {
			return "", err
		}
	}
	for i, jig := range script.Deletes {
		state, err := codec.Encode(map[string]sandbox.Value{"destroyed": true}, k.hooks())
		if err != nil {
			return "", err
		}
		script.Meta.Del[i] = determinism.CanonicalHash(state)
		_ = jig
	}

	if n := len(script.Outputs); n > 0 {
		leaves := make([][]byte, n)
		for i := 0; i < n; i++ {
			h := script.Meta.Out[i]
			leaves[i] = h[:]
		}
		root, err := determinism.MerkleRoot(leaves)
		if err != nil {
			return "", fmt.Errorf("Execution: compute script merkle root: %w", err)
		}
		script.Meta.Root = root
	}

	var deps []string
	for _, ref := range script.Refs {
		b, _ := ref.Snapshot()
		if loc, err := bindings.ParseLocation(b.Location); err == nil {
			deps = appendUnique(deps, loc.TxID)
		}
	}

	raw, err := encodeMetadataJSON(&script.Meta, deps, k.hooks())
	if err != nil {
		return "", err
	}

	if k.purse != nil {
		if _, err := k.purse.Pay(ctx, raw, nil); err != nil {
			return "", err
		}
	}
	if err := k.chain.Broadcast(ctx, txid, raw, nil, len(script.Outputs)+len(script.Deletes)); err != nil {
		return "", err
	}

	for i, jig := range script.Outputs {
		h := handles[jig]
		state, err := codec.Encode(fieldSnapshot(h.mem), k.hooks())
		if err != nil {
			return "", err
		}
		if err := k.store.Set(ctx, fmt.Sprintf("jig://%s_o%d", txid, i), state); err != nil {
			return "", err
		}
	}
	k.metrics.publishTotal.Inc()
	return txid, nil
}

func originOrSelf(b bindings.Bindings, txid string, i int) string {
	if b.Origin != "" {
		return b.Origin
	}
	return fmt.Sprintf("%s_o%d", txid, i)
}

var idCounter struct {
	mu  sync.Mutex
	n   uint64
}

func newRecordID() string {
	idCounter.mu.Lock()
	defer idCounter.mu.Unlock()
	idCounter.n++
	return fmt.Sprintf("rec%d", idCounter.n)
}

func newTxID() string {
	idCounter.mu.Lock()
	defer idCounter.mu.Unlock()
	idCounter.n++
	return fmt.Sprintf("%064x", idCounter.n)
}

// fieldSnapshot reads every own key off a membrane's field store, the way
// Publish needs to encode a jig's full state: the state recorded for an
// output is everything the membrane exposes as the jig's own properties.
func fieldSnapshot(m *membrane.Membrane) codec.Value {
	fields := map[string]sandbox.Value{}
	for _, name := range m.OwnKeys(false) {
		if v, err := m.Get(name, false); err == nil {
			fields[name] = v
		}
	}
	return fields
}

// appendUnique appends txid to deps unless it is already present.
func appendUnique(deps []string, txid string) []string {
	for _, d := range deps {
		if d == txid {
			return deps
		}
	}
	return append(deps, txid)
}

// encodeMetadataJSON renders a closed record's metadata as the flat JSON
// object internal/replay's Pipeline.Load expects back from Chain.Fetch
// (see internal/replay's ParsedMetadata doc comment for the documented
// wire-format simplification this mirrors). Top-level fields are declared
// in sorted key order and encoding/json sorts map keys, so every object in
// the output has sorted keys.
func encodeMetadataJSON(meta *record.Metadata, deps []string, hooks codec.Hooks) ([]byte, error) {
	out := map[string]string{}
	for i, h := range meta.Out {
		out[fmt.Sprintf("%d", i)] = fmt.Sprintf("%x", h)
	}
	del := map[string]string{}
	for i, h := range meta.Del {
		del[fmt.Sprintf("%d", i)] = fmt.Sprintf("%x", h)
	}
	cre := map[string]string{}
	for i, lock := range meta.Cre {
		cre[fmt.Sprintf("%d", i)] = fmt.Sprintf("%x", lock.Script())
	}
	exec := make([]replayExecEntry, 0, len(meta.Exec))
	for _, e := range meta.Exec {
		data, err := codec.Encode(&codec.PlainObject{Fields: e.Data}, hooks)
		if err != nil {
			return nil, fmt.Errorf("Execution: encode exec payload for %s: %w", e.Op, err)
		}
		exec = append(exec, replayExecEntry{Op: e.Op, Data: data})
	}
	wire := struct {
		App     string            `json:"app"`
		Cre     map[string]string `json:"cre"`
		Del     map[string]string `json:"del"`
		Deps    []string          `json:"deps"`
		Exec    []replayExecEntry `json:"exec"`
		In      int               `json:"in"`
		Out     map[string]string `json:"out"`
		Ref     []string          `json:"ref"`
		Root    string            `json:"root"`
		Version int               `json:"version"`
	}{
		Version: meta.Version,
		App:     meta.App,
		In:      meta.In,
		Ref:     meta.Ref,
		Out:     out,
		Del:     del,
		Cre:     cre,
		Exec:    exec,
		Deps:    deps,
		Root:    fmt.Sprintf("%x", meta.Root),
	}
	return json.Marshal(wire)
}

type replayExecEntry struct {
	Op   string `json:"op"`
	Data []byte `json:"data"`
}
