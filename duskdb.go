// Package duskdb implements an embedded, crash-consistent key/value
// storage engine: an append-only segmented log on disk, served from
// an in-memory index, with on-line compaction and change
// subscriptions. Grounded throughout on core/bitcask.go's Bitcask
// type (Start/Stop, the dataMu/keyDirMu split, handleCommandSET/GET/
// Delete's sequencing of append-then-index-update), generalized from
// a TCP-fronted key/value server into a plain Go library: the network
// listener, command protocol and CLI are out of scope (spec §1), so
// what remains is exactly the part the teacher calls its core —
// renamed here from Bitcask to Engine.
package duskdb

import (
	"bytes"
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/duskdb/duskdb/internal/compactor"
	"github.com/duskdb/duskdb/internal/glob"
	"github.com/duskdb/duskdb/internal/index"
	"github.com/duskdb/duskdb/internal/lock"
	"github.com/duskdb/duskdb/internal/record"
	"github.com/duskdb/duskdb/internal/recovery"
	"github.com/duskdb/duskdb/internal/segment"
	"github.com/duskdb/duskdb/internal/subs"
)

// KeyUpdate is delivered to subscribers for every successful Set or
// Remove whose key matches their pattern. Value is nil for a Remove.
type KeyUpdate struct {
	Key   string
	Value []byte
}

// Engine is a single open data directory. It is safe for concurrent
// use by multiple goroutines: reads take the index's shared guard,
// writes serialize on the active-segment cursor (internal/segment's
// own mutex) plus the index's exclusive guard, and sealed segments
// require no locking at all.
type Engine struct {
	cfg Config

	dir      string
	lockFile *os.File

	log *segment.Log
	idx *index.Index
	hub *subs.Hub

	writeMu sync.Mutex // serializes Set/Remove at the façade level, mirroring core/bitcask.go's dataMu discipline

	compactSignal chan struct{}
	compactDone   chan struct{}
	compactWG     sync.WaitGroup
	compactMu     sync.Mutex // serializes compaction passes from compactLoop and CompactNow
}

// Open opens or creates the data directory at path, replaying any
// existing segments to rebuild the index (§4.7) before accepting
// operations.
func Open(path string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, errors.Wrap(ErrIo, err.Error())
		}
	case err != nil:
		return nil, errors.Wrap(ErrIo, err.Error())
	case !info.IsDir():
		// Supplemented from original_source: a path that exists but is
		// a regular file can never host a segment directory.
		return nil, errors.Wrapf(ErrIo, "%s is not a directory", path)
	}

	lf, err := lock.LockDirectory(path)
	if err != nil {
		log.Printf("duskdb: %s is already locked by another instance", path)
		return nil, errors.Wrap(ErrLocked, err.Error())
	}

	idx, activeID, err := recovery.Replay(path, cfg.SegmentRollBytes)
	if err != nil {
		lock.UnlockDirectory(lf)
		if _, ok := err.(*recovery.Corruption); ok {
			log.Printf("duskdb: refusing to open %s: %v", path, err)
			return nil, errors.Wrap(ErrCorruption, err.Error())
		}
		return nil, errors.Wrap(ErrIo, err.Error())
	}
	log.Printf("duskdb: replayed %d keys from %s, active segment %06d", idx.Len(), path, activeID)

	l, err := segment.Open(path, activeID, cfg.SegmentRollBytes, cfg.SyncOnWrite)
	if err != nil {
		lock.UnlockDirectory(lf)
		return nil, errors.Wrap(ErrIo, err.Error())
	}

	e := &Engine{
		cfg:           cfg,
		dir:           path,
		lockFile:      lf,
		log:           l,
		idx:           idx,
		hub:           subs.New(cfg.SubscriptionChannelCapacity),
		compactSignal: make(chan struct{}, 1),
		compactDone:   make(chan struct{}),
	}

	e.compactWG.Add(1)
	go e.compactLoop()

	return e, nil
}

// Set stores value for key, overwriting any existing value.
func (e *Engine) Set(key, value []byte) error {
	if len(key) == 0 || len(key) > MaxKeySize || len(value) > MaxValueSize {
		return ErrTooLarge
	}

	encoded, err := record.Encode(record.NewSet(key, value))
	if err != nil {
		return errors.Wrap(ErrIo, err.Error())
	}

	e.writeMu.Lock()
	loc, err := e.log.Append(encoded)
	e.writeMu.Unlock()
	if err != nil {
		return errors.Wrap(ErrIo, err.Error())
	}

	e.idx.InsertOverwrite(string(key), loc)
	e.hub.Publish(subs.Event{Kind: subs.EventSet, Key: string(key), Value: value})
	e.maybeSignalCompaction()

	return nil
}

// Get returns the current value for key, or (nil, false) if absent.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	loc, ok := e.idx.Get(string(key))
	if !ok {
		return nil, false, nil
	}

	raw, err := e.log.ReadAt(loc.SegmentID, loc.Offset, loc.Length)
	if err != nil {
		return nil, false, errors.Wrap(ErrIo, err.Error())
	}

	rec, _, err := record.DecodeAt(bytes.NewReader(raw))
	if err != nil {
		return nil, false, errors.Wrap(ErrCorruption, err.Error())
	}
	if rec.Kind != record.KindSet || string(rec.Key) != string(key) {
		return nil, false, errors.Wrapf(ErrCorruption, "record at %+v is not a matching Set", loc)
	}

	return rec.Value, true, nil
}

// Remove deletes key. It fails with ErrKeyNotFound, without writing
// anything, if key is already absent (spec's resolution of Open
// Question (c): no tombstone for a no-op remove).
func (e *Engine) Remove(key []byte) error {
	if _, ok := e.idx.Get(string(key)); !ok {
		return ErrKeyNotFound
	}

	encoded, err := record.Encode(record.NewRemove(key))
	if err != nil {
		return errors.Wrap(ErrIo, err.Error())
	}

	e.writeMu.Lock()
	tombLoc, err := e.log.Append(encoded)
	e.writeMu.Unlock()
	if err != nil {
		return errors.Wrap(ErrIo, err.Error())
	}

	if _, ok := e.idx.Delete(string(key), tombLoc); !ok {
		// Raced with a concurrent Remove between our existence check
		// and the write-guard: the tombstone we just wrote is already
		// accounted as uncompacted waste by Delete's own bookkeeping
		// regardless of hadPrev, so there is nothing further to do.
		return ErrKeyNotFound
	}

	e.hub.Publish(subs.Event{Kind: subs.EventRemove, Key: string(key)})
	e.maybeSignalCompaction()

	return nil
}

// Find returns every live key matching pattern.
func (e *Engine) Find(pattern []byte) ([]string, error) {
	p, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(ErrBadPattern, err.Error())
	}
	return e.idx.Find(p), nil
}

// Subscription is a registered interest in a glob pattern; Events
// delivers a KeyUpdate for every matching Set or Remove until
// Unsubscribe is called or the engine closes.
type Subscription struct {
	inner  *subs.Subscription
	events chan KeyUpdate
}

// Events returns the channel KeyUpdates are delivered on. It closes
// when the subscription ends.
func (s *Subscription) Events() <-chan KeyUpdate { return s.events }

// Lagged returns how many updates were dropped because this
// subscriber's channel was full.
func (s *Subscription) Lagged() uint64 { return s.inner.Lagged() }

// Unsubscribe ends the subscription.
func (s *Subscription) Unsubscribe() { s.inner.Unsubscribe() }

// Subscribe registers a new subscription for pattern and returns its
// handle; the caller reads matching KeyUpdates off Subscription.Events.
func (e *Engine) Subscribe(pattern []byte) (*Subscription, error) {
	p, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(ErrBadPattern, err.Error())
	}

	inner := e.hub.Subscribe(p)
	out := &Subscription{inner: inner, events: make(chan KeyUpdate, cap(inner.Events()))}

	go func() {
		defer close(out.events)
		for evt := range inner.Events() {
			ku := KeyUpdate{Key: evt.Key}
			if evt.Kind == subs.EventSet {
				ku.Value = evt.Value
			}
			out.events <- ku
		}
	}()

	return out, nil
}

// CompactNow requests an immediate compaction pass, bypassing the
// uncompacted-byte threshold. It returns once the pass (or a no-op
// decision that nothing needs compacting) has completed.
func (e *Engine) CompactNow() error {
	return e.runCompaction()
}

func (e *Engine) maybeSignalCompaction() {
	if e.idx.UncompactedTotal() < e.cfg.CompactionThresholdBytes {
		return
	}
	select {
	case e.compactSignal <- struct{}{}:
	default:
	}
}

func (e *Engine) compactLoop() {
	defer e.compactWG.Done()
	for {
		select {
		case <-e.compactSignal:
			_ = e.runCompaction()
		case <-e.compactDone:
			return
		}
	}
}

func (e *Engine) runCompaction() error {
	e.compactMu.Lock()
	defer e.compactMu.Unlock()

	relocated, err := compactor.Run(e.log, e.idx, func() ([]uint32, error) {
		return segment.ListIDs(e.dir)
	})
	if err != nil {
		log.Printf("duskdb: compaction pass on %s failed: %v", e.dir, err)
		return err
	}
	if relocated > 0 {
		log.Printf("duskdb: compaction pass on %s relocated %d keys", e.dir, relocated)
	}
	return nil
}

// Close waits for any in-flight compaction pass to quiesce, then
// closes the active segment and releases the directory lock.
// Supplemented from original_source: the Rust engine's Drop impl
// joins its compaction task before releasing file handles so that a
// dropped handle never races a compactor still mid-rewrite.
func (e *Engine) Close() error {
	close(e.compactDone)
	e.compactWG.Wait()
	e.compactMu.Lock()
	defer e.compactMu.Unlock()

	e.hub.CloseAll()

	if err := e.log.Close(); err != nil {
		lock.UnlockDirectory(e.lockFile)
		return errors.Wrap(ErrIo, err.Error())
	}

	lock.UnlockDirectory(e.lockFile)
	log.Printf("duskdb: closed %s", e.dir)
	return nil
}
