package storage

import (
	"context"
	"sync"

	"github.com/newthinker/paperdesk/internal/core"
	"go.uber.org/zap"
)

// Persister encodes snapshots with a Codec and writes them to a Store.
// Writes to the same key are serialized, and a versioned snapshot never
// overwrites a newer one.
type Persister struct {
	store  Store
	codec  Codec
	logger *zap.Logger

	mu      sync.Mutex
	keyLock map[string]*sync.Mutex
	written map[string]uint64
}

// NewPersister creates a persister over store.
func NewPersister(store Store, codec Codec, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codec == nil {
		codec = JSON{}
	}
	return &Persister{
		store:   store,
		codec:   codec,
		logger:  logger,
		keyLock: make(map[string]*sync.Mutex),
		written: make(map[string]uint64),
	}
}

// Store returns the underlying backend.
func (p *Persister) Store() Store {
	return p.store
}

// Codec returns the configured codec.
func (p *Persister) Codec() Codec {
	return p.codec
}

// Load decodes the value stored under key into v.
func (p *Persister) Load(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := p.store.Load(ctx, key)
	if err != nil {
		return false, core.WrapError(core.ErrStorageFailed, err)
	}
	if !ok {
		return false, nil
	}
	if err := p.codec.Unmarshal(data, v); err != nil {
		return false, core.Errorf(core.ErrStorageFailed, "decoding %s: %w", key, err)
	}
	return true, nil
}

// Save takes a snapshot and writes it under key. snapshot runs while the key
// is locked, so a later call always writes later state. A non-zero revision
// at or below the last written one is skipped.
func (p *Persister) Save(ctx context.Context, key string, snapshot func() (v any, revision uint64)) error {
	lock := p.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	v, rev := snapshot()

	p.mu.Lock()
	last, seen := p.written[key]
	p.mu.Unlock()
	if rev != 0 && seen && rev <= last {
		p.logger.Debug("skipping stale snapshot",
			zap.String("key", key),
			zap.Uint64("revision", rev),
			zap.Uint64("written", last),
		)
		return nil
	}

	data, err := p.codec.Marshal(v)
	if err != nil {
		return core.Errorf(core.ErrStorageFailed, "encoding %s: %w", key, err)
	}
	if err := p.store.Save(ctx, key, data); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}

	p.mu.Lock()
	p.written[key] = rev
	p.mu.Unlock()
	return nil
}

// Close closes the underlying store.
func (p *Persister) Close() error {
	return p.store.Close()
}

func (p *Persister) lockFor(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.keyLock[key]
	if !ok {
		l = &sync.Mutex{}
		p.keyLock[key] = l
	}
	return l
}
