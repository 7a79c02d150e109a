// Package spool implements the index writer's shared pool of fixed
// 32-byte blocks: a `sync.Pool`-backed allocator with exhaustion/reuse
// accounting in Stats rather than a hand-rolled free list.
package spool

import "sync"

// BlockSize is the fixed capacity of one spool block.
const BlockSize = 32

// Stats tracks block allocation/reuse counts for one Pool.
type Stats struct {
	Allocations int64
	Reuses      int64
}

// Pool is a sync.Pool-backed source of []byte blocks of BlockSize
// capacity. The Index Writer calls Get to grow a term's posting buffer
// and Put to return a drained buffer once its bytes have been copied out
// to a memory-load temp file.
type Pool struct {
	mu    sync.Mutex
	stats Stats
	pool  sync.Pool
}

// New returns a ready-to-use block Pool.
func New() *Pool {
	p := &Pool{}
	p.pool.New = func() any {
		return make([]byte, 0, BlockSize)
	}
	return p
}

// Get returns a zero-length block with BlockSize capacity.
func (p *Pool) Get() []byte {
	p.mu.Lock()
	p.stats.Allocations++
	p.mu.Unlock()
	b := p.pool.Get().([]byte)
	return b[:0]
}

// Put returns a drained block for reuse. Blocks whose capacity no longer
// matches BlockSize (the caller reallocated past it) are simply dropped.
func (p *Pool) Put(b []byte) {
	if cap(b) != BlockSize {
		return
	}
	p.mu.Lock()
	p.stats.Reuses++
	p.mu.Unlock()
	p.pool.Put(b[:0]) //nolint:staticcheck // intentional: reset length, keep capacity
}

// GetStats returns a snapshot of allocation/reuse counters.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
