package asyncio

import (
	"sort"
	"sync"
	"sync/atomic"
)

// BytePool provides reusable byte buffers using size-bucketed sync.Pool,
// reducing GC pressure for per-connection receive buffers allocated at
// high frequency.
type BytePool struct {
	cfg     BytePoolConfig
	buckets []bucket
}

type bucket struct {
	size  int
	limit int64
	inuse int64
	pool  sync.Pool
}

// BytePoolConfig configures bucket sizes and retention.
type BytePoolConfig struct {
	// BucketSizes is the list of capacities for each pool bucket. Must be
	// ascending; NewBytePool sorts them defensively.
	BucketSizes []int
	// MaxPerBucket is an approximate cap for retained buffers per bucket.
	MaxPerBucket int
}

// DefaultBytePool returns a BytePool sized around the hard per-connection
// receive buffer ceiling (8192 bytes), the single bucket every
// connection's receive buffer draws from.
func DefaultBytePool() *BytePool {
	return NewBytePool(BytePoolConfig{BucketSizes: []int{8192}, MaxPerBucket: 4096})
}

// NewBytePool creates a new BytePool with the provided configuration.
func NewBytePool(cfg BytePoolConfig) *BytePool {
	bs := append([]int(nil), cfg.BucketSizes...)
	sort.Ints(bs)
	buckets := make([]bucket, len(bs))
	for i, sz := range bs {
		b := bucket{size: sz, limit: int64(cfg.MaxPerBucket)}
		b.pool = sync.Pool{New: func() any { return make([]byte, sz) }}
		buckets[i] = b
	}
	return &BytePool{cfg: cfg, buckets: buckets}
}

// Get returns a buffer with capacity >= n and length n. If n exceeds the
// largest bucket, a fresh buffer of exactly n is allocated and is not
// pooled on Put.
func (bp *BytePool) Get(n int) []byte {
	if n <= 0 {
		n = 1
	}
	idx := bp.findBucket(n)
	if idx < 0 {
		return make([]byte, n)
	}
	b := &bp.buckets[idx]
	buf := b.pool.Get().([]byte)
	atomic.AddInt64(&b.inuse, 1)
	return buf[:n]
}

// Put returns a buffer to the pool if its capacity matches a known bucket
// and the per-bucket retention limit has not been exceeded.
func (bp *BytePool) Put(buf []byte) {
	capn := cap(buf)
	if capn == 0 {
		return
	}
	idx := bp.findBucket(capn)
	if idx < 0 || bp.buckets[idx].size != capn {
		return
	}
	b := &bp.buckets[idx]
	if cur := atomic.AddInt64(&b.inuse, -1); cur >= b.limit {
		return
	}
	b.pool.Put(buf[:capn])
}

func (bp *BytePool) findBucket(n int) int {
	i := sort.Search(len(bp.buckets), func(i int) bool { return bp.buckets[i].size >= n })
	if i >= len(bp.buckets) {
		return -1
	}
	return i
}
