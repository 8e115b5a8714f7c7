// Package bufpool is a process-wide pool of byte slices bucketed by size,
// used to avoid allocating scratch buffers on every message read/write.
package bufpool

import "sync"

// minBucket is the smallest size class. Requests smaller than this still
// get a minBucket-sized buffer; callers slice it down themselves.
const minBucket = 512

var pools sync.Map // map[int]*sync.Pool, keyed by bucket size

// bucketFor returns the smallest power-of-two bucket (>= minBucket) that can
// hold n bytes.
func bucketFor(n int) int {
	size := minBucket
	for size < n {
		size *= 2
	}
	return size
}

func poolFor(bucket int) *sync.Pool {
	if p, ok := pools.Load(bucket); ok {
		return p.(*sync.Pool)
	}
	p := &sync.Pool{
		New: func() any {
			b := make([]byte, bucket)
			return &b
		},
	}
	actual, _ := pools.LoadOrStore(bucket, p)
	return actual.(*sync.Pool)
}

// Get rents a buffer with length n and capacity >= n. The returned slice's
// contents are not zeroed.
func Get(n int) []byte {
	bucket := bucketFor(n)
	p := poolFor(bucket)
	bufp := p.Get().(*[]byte)
	buf := *bufp
	if cap(buf) < n {
		// Pool Get raced with a resize of the bucket size class; fall back.
		return make([]byte, n)
	}
	return buf[:n]
}

// Put returns a buffer previously obtained from Get. Buffers not obtained
// from Get (e.g. grown in place) are silently ignored — failing to return a
// buffer is a leak, never a correctness bug.
func Put(buf []byte) {
	bucket := bucketFor(cap(buf))
	if bucket != cap(buf) {
		// Not a bucket-sized allocation (e.g. grown via append); don't pool it.
		return
	}
	p := poolFor(bucket)
	full := buf[:cap(buf)]
	p.Put(&full)
}
