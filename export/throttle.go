package export

import (
	"context"
	"sync"
	"time"

	"github.com/grokify/omnivolume/volume"
)

// throttleChunk is the largest read a paced stream issues at once.
const throttleChunk = 64 * 1024

// bucket is a token bucket shared by all reads of one export, holding at
// most one second worth of bytes.
type bucket struct {
	mu     sync.Mutex
	rate   int64
	tokens int64
	last   time.Time
}

// newBucket returns nil for a non-positive rate, which disables throttling.
func newBucket(bytesPerSecond int64) *bucket {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &bucket{rate: bytesPerSecond, tokens: bytesPerSecond, last: time.Now()}
}

// refill must be called with mu held.
func (b *bucket) refill() {
	now := time.Now()
	b.tokens = min(b.tokens+int64(now.Sub(b.last).Seconds()*float64(b.rate)), b.rate)
	b.last = now
}

// take blocks until n tokens are available and consumes them. n must not
// exceed the rate.
func (b *bucket) take(n int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	for b.tokens < int64(n) {
		wait := time.Duration(int64(n)-b.tokens) * time.Second / time.Duration(b.rate)
		b.mu.Unlock()
		time.Sleep(wait)
		b.mu.Lock()
		b.refill()
	}
	b.tokens -= int64(n)
}

// giveBack returns tokens of a short read.
func (b *bucket) giveBack(n int) {
	if b == nil || n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = min(b.tokens+int64(n), b.rate)
}

// pacedStream is a data stream whose reads stop once ctx is done and are
// charged against a bucket. Seek, Size and Write go to the stream itself.
type pacedStream struct {
	*volume.DataStream
	ctx context.Context
	b   *bucket
}

func pace(ctx context.Context, ds *volume.DataStream, b *bucket) *pacedStream {
	return &pacedStream{DataStream: ds, ctx: ctx, b: b}
}

func (p *pacedStream) Read(buf []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	if p.b == nil {
		return p.DataStream.Read(buf)
	}
	if limit := int(min(throttleChunk, p.b.rate)); len(buf) > limit {
		buf = buf[:limit]
	}
	p.b.take(len(buf))
	n, err := p.DataStream.Read(buf)
	p.b.giveBack(len(buf) - n)
	return n, err
}
