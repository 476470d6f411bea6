package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/groundstation/internal/monitoring"
)

// defaultQueueDepth bounds chunks buffered between a push callback and Read.
const defaultQueueDepth = 256

// chunkQueue turns callback delivery into a blocking read. Chunks pushed
// before a remote end are still delivered; chunks pending at a local close
// are discarded.
type chunkQueue struct {
	ch   chan string
	done <-chan struct{}

	endOnce sync.Once
	ended   chan struct{}
	endErr  error

	dropped atomic.Uint64
}

func newChunkQueue(depth int, done <-chan struct{}) *chunkQueue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &chunkQueue{
		ch:    make(chan string, depth),
		done:  done,
		ended: make(chan struct{}),
	}
}

// offer enqueues without blocking. It is used from callbacks owned by a
// driver that must not be stalled; a full queue drops the chunk and the first
// drop is logged.
func (q *chunkQueue) offer(chunk string) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- chunk:
		return true
	default:
		// a lost chunk can splice two records together in the framer
		if q.dropped.Add(1) == 1 {
			monitoring.Logf("transport: chunk queue full (depth %d), dropping notifications", cap(q.ch))
		}
		return false
	}
}

// put enqueues, blocking until there is room or the session is closed.
func (q *chunkQueue) put(chunk string) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- chunk:
		return true
	case <-q.done:
		return false
	}
}

// end marks the remote end of stream. Only the first reason is kept.
func (q *chunkQueue) end(err error) {
	q.endOnce.Do(func() {
		q.endErr = err
		close(q.ended)
	})
}

func (q *chunkQueue) take(ctx context.Context) (string, error) {
	select {
	case <-q.done:
		return "", ErrClosed
	default:
	}
	select {
	case c := <-q.ch:
		return c, nil
	default:
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-q.done:
		return "", ErrClosed
	case c := <-q.ch:
		return c, nil
	case <-q.ended:
		select {
		case c := <-q.ch:
			return c, nil
		default:
			return "", q.endErr
		}
	}
}

// Dropped reports how many chunks were discarded because the queue was full.
func (q *chunkQueue) Dropped() uint64 {
	return q.dropped.Load()
}
