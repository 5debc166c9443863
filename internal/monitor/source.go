package monitor

import (
	"context"
	"errors"
	"sync"

	"DriveGuard/go-backend/internal/detection"
)

var ErrSourceClosed = errors.New("frame source closed")

// Source yields frames for Monitor.Run. Close releases whatever the source
// holds (connection, camera stream) and unblocks Next.
type Source interface {
	Next(ctx context.Context) (detection.FrameLandmarks, error)
	Close() error
}

// LazyFrame produces its landmarks when the monitor takes it off the queue.
type LazyFrame func(ctx context.Context) (detection.FrameLandmarks, error)

// FrameQueue is a one-slot Source fed by a transport. While a frame is
// pending, newer frames are dropped so detection never runs concurrently
// and never falls behind.
type FrameQueue struct {
	ch      chan LazyFrame
	closed  chan struct{}
	once    sync.Once
	release func() error
}

// NewFrameQueue returns a queue; release, when not nil, runs once on Close.
func NewFrameQueue(release func() error) *FrameQueue {
	return &FrameQueue{
		ch:      make(chan LazyFrame, 1),
		closed:  make(chan struct{}),
		release: release,
	}
}

// Offer enqueues f and reports false when it was dropped.
func (q *FrameQueue) Offer(f detection.FrameLandmarks) bool {
	return q.OfferLazy(func(context.Context) (detection.FrameLandmarks, error) {
		return f, nil
	})
}

// OfferLazy enqueues a frame resolved on Next.
func (q *FrameQueue) OfferLazy(fn LazyFrame) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.ch <- fn:
		return true
	default:
		return false
	}
}

func (q *FrameQueue) Next(ctx context.Context) (detection.FrameLandmarks, error) {
	select {
	case fn := <-q.ch:
		return fn(ctx)
	case <-q.closed:
		return detection.FrameLandmarks{}, ErrSourceClosed
	case <-ctx.Done():
		return detection.FrameLandmarks{}, ctx.Err()
	}
}

func (q *FrameQueue) Close() error {
	var err error
	q.once.Do(func() {
		close(q.closed)
		if q.release != nil {
			err = q.release()
		}
	})
	return err
}
