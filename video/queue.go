package video

import (
	"sync"
)

// FrameQueue is the bounded queue between the crop and encode stages.
//
// When the queue is full the oldest unencoded frame is discarded and
// the drop counter increments; pushes never block and the queue never
// grows past its capacity. This sheds load at the producer instead of
// stalling capture when the encoder falls behind.
type FrameQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	frames   []*Frame
	capacity int
	drops    uint64
	closed   bool
}

// NewFrameQueue creates a queue bounded at capacity frames.
// Capacity must be at least 1.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &FrameQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a frame, discarding the oldest queued frame first if
// the queue is full. It reports whether a frame was dropped.
func (q *FrameQueue) Push(frame *Frame) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if len(q.frames) == q.capacity {
		q.frames = q.frames[1:]
		q.drops++
		dropped = true
	}
	q.frames = append(q.frames, frame)
	q.notEmpty.Signal()
	return dropped
}

// Pop dequeues the oldest frame, blocking until one is available or
// the queue is closed. Returns nil after close once drained.
func (q *FrameQueue) Pop() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return nil
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame
}

// TryPop dequeues without blocking.
func (q *FrameQueue) TryPop() (*Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

// Len returns the current queue depth.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Drops returns the total number of frames discarded by saturation.
func (q *FrameQueue) Drops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

// Close wakes all blocked consumers. Queued frames remain poppable.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}
