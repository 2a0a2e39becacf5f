package ensemble

import "time"

// Training sample sources.
const (
	SourceLive     = "live"
	SourceFeedback = "feedback"
)

// TrainingSample is one labelled feature vector.
type TrainingSample struct {
	X      []float64
	Y      float64
	Weight float64
	Source string
	At     time.Time
}

// Ring は容量固定のリングバッファ。満杯時は最古のサンプルを上書きする。
type Ring struct {
	buf   []TrainingSample
	start int
	n     int
}

// NewRing creates a ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]TrainingSample, capacity)}
}

// Push appends s, evicting the oldest sample when full.
func (r *Ring) Push(s TrainingSample) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of held samples.
func (r *Ring) Len() int { return r.n }

// Cap returns the capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Items returns the samples oldest first.
func (r *Ring) Items() []TrainingSample {
	return r.Last(r.n)
}

// Last returns up to k newest samples, oldest first.
func (r *Ring) Last(k int) []TrainingSample {
	if k > r.n {
		k = r.n
	}
	out := make([]TrainingSample, 0, k)
	for i := r.n - k; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Reset empties the ring.
func (r *Ring) Reset() {
	for i := range r.buf {
		r.buf[i] = TrainingSample{}
	}
	r.start, r.n = 0, 0
}
