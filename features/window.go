package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

type point struct {
	at time.Time
	v  float64
}

// Window は時間幅で区切られたローリングウィンドウ
// spanより古い点は追加時に破棄され、点数はcapacityで上限が付く。
type Window struct {
	span     time.Duration
	capacity int
	pts      []point
}

// NewWindow creates a window keeping points no older than span.
func NewWindow(span time.Duration, capacity int) *Window {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Window{span: span, capacity: capacity}
}

// Add appends a point and evicts expired or excess points.
func (w *Window) Add(at time.Time, v float64) {
	w.pts = append(w.pts, point{at: at, v: v})
	cutoff := at.Add(-w.span)
	drop := 0
	for drop < len(w.pts) && w.pts[drop].at.Before(cutoff) {
		drop++
	}
	if over := len(w.pts) - drop - w.capacity; over > 0 {
		drop += over
	}
	if drop > 0 {
		w.pts = append(w.pts[:0], w.pts[drop:]...)
	}
}

// Reset discards all points.
func (w *Window) Reset() { w.pts = w.pts[:0] }

// Len returns the number of retained points.
func (w *Window) Len() int { return len(w.pts) }

// Last returns the newest point value.
func (w *Window) Last() (float64, bool) {
	if len(w.pts) == 0 {
		return 0, false
	}
	return w.pts[len(w.pts)-1].v, true
}

// First returns the timestamp of the oldest retained point.
func (w *Window) First() (time.Time, bool) {
	if len(w.pts) == 0 {
		return time.Time{}, false
	}
	return w.pts[0].at, true
}

// between returns points with from < at <= to.
func (w *Window) between(from, to time.Time) []point {
	var out []point
	for _, p := range w.pts {
		if p.at.After(from) && !p.at.After(to) {
			out = append(out, p)
		}
	}
	return out
}

// Sum totals the values observed in (now-d, now].
func (w *Window) Sum(now time.Time, d time.Duration) float64 {
	var s float64
	for _, p := range w.between(now.Add(-d), now) {
		s += p.v
	}
	return s
}

// Values returns the values in (now-span, now], oldest first.
func (w *Window) Values(now time.Time) []float64 {
	pts := w.between(now.Add(-w.span), now)
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.v
	}
	return out
}

// Mean returns the mean over the window, 0 when empty.
func (w *Window) Mean(now time.Time) float64 {
	vals := w.Values(now)
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// Variance returns the population variance, 0 with fewer than 2 points.
func (w *Window) Variance(now time.Time) float64 {
	return popVariance(w.Values(now))
}

// Slope returns the least-squares slope per minute, 0 with fewer than
// 3 points or no spread in time.
func (w *Window) Slope(now time.Time) float64 {
	pts := w.between(now.Add(-w.span), now)
	if len(pts) < 3 {
		return 0
	}
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.at.Sub(pts[0].at).Minutes()
		ys[i] = p.v
	}
	return slope(xs, ys)
}

// Closest returns the value whose timestamp is nearest to target.
func (w *Window) Closest(target time.Time) (float64, bool) {
	if len(w.pts) == 0 {
		return 0, false
	}
	best := w.pts[0]
	bestDist := absDuration(best.at.Sub(target))
	for _, p := range w.pts[1:] {
		if d := absDuration(p.at.Sub(target)); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best.v, true
}

func popVariance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	_, v := stat.PopMeanVariance(vals, nil)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// slope fits ys = a + b*xs and returns b.
func slope(xs, ys []float64) float64 {
	if len(xs) < 3 || stat.Variance(xs, nil) == 0 {
		return 0
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
