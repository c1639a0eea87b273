// Package stats implements a small running-mean accumulator for the
// bitrate monitor's final summary, grounded on the original plugin's
// SingleDataStatistics<int64_t> usage: a Welford-style running mean, not a
// kept sample list, since the summary only ever needs mean and count.
package stats

// RunningMean accumulates a mean incrementally without retaining samples.
type RunningMean struct {
	count int64
	mean  float64
}

// Add folds one sample into the running mean.
func (r *RunningMean) Add(value int64) {
	r.count++
	r.mean += (float64(value) - r.mean) / float64(r.count)
}

// Mean returns the current mean, or 0 if no samples were added.
func (r *RunningMean) Mean() float64 {
	return r.mean
}

// Count returns the number of samples folded in so far.
func (r *RunningMean) Count() int64 {
	return r.count
}
