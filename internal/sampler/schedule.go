package sampler

import "time"

// schedule decides which decoded frames fall on a sample target within
// each one-second epoch (spec.md §4.1's sample schedule).
type schedule struct {
	samplesPerSecond uint32
	targets          []float64
	currentSecond    *uint64
	nextTargetIdx    int
}

func newSchedule(samplesPerSecond uint32) *schedule {
	targets := make([]float64, samplesPerSecond)
	for i := range targets {
		if i == 0 {
			targets[i] = 0
		} else {
			targets[i] = float64(i) / float64(samplesPerSecond)
		}
	}
	return &schedule{samplesPerSecond: samplesPerSecond, targets: targets}
}

// shouldSample reports whether the just-processed frame triggers at least
// one sample target. processedIndex is the 1-based count of frames seen so
// far (including this one).
func (s *schedule) shouldSample(timestamp *time.Duration, processedIndex uint64) bool {
	second, elapsed := s.resolveSecond(timestamp, processedIndex)

	if s.currentSecond == nil || *s.currentSecond != second {
		s.currentSecond = &second
		s.nextTargetIdx = 0
	}

	fired := false
	for s.nextTargetIdx < len(s.targets) && elapsed+epsilon >= s.targets[s.nextTargetIdx] {
		fired = true
		s.nextTargetIdx++
	}
	return fired
}

func (s *schedule) resolveSecond(timestamp *time.Duration, processedIndex uint64) (uint64, float64) {
	if timestamp != nil {
		secs := uint64(timestamp.Seconds())
		fractional := timestamp.Seconds() - float64(secs)
		return secs, fractional
	}

	samples := uint64(s.samplesPerSecond)
	processed := uint64(0)
	if processedIndex > 0 {
		processed = processedIndex - 1
	}
	second := processed / samples
	offset := processed - second*samples
	elapsed := float64(offset) / float64(s.samplesPerSecond)
	return second, elapsed
}
