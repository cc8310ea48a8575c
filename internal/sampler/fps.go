package sampler

import "time"

// fpsEstimator computes an exponential moving average of frames/sec from
// consecutive timestamped frames (spec.md §4.1's FPS estimator).
type fpsEstimator struct {
	hasLast     bool
	lastIndex   uint64
	lastTime    time.Duration
	hasEstimate bool
	estimate    float64
}

func newFPSEstimator() *fpsEstimator {
	return &fpsEstimator{}
}

// observe records one frame's (index, timestamp) and returns the updated
// estimate plus whether it changed enough to warrant retuning pool
// capacity. Frames without a timestamp never contribute.
func (e *fpsEstimator) observe(frameIndex uint64, timestamp *time.Duration) (float64, bool) {
	if timestamp == nil {
		return e.estimate, false
	}

	if !e.hasLast {
		e.hasLast = true
		e.lastIndex = frameIndex
		e.lastTime = *timestamp
		return e.estimate, false
	}

	deltaFrames := float64(frameIndex) - float64(e.lastIndex)
	deltaSeconds := (*timestamp - e.lastTime).Seconds()
	e.lastIndex = frameIndex
	e.lastTime = *timestamp

	if deltaSeconds <= 0 || deltaFrames <= 0 {
		return e.estimate, false
	}
	instantaneous := deltaFrames / deltaSeconds

	if !e.hasEstimate {
		e.hasEstimate = true
		e.estimate = instantaneous
		return e.estimate, true
	}

	updated := fpsEMAAlpha*instantaneous + (1-fpsEMAAlpha)*e.estimate
	changed := abs(updated-e.estimate) > epsilon
	e.estimate = updated
	return e.estimate, changed
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
