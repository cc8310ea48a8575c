package segmenter

// promote transforms a pendingTrack that has reached W_on hits into an
// activeTrack, refining the interval's start time by scanning the pending
// track's captured pool history backward in time (spec.md §4.4.2).
func (s *Segmenter) promote(p *pendingTrack) *activeTrack {
	startFrame := p.firstFrame
	startTime := p.firstTime

	searchAnchor := p.searchAnchor()
	var accepted = p.anchor

	records := p.history.Records()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		roi := p.roi.Roi(rec.Frame.Width, rec.Frame.Height)
		feat, ok := s.cmp.Extract(rec.Frame, roi)
		if !ok {
			break
		}
		report := s.cmp.Compare(searchAnchor, feat)
		if !report.SameSegment {
			break
		}
		startFrame = rec.FrameIndex
		startTime = resolveTime(rec.Frame, s.latestEstimatedFPS)
		searchAnchor = feat
		accepted = feat
	}

	return &activeTrack{
		roi:            p.roi,
		template:       p.template,
		anchor:         accepted,
		startFrame:     startFrame,
		startTime:      startTime,
		lastFrame:      p.firstFrame,
		lastTime:       p.firstTime,
		representative: p.source,
	}
}
