package progress

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	samplesSeenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitlefast",
		Name:      "samples_seen_total",
		Help:      "Total number of sampler frames processed.",
	})

	latestFrameIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "subtitlefast",
		Name:      "latest_frame_index",
		Help:      "Frame index of the most recently processed sample.",
	})

	estimatedFPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "subtitlefast",
		Name:      "estimated_fps",
		Help:      "Current decoder FPS estimate.",
	})

	progressRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "subtitlefast",
		Name:      "progress_ratio",
		Help:      "Run completion ratio in [0,1], when total_frames is known.",
	})

	cuesEmitted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "subtitlefast",
		Name:      "cues_emitted",
		Help:      "Number of OCR cues buffered by the writer so far.",
	})

	cuesMerged = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "subtitlefast",
		Name:      "cues_merged",
		Help:      "Number of merged SRT entries produced so far.",
	})

	ocrEmptyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitlefast",
		Name:      "ocr_empty_total",
		Help:      "Total number of intervals whose OCR recognition was empty.",
	})

	stageAverageMs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "subtitlefast",
		Name:      "stage_average_ms",
		Help:      "Rolling average processing time per stage, in milliseconds.",
	}, []string{"stage"})

	runsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitlefast",
		Name:      "runs_completed_total",
		Help:      "Total number of runs that completed successfully.",
	})

	runsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitlefast",
		Name:      "runs_failed_total",
		Help:      "Total number of runs that terminated with an error.",
	})
)

// Register registers every collector in this package with reg. Call once
// per process before serving /metrics.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		samplesSeenTotal,
		latestFrameIndex,
		estimatedFPS,
		progressRatio,
		cuesEmitted,
		cuesMerged,
		ocrEmptyTotal,
		stageAverageMs,
		runsCompletedTotal,
		runsFailedTotal,
	)
}

// lastSamplesSeen and lastOcrEmpty let observe() report monotonic
// counters from Event's cumulative fields.
var (
	lastSamplesSeen uint64
	lastOcrEmpty    int
)

func observe(ev Event) {
	if ev.SamplesSeen > lastSamplesSeen {
		samplesSeenTotal.Add(float64(ev.SamplesSeen - lastSamplesSeen))
		lastSamplesSeen = ev.SamplesSeen
	}
	if ev.OcrEmpty > lastOcrEmpty {
		ocrEmptyTotal.Add(float64(ev.OcrEmpty - lastOcrEmpty))
		lastOcrEmpty = ev.OcrEmpty
	}
	latestFrameIndex.Set(float64(ev.LatestFrameIndex))
	if ev.FPS != nil {
		estimatedFPS.Set(*ev.FPS)
	}
	progressRatio.Set(ev.Progress)
	cuesEmitted.Set(float64(ev.Cues))
	cuesMerged.Set(float64(ev.Merged))
	for stage, ms := range ev.StageAverageMs {
		stageAverageMs.WithLabelValues(stage).Set(ms)
	}
	if ev.Completed {
		runsCompletedTotal.Inc()
	}
	if ev.Err != nil {
		runsFailedTotal.Inc()
	}
}
