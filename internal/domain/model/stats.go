package model

// BrightnessStats is an immutable per-frame snapshot of exposure statistics.
// Mean and Std are in 8-bit luma units; the ratios are pixel fractions in
// [0,1].
type BrightnessStats struct {
	Mean      float64
	Std       float64
	SatRatio  float64
	DarkRatio float64
}

// TuningParameters is the live operating point of the preprocess transforms.
// Both components stay inside their configured bounds at all times, including
// immediately after construction.
type TuningParameters struct {
	Gamma     float64
	CLAHEClip float64
}

// ParameterSnapshot is a version-stamped copy of the operating point handed
// to concurrent readers (telemetry, debug overlay). Version increases by one
// per committed change.
type ParameterSnapshot struct {
	TuningParameters
	Version uint64
}
