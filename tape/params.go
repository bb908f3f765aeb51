package tape

// Params is a snapshot of every user control. It is delivered wholesale at
// control rate through TapeProcessor.UpdateParams.
type Params struct {
	// Input filters.
	LowCutHz       float32
	HighCutHz      float32
	FiltersEnabled bool
	MakeupEnabled  bool

	// Tape transport and head geometry. Speed is in inches per second, the
	// rest in microns.
	Speed       float32
	Gap         float32
	Spacing     float32
	Thickness   float32
	LossEnabled bool

	// Degradation, normalized to [0,1].
	DegradeDepth    float32
	DegradeAmount   float32
	DegradeVariance float32
	DegradeEnvelope float32
	DegradeEnabled  bool
	DegradePoint1x  bool // scale depth by 0.1 for finer control

	AzimuthDeg     float32
	AzimuthEnabled bool

	DryWet float32
}

// NewDefaultParams returns the start-up snapshot.
func NewDefaultParams() *Params {
	return &Params{
		LowCutHz:        20.0,
		HighCutHz:       22000.0,
		FiltersEnabled:  true,
		MakeupEnabled:   false,
		Speed:           15.0,
		Gap:             1.0,
		Spacing:         0.1,
		Thickness:       0.1,
		LossEnabled:     true,
		DegradeDepth:    0.0,
		DegradeAmount:   0.0,
		DegradeVariance: 0.0,
		DegradeEnvelope: 0.0,
		DegradeEnabled:  true,
		DegradePoint1x:  true,
		AzimuthDeg:      0.0,
		AzimuthEnabled:  false,
		DryWet:          1.0,
	}
}
