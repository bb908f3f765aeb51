package config

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tape/tape"
)

// Knobs holds normalized control positions in [0,1].
type Knobs struct {
	LowCut          float32
	HighCut         float32
	Loss            float32
	Speed           float32
	DegradeDepth    float32
	DegradeAmount   float32
	DegradeVariance float32
	DegradeEnvelope float32
}

// KnobSetting is the JSON form of Knobs. Missing positions read as 0.
type KnobSetting struct {
	LowCut          *float32 `json:"low_cut"`
	HighCut         *float32 `json:"high_cut"`
	Loss            *float32 `json:"loss"`
	Speed           *float32 `json:"speed"`
	DegradeDepth    *float32 `json:"degrade_depth"`
	DegradeAmount   *float32 `json:"degrade_amount"`
	DegradeVariance *float32 `json:"degrade_variance"`
	DegradeEnvelope *float32 `json:"degrade_envelope"`
}

const (
	lowCutMinHz  = 20.0
	lowCutMaxHz  = 2000.0
	highCutMinHz = 2000.0
	highCutMaxHz = 22000.0
)

// MapKnobs maps knob positions onto the parameters they drive. Positions are
// clamped to [0,1]. The loss knob moves gap, spacing and thickness together.
func MapKnobs(dst *tape.Params, k Knobs) {
	lo := unit(k.LowCut)
	hi := unit(k.HighCut)
	loss := unit(k.Loss)

	dst.LowCutHz = logMap(lowCutMinHz, lowCutMaxHz, lo)
	dst.HighCutHz = logMap(highCutMinHz, highCutMaxHz, hi)

	dst.Gap = 1.0 + loss*49.0
	dst.Spacing = 0.1 + loss*19.9
	dst.Thickness = 0.1 + loss*49.9
	dst.Speed = 1.0 + unit(k.Speed)*49.0

	dst.DegradeDepth = unit(k.DegradeDepth)
	dst.DegradeAmount = unit(k.DegradeAmount)
	dst.DegradeVariance = unit(k.DegradeVariance)
	dst.DegradeEnvelope = unit(k.DegradeEnvelope)
}

func (s *KnobSetting) resolve() (Knobs, error) {
	var k Knobs
	for _, f := range []struct {
		name string
		src  *float32
		dst  *float32
	}{
		{"knobs.low_cut", s.LowCut, &k.LowCut},
		{"knobs.high_cut", s.HighCut, &k.HighCut},
		{"knobs.loss", s.Loss, &k.Loss},
		{"knobs.speed", s.Speed, &k.Speed},
		{"knobs.degrade_depth", s.DegradeDepth, &k.DegradeDepth},
		{"knobs.degrade_amount", s.DegradeAmount, &k.DegradeAmount},
		{"knobs.degrade_variance", s.DegradeVariance, &k.DegradeVariance},
		{"knobs.degrade_envelope", s.DegradeEnvelope, &k.DegradeEnvelope},
	} {
		if f.src == nil {
			continue
		}
		if err := checkUnit(f.name, *f.src); err != nil {
			return Knobs{}, err
		}
		*f.dst = *f.src
	}
	return k, nil
}

func logMap(lo, hi float64, p float32) float32 {
	return float32(lo * math.Pow(hi/lo, float64(p)))
}

func unit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	if v != v {
		return 0
	}
	return v
}

// String renders knob positions for status lines.
func (k Knobs) String() string {
	return fmt.Sprintf("lo=%.3f hi=%.3f loss=%.3f speed=%.3f depth=%.3f amount=%.3f var=%.3f env=%.3f",
		k.LowCut, k.HighCut, k.Loss, k.Speed, k.DegradeDepth, k.DegradeAmount, k.DegradeVariance, k.DegradeEnvelope)
}
