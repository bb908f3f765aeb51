package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/cwbudde/algo-tape/tape"
)

// File is the JSON schema for a tape session: a parameter snapshot, optional
// engine settings, optional knob positions and timed parameter changes.
type File struct {
	ParamSetting

	Engine     *EngineSetting          `json:"engine"`
	Knobs      *KnobSetting            `json:"knobs"`
	Automation map[string]ParamSetting `json:"automation"`
}

// ParamSetting is a partial override of tape.Params.
type ParamSetting struct {
	LowCutHz       *float32 `json:"low_cut_hz"`
	HighCutHz      *float32 `json:"high_cut_hz"`
	FiltersEnabled *bool    `json:"filters_enabled"`
	MakeupEnabled  *bool    `json:"makeup_enabled"`

	Speed       *float32 `json:"speed"`
	Gap         *float32 `json:"gap"`
	Spacing     *float32 `json:"spacing"`
	Thickness   *float32 `json:"thickness"`
	LossEnabled *bool    `json:"loss_enabled"`

	DegradeDepth    *float32 `json:"degrade_depth"`
	DegradeAmount   *float32 `json:"degrade_amount"`
	DegradeVariance *float32 `json:"degrade_variance"`
	DegradeEnvelope *float32 `json:"degrade_envelope"`
	DegradeEnabled  *bool    `json:"degrade_enabled"`
	DegradePoint1x  *bool    `json:"degrade_point1x"`

	AzimuthDeg     *float32 `json:"azimuth_deg"`
	AzimuthEnabled *bool    `json:"azimuth_enabled"`

	DryWet *float32 `json:"dry_wet"`
}

// EngineSetting overrides construction-time settings.
type EngineSetting struct {
	SampleRate   *float64 `json:"sample_rate"`
	MaxBlockSize *int     `json:"max_block_size"`
	Seed         *uint64  `json:"seed"`
}

// Change is a full parameter snapshot scheduled at a point in time.
type Change struct {
	AtSec  float64
	Params tape.Params
}

// Session is a resolved session file.
type Session struct {
	Config     tape.Config
	Params     *tape.Params
	Automation []Change // sorted by AtSec
}

// LoadJSON loads a session file and returns its start-up parameters.
func LoadJSON(path string) (*tape.Params, error) {
	s, err := LoadSession(path, tape.NewConfig())
	if err != nil {
		return nil, err
	}
	return s.Params, nil
}

// LoadSession loads a session file on top of base and the default params.
func LoadSession(path string, base tape.Config) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	s := &Session{Config: base, Params: tape.NewDefaultParams()}
	if err := ApplyEngine(&s.Config, f.Engine); err != nil {
		return nil, err
	}
	if err := ApplyFile(s.Params, &f); err != nil {
		return nil, err
	}
	s.Automation, err = resolveAutomation(*s.Params, f.Automation)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyFile applies knob positions first, then explicit fields, onto dst.
func ApplyFile(dst *tape.Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}
	if f.Knobs != nil {
		k, err := f.Knobs.resolve()
		if err != nil {
			return err
		}
		MapKnobs(dst, k)
	}
	return ApplySetting(dst, &f.ParamSetting)
}

// ApplySetting applies a partial override onto dst.
func ApplySetting(dst *tape.Params, s *ParamSetting) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if s == nil {
		return nil
	}

	next := *dst
	if s.LowCutHz != nil {
		if *s.LowCutHz <= 0 {
			return fmt.Errorf("low_cut_hz must be > 0")
		}
		next.LowCutHz = *s.LowCutHz
	}
	if s.HighCutHz != nil {
		if *s.HighCutHz <= 0 {
			return fmt.Errorf("high_cut_hz must be > 0")
		}
		next.HighCutHz = *s.HighCutHz
	}
	if next.LowCutHz > next.HighCutHz {
		return fmt.Errorf("low_cut_hz (%g) must be <= high_cut_hz (%g)", next.LowCutHz, next.HighCutHz)
	}
	setBool(&next.FiltersEnabled, s.FiltersEnabled)
	setBool(&next.MakeupEnabled, s.MakeupEnabled)

	if s.Speed != nil {
		if *s.Speed <= 0 {
			return fmt.Errorf("speed must be > 0")
		}
		next.Speed = *s.Speed
	}
	for _, g := range []struct {
		name string
		src  *float32
		dst  *float32
	}{
		{"gap", s.Gap, &next.Gap},
		{"spacing", s.Spacing, &next.Spacing},
		{"thickness", s.Thickness, &next.Thickness},
	} {
		if g.src == nil {
			continue
		}
		if *g.src < 0 {
			return fmt.Errorf("%s must be >= 0", g.name)
		}
		*g.dst = *g.src
	}
	setBool(&next.LossEnabled, s.LossEnabled)

	for _, u := range []struct {
		name string
		src  *float32
		dst  *float32
	}{
		{"degrade_depth", s.DegradeDepth, &next.DegradeDepth},
		{"degrade_amount", s.DegradeAmount, &next.DegradeAmount},
		{"degrade_variance", s.DegradeVariance, &next.DegradeVariance},
		{"degrade_envelope", s.DegradeEnvelope, &next.DegradeEnvelope},
		{"dry_wet", s.DryWet, &next.DryWet},
	} {
		if u.src == nil {
			continue
		}
		if err := checkUnit(u.name, *u.src); err != nil {
			return err
		}
		*u.dst = *u.src
	}
	setBool(&next.DegradeEnabled, s.DegradeEnabled)
	setBool(&next.DegradePoint1x, s.DegradePoint1x)

	if s.AzimuthDeg != nil {
		if *s.AzimuthDeg < -90 || *s.AzimuthDeg > 90 {
			return fmt.Errorf("azimuth_deg must be in [-90,90]")
		}
		next.AzimuthDeg = *s.AzimuthDeg
	}
	setBool(&next.AzimuthEnabled, s.AzimuthEnabled)

	*dst = next
	return nil
}

// ApplyEngine applies engine overrides onto cfg and validates the result.
func ApplyEngine(cfg *tape.Config, e *EngineSetting) error {
	if cfg == nil {
		return fmt.Errorf("nil destination config")
	}
	if e == nil {
		return nil
	}
	if e.SampleRate != nil {
		cfg.SampleRate = *e.SampleRate
	}
	if e.MaxBlockSize != nil {
		cfg.MaxBlockSize = *e.MaxBlockSize
	}
	if e.Seed != nil {
		cfg.Seed = *e.Seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// resolveAutomation turns time-keyed overrides into cumulative snapshots.
func resolveAutomation(start tape.Params, in map[string]ParamSetting) ([]Change, error) {
	if len(in) == 0 {
		return nil, nil
	}

	type keyed struct {
		key string
		at  float64
	}
	keys := make([]keyed, 0, len(in))
	for k := range in {
		at, err := strconv.ParseFloat(k, 64)
		if err != nil || at < 0 {
			return nil, fmt.Errorf("invalid automation key %q (expected seconds >= 0)", k)
		}
		keys = append(keys, keyed{key: k, at: at})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].at < keys[j].at })

	out := make([]Change, 0, len(keys))
	cur := start
	for _, k := range keys {
		s := in[k.key]
		if err := ApplySetting(&cur, &s); err != nil {
			return nil, fmt.Errorf("automation[%s]: %w", k.key, err)
		}
		out = append(out, Change{AtSec: k.at, Params: cur})
	}
	return out, nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func checkUnit(name string, v float32) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0,1]", name)
	}
	return nil
}
