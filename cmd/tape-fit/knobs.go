package main

import (
	"fmt"
	"math"
	"strings"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/tape"
)

type knobDef struct {
	Name string
	Min  float64
	Max  float64
	Log  bool
}

type candidate struct {
	Vals []float64
}

var allKnobs = []knobDef{
	{Name: "speed", Min: 1, Max: 50, Log: true},
	{Name: "gap", Min: 1, Max: 50, Log: true},
	{Name: "spacing", Min: 0.1, Max: 20, Log: true},
	{Name: "thickness", Min: 0.1, Max: 50, Log: true},
	{Name: "low_cut_hz", Min: 20, Max: 2000, Log: true},
	{Name: "high_cut_hz", Min: 2000, Max: 22000, Log: true},
}

// selectKnobs returns the named subset of allKnobs in the given order.
func selectKnobs(raw string) ([]knobDef, error) {
	byName := make(map[string]knobDef, len(allKnobs))
	for _, d := range allKnobs {
		byName[d.Name] = d
	}
	var out []knobDef
	seen := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown knob %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate knob %q", name)
		}
		seen[name] = true
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no knobs selected")
	}
	return out, nil
}

func knobValue(p *tape.Params, name string) float64 {
	switch name {
	case "speed":
		return float64(p.Speed)
	case "gap":
		return float64(p.Gap)
	case "spacing":
		return float64(p.Spacing)
	case "thickness":
		return float64(p.Thickness)
	case "low_cut_hz":
		return float64(p.LowCutHz)
	case "high_cut_hz":
		return float64(p.HighCutHz)
	}
	return 0
}

func setKnob(p *tape.Params, name string, v float64) {
	switch name {
	case "speed":
		p.Speed = float32(v)
	case "gap":
		p.Gap = float32(v)
	case "spacing":
		p.Spacing = float32(v)
	case "thickness":
		p.Thickness = float32(v)
	case "low_cut_hz":
		p.LowCutHz = float32(v)
	case "high_cut_hz":
		p.HighCutHz = float32(v)
	}
}

func initCandidate(base *tape.Params, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i, d := range defs {
		vals[i] = dspcore.Clamp(knobValue(base, d.Name), d.Min, d.Max)
	}
	return candidate{Vals: vals}
}

// applyCandidate returns a copy of base with c applied. Degradation is off
// so every evaluation of the same candidate renders the same audio.
func applyCandidate(base *tape.Params, defs []knobDef, c candidate) *tape.Params {
	p := *base
	for i, d := range defs {
		setKnob(&p, d.Name, c.Vals[i])
	}
	if p.LowCutHz > p.HighCutHz {
		p.LowCutHz, p.HighCutHz = p.HighCutHz, p.LowCutHz
	}
	p.DegradeEnabled = false
	p.DryWet = 1
	return &p
}

func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i, d := range defs {
		u := dspcore.Clamp(pos[i], 0, 1)
		if d.Log {
			vals[i] = d.Min * math.Pow(d.Max/d.Min, u)
		} else {
			vals[i] = d.Min + u*(d.Max-d.Min)
		}
	}
	return candidate{Vals: vals}
}

func toNormalized(c candidate, defs []knobDef) []float64 {
	pos := make([]float64, len(defs))
	for i, d := range defs {
		v := dspcore.Clamp(c.Vals[i], d.Min, d.Max)
		if d.Log {
			pos[i] = math.Log(v/d.Min) / math.Log(d.Max/d.Min)
		} else {
			pos[i] = (v - d.Min) / (d.Max - d.Min)
		}
	}
	return pos
}

func cloneCandidate(c candidate) candidate {
	vals := make([]float64, len(c.Vals))
	copy(vals, c.Vals)
	return candidate{Vals: vals}
}
