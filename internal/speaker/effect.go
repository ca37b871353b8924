package speaker

// Effect is a named rate and pitch preset.
type Effect string

const (
	EffectNormal  Effect = "normal"
	EffectSlow    Effect = "slow"
	EffectFast    Effect = "fast"
	EffectHigh    Effect = "high"
	EffectLow     Effect = "low"
	EffectExcited Effect = "excited"
	EffectCalm    Effect = "calm"
)

var effects = map[Effect][2]float64{
	EffectNormal:  {0.8, 1.0},
	EffectSlow:    {0.6, 1.0},
	EffectFast:    {1.0, 1.0},
	EffectHigh:    {0.8, 1.2},
	EffectLow:     {0.8, 0.8},
	EffectExcited: {1.0, 1.1},
	EffectCalm:    {0.7, 0.9},
}

// Params returns the preset's rate and pitch. Unknown effects use
// [EffectNormal].
func (e Effect) Params() (rate, pitch float64) {
	p, ok := effects[e]
	if !ok {
		p = effects[EffectNormal]
	}
	return p[0], p[1]
}
