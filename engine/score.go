package engine

import (
	"time"

	"github.com/YuminosukeSato/fatigo/ensemble"
	"github.com/YuminosukeSato/fatigo/features"
	"github.com/YuminosukeSato/fatigo/personalization"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
	"github.com/YuminosukeSato/fatigo/rules"
)

// Prediction paths reported in Factors.Path.
const (
	PathHybrid    = "hybrid"
	PathRuleBased = "rule_based"
	PathML        = "ml"
	PathNeutral   = "neutral"
)

// SessionContext is one UI tick supplied by the surrounding application.
type SessionContext struct {
	Now             time.Time
	SessionDuration time.Duration
	SinceBreak      time.Duration
	OnBreak         bool

	// Keyboard and Mouse are event counts observed in this tick.
	Keyboard int
	Mouse    int
	// ActivityRate is the current input rate in events per minute.
	ActivityRate float64

	HasBlink  bool
	BlinkRate float64 // blinks per minute
}

// Factors explains how a score was produced.
type Factors struct {
	Path         string             `json:"path"`
	MLWeight     float64            `json:"ml_weight"`
	MLScore      float64            `json:"ml_score"`
	MLConfidence float64            `json:"ml_confidence"`
	MLReady      bool               `json:"ml_ready"`
	RuleScore    float64            `json:"rule_score"`
	RuleFactors  map[string]float64 `json:"rule_factors,omitempty"`
	Stage        string             `json:"stage"`
	UrgentBreak  bool               `json:"urgent_break"`
	Degraded     string             `json:"degraded,omitempty"`
}

// FatigueScore is the result of CalculateScore.
type FatigueScore struct {
	Value     float64               `json:"value"`
	Level     personalization.Level `json:"level"`
	Timestamp time.Time             `json:"timestamp"`
	Factors   Factors               `json:"factors"`
}

// scoreState carries every candidate input of the fallback chain.
type scoreState struct {
	rule    rules.Result
	ruleErr error

	vector  features.Vector
	ml      float64
	conf    float64
	mlReady bool

	weight float64
}

func (s *scoreState) ruleOK() bool { return s.ruleErr == nil }

// strategy is one step of the fallback chain.
type strategy struct {
	path    string
	applies func(s *scoreState) bool
	score   func(e *Engine, s *scoreState) float64
}

// fallbackChain is evaluated top-down; the first applicable strategy wins.
var fallbackChain = []strategy{
	{
		path:    PathHybrid,
		applies: func(s *scoreState) bool { return s.ruleOK() && s.mlReady && s.weight > 0 },
		score:   func(e *Engine, s *scoreState) float64 { return e.profile.Blend(s.ml, s.rule.Score) },
	},
	{
		path:    PathRuleBased,
		applies: func(s *scoreState) bool { return s.ruleOK() },
		score:   func(_ *Engine, s *scoreState) float64 { return s.rule.Score },
	},
	{
		path:    PathML,
		applies: func(s *scoreState) bool { return s.mlReady },
		score:   func(_ *Engine, s *scoreState) float64 { return s.ml },
	},
	{
		path:    PathNeutral,
		applies: func(*scoreState) bool { return true },
		score:   func(*Engine, *scoreState) float64 { return ensemble.NeutralScore },
	},
}

// CalculateScore scores one tick. It always returns a value in [0,100];
// ML failures are reported in Factors.Degraded and never returned.
func (e *Engine) CalculateScore(ctx SessionContext) FatigueScore {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Now.IsZero() {
		ctx.Now = e.now()
	}
	if e.session.start.IsZero() {
		e.startSessionLocked(ctx.Now.Add(-ctx.SessionDuration))
	}

	var degraded string
	st := &scoreState{weight: e.profile.MLWeight()}

	if err := e.features.Observe(features.Sample{
		At:        ctx.Now,
		Keyboard:  ctx.Keyboard,
		Mouse:     ctx.Mouse,
		HasBlink:  ctx.HasBlink,
		BlinkRate: ctx.BlinkRate,
	}); err != nil {
		degraded = "invalid sample: " + err.Error()
	}

	st.rule, st.ruleErr = e.rules.Score(rules.Input{
		Now:          ctx.Now,
		WorkDuration: ctx.SessionDuration,
		ActivityRate: ctx.ActivityRate,
		SinceBreak:   ctx.SinceBreak,
		OnBreak:      ctx.OnBreak,
		HasBlink:     ctx.HasBlink,
		BlinkRate:    ctx.BlinkRate,
	})

	if err := e.predictML(ctx, st); err != nil {
		degraded = err.Error()
	}

	var chosen strategy
	for _, s := range fallbackChain {
		if s.applies(st) {
			chosen = s
			break
		}
	}
	value := errors.ClipValue(chosen.score(e, st), 0, 100)
	if !errors.IsFinite(value) {
		chosen = fallbackChain[len(fallbackChain)-1]
		value = ensemble.NeutralScore
	}
	if degraded != "" {
		e.degrade(degraded)
	}

	thresholds := e.profile.Thresholds()
	out := FatigueScore{
		Value:     value,
		Level:     thresholds.Level(value),
		Timestamp: ctx.Now,
		Factors: Factors{
			Path:         chosen.path,
			MLScore:      st.ml,
			MLConfidence: st.conf,
			MLReady:      st.mlReady,
			RuleScore:    st.rule.Score,
			RuleFactors:  st.rule.Factors,
			Stage:        string(e.profile.Stage()),
			UrgentBreak:  thresholds.UrgentBreak(value),
			Degraded:     degraded,
		},
	}
	if chosen.path == PathHybrid {
		out.Factors.MLWeight = st.weight
	} else if chosen.path == PathML {
		out.Factors.MLWeight = 1
	}

	e.features.RecordScore(ctx.Now, value)
	e.session.points = append(e.session.points, personalization.ScorePoint{At: ctx.Now, Score: value})
	if st.vector != nil && st.ruleOK() {
		e.session.vectors = append(e.session.vectors, st.vector)
		e.session.targets = append(e.session.targets, st.rule.Score)
	}
	e.session.last = value
	e.session.lastML, e.session.hasLastML = st.ml, st.mlReady

	e.logger.Debug("Fatigue score computed",
		log.OperationKey, log.OperationScore,
		log.ScoreKey, value,
		log.LevelKey, string(out.Level),
		log.PathUsedKey, chosen.path,
		log.MLWeightKey, out.Factors.MLWeight,
	)
	return out
}

// predictML extracts the feature vector and asks the predictor. A returned
// error is a degradation reason; a cold predictor is not an error.
func (e *Engine) predictML(ctx SessionContext, st *scoreState) error {
	return errors.SafeExecute("engine.predict", func() error {
		v, err := e.features.Extract(features.Context{
			Now:             ctx.Now,
			SessionDuration: ctx.SessionDuration,
			SinceBreak:      ctx.SinceBreak,
		})
		if err != nil {
			return err
		}
		if v, err = features.Extend(v, e.space); err != nil {
			return err
		}
		st.vector = v
		if !e.predictor.Ready() {
			return nil
		}
		score, conf, err := e.predictor.Predict(v)
		if err != nil {
			return err
		}
		if !errors.IsFinite(score) {
			return errors.NewNumericalInstabilityError("engine.predict", []float64{score}, 0)
		}
		st.ml, st.conf, st.mlReady = score, conf, true
		return nil
	})
}
