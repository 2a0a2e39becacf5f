// Package fatigo provides the learning core of a cognitive-fatigue monitor.
//
// fatigo turns raw activity ticks (keyboard and mouse counts, optional blink
// rate) into a 0-100 fatigue score. A deterministic rule formula produces the
// baseline score, and an online ensemble learns from it and from explicit user
// feedback. Personalization blends the two as the user accumulates sessions,
// and the trained model is persisted with a versioned history that supports
// rollback.
//
// # Getting Started
//
// Open an engine rooted at a data directory and score ticks:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//	    "time"
//
//	    "github.com/YuminosukeSato/fatigo/config"
//	    "github.com/YuminosukeSato/fatigo/engine"
//	)
//
//	func main() {
//	    eng, err := engine.New(config.WithDataDir("/tmp/fatigo"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer eng.Close()
//
//	    now := time.Now()
//	    eng.StartSession(now)
//	    score := eng.CalculateScore(engine.SessionContext{
//	        Now:             now.Add(30 * time.Minute),
//	        SessionDuration: 30 * time.Minute,
//	        SinceBreak:      30 * time.Minute,
//	        Keyboard:        40,
//	        Mouse:           15,
//	        ActivityRate:    55,
//	    })
//	    fmt.Println(score.Value, score.Level, score.Factors.Path)
//
//	    if _, err := eng.Train(nil); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Packages
//
//   - features: rolling windows and the 28/35-dimensional feature vectors
//   - psychometric: NASA-TLX and CFQ dataset loading and feature synthesis
//   - ensemble: SGD and Passive-Aggressive learners with drift detection
//   - personalization: ML weight schedule, thresholds and user profile
//   - modelstore: atomic model persistence, backups and version history
//   - rules: the rule-based fatigue formula
//   - engine: the façade that ties scoring, training and persistence together
//   - config: defaults, config file and FATIGUE_* environment overrides
//   - report: progression and error charts
//   - sklearn/linear_model, sklearn/drift: the underlying online estimators
//   - core/model, metrics, preprocessing, pkg/errors, pkg/log: shared support
//
// The fatigue command in cmd/fatigue exposes training, statistics, version
// management and a session simulator on top of the engine.
package fatigo
