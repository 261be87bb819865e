package automation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/nafauto/internal/config"
)

// Interaction classifies a pause so each class can have its own bounds.
type Interaction int

const (
	Keystroke Interaction = iota
	InterField
	Click
	SubmitClick
	PreSubmit
	InterRecord
)

func (i Interaction) String() string {
	switch i {
	case Keystroke:
		return "keystroke"
	case InterField:
		return "inter_field"
	case Click:
		return "click"
	case SubmitClick:
		return "submit_click"
	case PreSubmit:
		return "pre_submit"
	case InterRecord:
		return "inter_record"
	default:
		return "unknown"
	}
}

// Range is an inclusive delay interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Jitter yields the pause to take before or during an interaction.
type Jitter interface {
	Delay(i Interaction) time.Duration
}

// NoJitter never pauses. Tests use it for determinism.
type NoJitter struct{}

// Delay implements Jitter.
func (NoJitter) Delay(Interaction) time.Duration { return 0 }

// RandomJitter draws delays uniformly from per-class ranges.
type RandomJitter struct {
	mu     sync.Mutex
	rng    *rand.Rand
	bounds map[Interaction]Range
}

// NewRandomJitter creates a jitter policy. Classes without bounds never pause.
func NewRandomJitter(bounds map[Interaction]Range, seed int64) *RandomJitter {
	copied := make(map[Interaction]Range, len(bounds))
	for k, v := range bounds {
		copied[k] = v
	}
	return &RandomJitter{
		rng:    rand.New(rand.NewSource(seed)),
		bounds: copied,
	}
}

// JitterFromConfig builds a RandomJitter seeded from the clock.
func JitterFromConfig(cfg config.JitterConfig) *RandomJitter {
	ms := func(r config.RangeConfig) Range {
		return Range{Min: time.Duration(r.MinMs) * time.Millisecond, Max: time.Duration(r.MaxMs) * time.Millisecond}
	}
	return NewRandomJitter(map[Interaction]Range{
		Keystroke:   ms(cfg.Keystroke),
		InterField:  ms(cfg.InterField),
		Click:       ms(cfg.Click),
		SubmitClick: ms(cfg.SubmitClick),
		PreSubmit:   ms(cfg.PreSubmit),
		InterRecord: ms(cfg.InterRecord),
	}, time.Now().UnixNano())
}

// Delay implements Jitter.
func (j *RandomJitter) Delay(i Interaction) time.Duration {
	r, ok := j.bounds[i]
	if !ok || r.Max <= 0 {
		return 0
	}
	if r.Max <= r.Min {
		return r.Min
	}
	j.mu.Lock()
	n := j.rng.Int63n(int64(r.Max-r.Min) + 1)
	j.mu.Unlock()
	return r.Min + time.Duration(n)
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
