package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/nafauto/internal/config"
)

func TestRandomJitter_StaysWithinBounds(t *testing.T) {
	j := NewRandomJitter(map[Interaction]Range{
		Keystroke:   {Min: 50 * time.Millisecond, Max: 100 * time.Millisecond},
		InterRecord: {Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
	}, 42)

	for i := 0; i < 500; i++ {
		d := j.Delay(Keystroke)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)

		d = j.Delay(InterRecord)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
	assert.Zero(t, j.Delay(PreSubmit), "unconfigured class should not pause")
}

func TestRandomJitter_DegenerateRange(t *testing.T) {
	j := NewRandomJitter(map[Interaction]Range{Click: {Min: 70 * time.Millisecond, Max: 70 * time.Millisecond}}, 1)
	assert.Equal(t, 70*time.Millisecond, j.Delay(Click))
}

func TestJitterFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Automation.Jitter
	j := JitterFromConfig(cfg)
	d := j.Delay(PreSubmit)
	assert.GreaterOrEqual(t, d, time.Duration(cfg.PreSubmit.MinMs)*time.Millisecond)
	assert.LessOrEqual(t, d, time.Duration(cfg.PreSubmit.MaxMs)*time.Millisecond)
}

func TestNoJitter(t *testing.T) {
	for _, i := range []Interaction{Keystroke, InterField, Click, SubmitClick, PreSubmit, InterRecord} {
		assert.Zero(t, NoJitter{}.Delay(i), i.String())
	}
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
