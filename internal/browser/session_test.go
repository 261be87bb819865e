package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newDetachedSession builds a session around a chromedp context that never
// starts a browser, which is enough to exercise the bookkeeping.
func newDetachedSession(t *testing.T) (*Session, *int) {
	t.Helper()
	allocCancels := 0
	allocCtx, allocCancel := context.WithCancel(context.Background())
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := newSession("test", tabCtx, tabCancel, func() {
		allocCancels++
		allocCancel()
	}, 0, zap.NewNop())
	return s, &allocCancels
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s, allocCancels := newDetachedSession(t)

	first := s.Close(context.Background())
	second := s.Close(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, *allocCancels)

	err := s.WaitVisible(context.Background(), "#name", time.Second)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.WaitSettled(context.Background(), time.Second), ErrSessionClosed)
	assert.ErrorIs(t, s.Type(context.Background(), "#name", "x", time.Second, nil), ErrSessionClosed)
}

func TestSession_WaitSettled(t *testing.T) {
	s, _ := newDetachedSession(t)
	defer s.Close(context.Background())

	t.Run("load after click", func(t *testing.T) {
		s.clickMark.Store(s.loads.Load())
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.handleEvent(&page.EventLoadEventFired{})
		}()
		require.NoError(t, s.WaitSettled(context.Background(), time.Second))
	})

	t.Run("load already seen", func(t *testing.T) {
		s.clickMark.Store(s.loads.Load())
		s.handleEvent(&page.EventLoadEventFired{})
		require.NoError(t, s.WaitSettled(context.Background(), time.Second))
	})

	t.Run("timeout", func(t *testing.T) {
		s.clickMark.Store(s.loads.Load())
		err := s.WaitSettled(context.Background(), 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("caller canceled", func(t *testing.T) {
		s.clickMark.Store(s.loads.Load())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.WaitSettled(ctx, time.Second), context.Canceled)
	})

	t.Run("unrelated events ignored", func(t *testing.T) {
		s.clickMark.Store(s.loads.Load())
		s.handleEvent(&page.EventDomContentEventFired{})
		err := s.WaitSettled(context.Background(), 20*time.Millisecond)
		assert.Error(t, err)
	})
}

func TestSleep(t *testing.T) {
	require.NoError(t, sleep(context.Background(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
