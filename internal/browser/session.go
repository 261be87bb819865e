package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrSessionClosed is returned by primitives called after Close.
var ErrSessionClosed = errors.New("browser session is closed")

// Session is one browser process with a single tab open on the form.
type Session struct {
	id     string
	ctx    context.Context
	logger *zap.Logger

	defaultTimeout time.Duration

	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
	closed      atomic.Bool
	closeErr    error

	// loads counts load events; clickMark is its value at the last click.
	loads     atomic.Int64
	clickMark atomic.Int64
	loadCh    chan struct{}
}

func newSession(id string, tabCtx context.Context, tabCancel, allocCancel context.CancelFunc, defaultTimeout time.Duration, logger *zap.Logger) *Session {
	if defaultTimeout <= 0 {
		defaultTimeout = 2 * time.Minute
	}
	s := &Session{
		id:             id,
		ctx:            tabCtx,
		logger:         logger,
		defaultTimeout: defaultTimeout,
		tabCancel:      tabCancel,
		allocCancel:    allocCancel,
		loadCh:         make(chan struct{}, 1),
	}
	chromedp.ListenTarget(tabCtx, s.handleEvent)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) handleEvent(ev interface{}) {
	if _, ok := ev.(*page.EventLoadEventFired); ok {
		s.loads.Add(1)
		select {
		case s.loadCh <- struct{}{}:
		default:
		}
	}
}

// run executes actions on the tab bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// WaitVisible waits until selector matches a visible element.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%q not visible within %s: %w", selector, timeout, err)
	}
	return nil
}

// Type focuses selector and sends text key by key.
func (s *Session) Type(ctx context.Context, selector, text string, timeout time.Duration, keyDelay func() time.Duration) error {
	if err := s.run(ctx, timeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("focusing %q: %w", selector, err)
	}
	for _, r := range text {
		if err := s.run(ctx, timeout, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("typing into %q: %w", selector, err)
		}
		if keyDelay == nil {
			continue
		}
		if err := sleep(ctx, keyDelay()); err != nil {
			return err
		}
	}
	return nil
}

// Click presses the left button over the center of selector, holds it for
// hold and releases it.
func (s *Session) Click(ctx context.Context, selector string, hold time.Duration) error {
	var nodes []*cdp.Node
	if err := s.run(ctx, 0,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return fmt.Errorf("locating %q: %w", selector, err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("locating %q: no nodes", selector)
	}

	s.clickMark.Store(s.loads.Load())
	drainSignal(s.loadCh)

	err := s.run(ctx, 0, chromedp.ActionFunc(func(actx context.Context) error {
		x, y, err := nodeCenter(actx, nodes[0])
		if err != nil {
			return err
		}
		press := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithButtons(1).
			WithClickCount(1)
		if err := press.Do(actx); err != nil {
			return err
		}
		if err := sleep(actx, hold); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(actx)
	}))
	if err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

// WaitSettled waits for a load event fired after the most recent Click.
func (s *Session) WaitSettled(ctx context.Context, timeout time.Duration) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for s.loads.Load() <= s.clickMark.Load() {
		select {
		case <-s.loadCh:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return ErrSessionClosed
		case <-timer.C:
			return fmt.Errorf("no page load within %s: %w", timeout, context.DeadlineExceeded)
		}
	}
	return nil
}

// Close shuts the tab and the browser process. Later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.logger.Debug("Closing browser session.")

		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("closing browser: %w", err)
			}
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("closing browser: %w", ctx.Err())
		}
		s.tabCancel()
		s.allocCancel()
	})
	return s.closeErr
}

func nodeCenter(ctx context.Context, n *cdp.Node) (float64, float64, error) {
	box, err := dom.GetBoxModel().WithBackendNodeID(n.BackendNodeID).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("box model: %w", err)
	}
	q := box.Content
	if len(q) < 8 {
		return 0, 0, errors.New("box model: element has no layout")
	}
	x := (q[0] + q[2] + q[4] + q[6]) / 4
	y := (q[1] + q[3] + q[5] + q[7]) / 4
	return x, y, nil
}

func drainSignal(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
