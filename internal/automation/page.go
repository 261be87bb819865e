package automation

import (
	"context"
	"time"
)

// Page is the set of browser primitives the driver needs from an open form.
type Page interface {
	// WaitVisible blocks until selector matches a visible element or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Type focuses selector and types text one key at a time, pausing keyDelay() after each key.
	// Locating the field and each key are bounded by timeout.
	Type(ctx context.Context, selector, text string, timeout time.Duration, keyDelay func() time.Duration) error
	// Click presses selector, holding for hold before releasing.
	Click(ctx context.Context, selector string, hold time.Duration) error
	// WaitSettled waits for a page load triggered after the most recent Click.
	WaitSettled(ctx context.Context, timeout time.Duration) error
}

// Session is an open browser session positioned on the target form.
type Session interface {
	Page
	// Close releases the browser process. Calling it more than once is a no-op.
	Close(ctx context.Context) error
}

// SessionFactory opens sessions on a form URL.
// On failure it may return a partially initialized session together with the
// error; the caller must close it.
type SessionFactory interface {
	Acquire(ctx context.Context, formURL string) (Session, error)
}
