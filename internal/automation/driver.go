package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/nafauto/api/schemas"
	"github.com/xkilldash9x/nafauto/internal/config"
)

// ProcessedMarker flips a record's processed flag after it was submitted.
type ProcessedMarker interface {
	MarkProcessed(ctx context.Context, id string) (*schemas.InquiryRecord, error)
}

// Timeouts bounds each wait of the submission cycle.
type Timeouts struct {
	Ready    time.Duration
	Category time.Duration
	Submit   time.Duration
	Ack      time.Duration
	Reset    time.Duration
}

// DefaultTimeouts returns the bounds the public form is known to need.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Ready:    15 * time.Second,
		Category: 5 * time.Second,
		Submit:   8 * time.Second,
		Ack:      15 * time.Second,
		Reset:    10 * time.Second,
	}
}

// DriverOptions configures a Driver.
type DriverOptions struct {
	FieldMap           FieldMap
	Timeouts           Timeouts
	Jitter             Jitter
	TolerateAckTimeout bool
	// DetailPlaceholder is typed when a record has no detail text.
	DetailPlaceholder string
	// SubmitLimit caps submit clicks per second. Zero means unlimited.
	SubmitLimit rate.Limit
}

// DriverOptionsFromConfig assembles driver options from the automation config.
func DriverOptionsFromConfig(cfg config.AutomationConfig) (DriverOptions, error) {
	fm, err := FieldMapFromConfig(cfg.FieldMap)
	if err != nil {
		return DriverOptions{}, err
	}
	return DriverOptions{
		FieldMap: fm,
		Timeouts: Timeouts{
			Ready:    cfg.Timeouts.Ready,
			Category: cfg.Timeouts.Category,
			Submit:   cfg.Timeouts.Submit,
			Ack:      cfg.Timeouts.Ack,
			Reset:    cfg.Timeouts.Reset,
		},
		Jitter:             JitterFromConfig(cfg.Jitter),
		TolerateAckTimeout: cfg.TolerateAckTimeout,
		DetailPlaceholder:  cfg.DetailPlaceholder,
		SubmitLimit:        rate.Limit(cfg.MaxSubmissionsPerMinute / 60),
	}, nil
}

// Driver runs the fill, submit and reset cycle for one record on an open page.
type Driver struct {
	opts    DriverOptions
	marker  ProcessedMarker
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a Driver. A nil jitter means no pauses.
func NewDriver(opts DriverOptions, marker ProcessedMarker, logger *zap.Logger) *Driver {
	if opts.Jitter == nil {
		opts.Jitter = NoJitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		opts:   opts,
		marker: marker,
		logger: logger.Named("driver"),
		sleep:  sleepContext,
	}
	if opts.SubmitLimit > 0 {
		d.limiter = rate.NewLimiter(opts.SubmitLimit, 1)
	}
	return d
}

// Process submits one record. submitted reports whether the record got past the
// submit step, even if a later step failed. A non-nil error is always fatal to the batch.
func (d *Driver) Process(ctx context.Context, page Page, rec schemas.InquiryRecord, hasNext bool) (submitted bool, err error) {
	fm := d.opts.FieldMap
	t := d.opts.Timeouts
	log := d.logger.With(zap.String("record_id", rec.ID))

	if err := page.WaitVisible(ctx, fm.Name, t.Ready); err != nil {
		return false, d.fail(ctx, KindFieldNotFound, rec.ID, fmt.Sprintf("form not ready: %q", fm.Name), err)
	}

	if err := d.fill(ctx, page, rec.ID, fm.Name, rec.TaxpayerName); err != nil {
		return false, err
	}
	if err := d.pause(ctx, rec.ID, InterField); err != nil {
		return false, err
	}
	if err := d.fill(ctx, page, rec.ID, fm.IDNumber, rec.TaxpayerIDNumber); err != nil {
		return false, err
	}
	if err := d.pause(ctx, rec.ID, InterField); err != nil {
		return false, err
	}

	d.selectCategory(ctx, page, rec, log)
	if err := d.pause(ctx, rec.ID, InterField); err != nil {
		return false, err
	}

	detail := rec.Detail
	if strings.TrimSpace(detail) == "" {
		detail = d.opts.DetailPlaceholder
	}
	if err := d.fill(ctx, page, rec.ID, fm.Detail, detail); err != nil {
		return false, err
	}

	if err := d.pause(ctx, rec.ID, PreSubmit); err != nil {
		return false, err
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return false, &StepError{Kind: KindAborted, RecordID: rec.ID, Step: "waiting for submit slot", Err: err}
		}
	}
	if err := page.WaitVisible(ctx, fm.Submit, t.Submit); err != nil {
		return false, d.fail(ctx, KindSubmitControlNotFound, rec.ID, fmt.Sprintf("submit control %q", fm.Submit), err)
	}
	if err := page.Click(ctx, fm.Submit, d.opts.Jitter.Delay(SubmitClick)); err != nil {
		return false, d.fail(ctx, KindSubmitControlNotFound, rec.ID, fmt.Sprintf("clicking submit control %q", fm.Submit), err)
	}

	if err := d.awaitAck(ctx, page, rec.ID, "after submit", log); err != nil {
		return false, err
	}
	log.Info("Record submitted.")

	d.persist(ctx, rec.ID, log)

	if !hasNext {
		return true, nil
	}
	return true, d.reset(ctx, page, rec.ID, log)
}

func (d *Driver) fill(ctx context.Context, page Page, recordID, selector, text string) error {
	keyDelay := func() time.Duration { return d.opts.Jitter.Delay(Keystroke) }
	if err := page.Type(ctx, selector, text, d.opts.Timeouts.Ready, keyDelay); err != nil {
		return d.fail(ctx, KindFieldNotFound, recordID, fmt.Sprintf("typing into %q", selector), err)
	}
	return nil
}

// selectCategory is best effort: any failure is logged and the record proceeds.
func (d *Driver) selectCategory(ctx context.Context, page Page, rec schemas.InquiryRecord, log *zap.Logger) {
	sel := d.opts.FieldMap.CategorySelector(rec.Category)
	if sel == "" {
		log.Warn("No category control for label.",
			zap.String("kind", string(KindCategorySelection)),
			zap.String("category", rec.Category))
		return
	}
	err := page.WaitVisible(ctx, sel, d.opts.Timeouts.Category)
	if err == nil {
		err = page.Click(ctx, sel, d.opts.Jitter.Delay(Click))
	}
	if err != nil {
		log.Warn("Could not select category, continuing without it.",
			zap.String("kind", string(KindCategorySelection)),
			zap.String("category", rec.Category),
			zap.String("selector", sel),
			zap.Error(err))
	}
}

func (d *Driver) awaitAck(ctx context.Context, page Page, recordID, step string, log *zap.Logger) error {
	err := page.WaitSettled(ctx, d.opts.Timeouts.Ack)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || !d.opts.TolerateAckTimeout {
		return d.fail(ctx, KindAckTimeout, recordID, "awaiting navigation "+step, err)
	}
	// The form may just be slow; the submission is assumed to have landed.
	log.Warn("Navigation not observed, assuming the form accepted the input.",
		zap.String("kind", string(KindAckTimeoutWarning)),
		zap.String("step", step),
		zap.Error(err))
	return nil
}

func (d *Driver) persist(ctx context.Context, recordID string, log *zap.Logger) {
	if d.marker == nil {
		return
	}
	if _, err := d.marker.MarkProcessed(ctx, recordID); err != nil {
		log.Error("Record submitted but could not be marked processed.",
			zap.String("kind", string(KindPersistence)),
			zap.Error(err))
	}
}

func (d *Driver) reset(ctx context.Context, page Page, recordID string, log *zap.Logger) error {
	fm := d.opts.FieldMap
	if err := page.WaitVisible(ctx, fm.SubmitAnother, d.opts.Timeouts.Reset); err != nil {
		return d.fail(ctx, KindResetControlNotFound, recordID, fmt.Sprintf("submit-another control %q", fm.SubmitAnother), err)
	}
	if err := page.Click(ctx, fm.SubmitAnother, d.opts.Jitter.Delay(Click)); err != nil {
		return d.fail(ctx, KindResetControlNotFound, recordID, fmt.Sprintf("clicking submit-another control %q", fm.SubmitAnother), err)
	}
	if err := d.awaitAck(ctx, page, recordID, "after reset", log); err != nil {
		return err
	}
	return d.pause(ctx, recordID, InterRecord)
}

func (d *Driver) pause(ctx context.Context, recordID string, i Interaction) error {
	if err := d.sleep(ctx, d.opts.Jitter.Delay(i)); err != nil {
		return &StepError{Kind: KindAborted, RecordID: recordID, Step: i.String() + " pause", Err: err}
	}
	return nil
}

// fail wraps err in a StepError, reporting cancellation of ctx as an abort.
func (d *Driver) fail(ctx context.Context, kind Kind, recordID, step string, err error) error {
	if ctx.Err() != nil {
		kind = KindAborted
	}
	return &StepError{Kind: kind, RecordID: recordID, Step: step, Err: err}
}
