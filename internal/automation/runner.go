package automation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/nafauto/api/schemas"
)

var (
	// ErrInvalidRequest is returned for a missing or malformed form URL.
	ErrInvalidRequest = errors.New("invalid submission request")
	// ErrNoRecords is returned when the selection is empty.
	ErrNoRecords = errors.New("no records to process")
	// ErrBatchInProgress is returned while another batch holds the browser.
	ErrBatchInProgress = errors.New("a batch is already running")
)

// RecordStore is the slice of the data store a Runner needs.
type RecordStore interface {
	ProcessedMarker
	FindRecords(ctx context.Context, filter schemas.RecordFilter) ([]schemas.InquiryRecord, error)
}

// Batcher runs a batch of records against a form.
type Batcher interface {
	RunBatch(ctx context.Context, records []schemas.InquiryRecord, formURL string) schemas.SubmissionOutcome
}

// Request asks for records to be copied into a form. Empty RecordIDs selects
// every record not yet processed.
type Request struct {
	FormURL   string
	RecordIDs []string
}

// Runner selects records and runs at most one batch at a time.
type Runner struct {
	store   RecordStore
	batcher Batcher
	sem     *semaphore.Weighted
	logger  *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(store RecordStore, batcher Batcher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:   store,
		batcher: batcher,
		sem:     semaphore.NewWeighted(1),
		logger:  logger.Named("runner"),
	}
}

// Run validates req, selects its records and runs the batch.
func (r *Runner) Run(ctx context.Context, req Request) (schemas.SubmissionOutcome, error) {
	formURL, err := validateFormURL(req.FormURL)
	if err != nil {
		return schemas.SubmissionOutcome{}, err
	}

	if !r.sem.TryAcquire(1) {
		return schemas.SubmissionOutcome{}, ErrBatchInProgress
	}
	defer r.sem.Release(1)

	records, err := r.Select(ctx, req.RecordIDs)
	if err != nil {
		return schemas.SubmissionOutcome{}, err
	}
	if len(records) == 0 {
		return schemas.SubmissionOutcome{}, ErrNoRecords
	}

	r.logger.Info("Records selected for submission.", zap.Int("count", len(records)))
	for i, rec := range records {
		r.logger.Info("Selected record.",
			zap.Int("index", i+1),
			zap.String("taxpayer_name", rec.TaxpayerName),
			zap.String("record_id", rec.ID))
	}

	return r.batcher.RunBatch(ctx, records, formURL), nil
}

// Select loads the records a request refers to, oldest first. Unknown ids
// are skipped.
func (r *Runner) Select(ctx context.Context, ids []string) ([]schemas.InquiryRecord, error) {
	filter := schemas.RecordFilter{Order: schemas.OldestFirst}
	if cleaned := uniqueIDs(ids); len(cleaned) > 0 {
		filter.IDs = cleaned
	} else {
		filter.OnlyUnprocessed = true
	}
	records, err := r.store.FindRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateFormURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: form URL is required", ErrInvalidRequest)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: form URL must be an absolute http(s) URL", ErrInvalidRequest)
	}
	return u.String(), nil
}
