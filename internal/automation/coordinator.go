package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/api/schemas"
)

const releaseTimeout = 10 * time.Second

// Coordinator drives one session across an ordered batch of records.
type Coordinator struct {
	sessions SessionFactory
	driver   *Driver
	logger   *zap.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(sessions SessionFactory, driver *Driver, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sessions: sessions,
		driver:   driver,
		logger:   logger.Named("coordinator"),
	}
}

// RunBatch submits records in order on a single session and summarizes the result.
// It stops at the first fatal error and always releases the session it acquired.
func (c *Coordinator) RunBatch(ctx context.Context, records []schemas.InquiryRecord, formURL string) (outcome schemas.SubmissionOutcome) {
	total := len(records)
	if total == 0 {
		return schemas.SubmissionOutcome{
			Status:  schemas.OutcomeSuccess,
			Message: "No records to process.",
		}
	}

	log := c.logger.With(zap.String("batch_id", uuid.NewString()), zap.Int("records", total))
	submitted := 0

	defer func() {
		if r := recover(); r != nil {
			log.Error("Batch panicked.", zap.Any("panic", r), zap.Stack("stack"))
			outcome = failureOutcome(submitted, total, fmt.Errorf("internal error: %v", r))
		}
	}()

	log.Info("Starting batch.", zap.String("form_url", formURL))
	session, err := c.sessions.Acquire(ctx, formURL)
	if session != nil {
		defer c.release(ctx, session, log)
	}
	if err != nil {
		log.Error("Could not open browser session.", zap.Error(err))
		return failureOutcome(0, total, err)
	}

	for i, rec := range records {
		ok, err := c.driver.Process(ctx, session, rec, i < total-1)
		if ok {
			submitted++
		}
		if err != nil {
			log.Error("Batch stopped.",
				zap.String("record_id", rec.ID),
				zap.Int("index", i),
				zap.Int("submitted", submitted),
				zap.Error(err))
			return failureOutcome(submitted, total, err)
		}
	}

	log.Info("Batch finished.", zap.Int("submitted", submitted))
	return schemas.SubmissionOutcome{
		Status:         schemas.OutcomeSuccess,
		Message:        fmt.Sprintf("Processing finished: %d of %d records submitted.", submitted, total),
		TotalProcessed: submitted,
		TotalRequested: total,
	}
}

// release closes the session even if the batch context is already done.
func (c *Coordinator) release(ctx context.Context, session Session, log *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		log.Warn("Error while closing browser session.", zap.Error(err))
		return
	}
	log.Debug("Browser session released.")
}

func failureOutcome(submitted, total int, err error) schemas.SubmissionOutcome {
	return schemas.SubmissionOutcome{
		Status:         schemas.OutcomeFailure,
		Message:        fmt.Sprintf("Automation failed after %d of %d records.", submitted, total),
		TotalProcessed: submitted,
		TotalRequested: total,
		ErrorDetail:    err.Error(),
	}
}
