package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testFormURL = "https://docs.google.com/forms/d/e/test/viewform"

func newTestCoordinator(factory *fakeFactory, store *mockStore, opts DriverOptions) *Coordinator {
	driver := NewDriver(opts, store, zap.NewNop())
	driver.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return NewCoordinator(factory, driver, zap.NewNop())
}

func TestCoordinator_EmptyBatchSkipsSession(t *testing.T) {
	factory := &fakeFactory{session: &fakeSession{fakePage: newFakePage()}}
	c := newTestCoordinator(factory, new(mockStore), testOptions())

	out := c.RunBatch(context.Background(), nil, testFormURL)
	assert.Equal(t, schemas.OutcomeSuccess, out.Status)
	assert.Zero(t, out.TotalProcessed)
	assert.Zero(t, factory.acquired)
	assert.Zero(t, factory.session.closeCount)
}

func TestCoordinator_AllSubmitted(t *testing.T) {
	store := new(mockStore)
	for _, id := range []string{"r-1", "r-2", "r-3"} {
		store.On("MarkProcessed", mock.Anything, id).Return(&schemas.InquiryRecord{ID: id, Processed: true}, nil).Once()
	}
	session := &fakeSession{fakePage: newFakePage()}
	factory := &fakeFactory{session: session}
	c := newTestCoordinator(factory, store, testOptions())

	out := c.RunBatch(context.Background(), makeRecords(3), testFormURL)

	assert.Equal(t, schemas.SubmissionOutcome{
		Status:         schemas.OutcomeSuccess,
		Message:        "Processing finished: 3 of 3 records submitted.",
		TotalProcessed: 3,
		TotalRequested: 3,
	}, out)
	assert.Equal(t, 1, factory.acquired)
	assert.Equal(t, []string{testFormURL}, factory.urls)
	assert.Equal(t, 1, session.closeCount)
	assert.Equal(t, 2, session.count("click:#again"), "only the first two records reset the form")
	assert.Equal(t, []string{"Contribuinte 1", "Contribuinte 2", "Contribuinte 3"}, session.typed["#name"])
	store.AssertExpectations(t)

	// Processed flags are written in input order.
	var order []string
	for _, call := range store.Calls {
		order = append(order, call.Arguments.String(1))
	}
	assert.Equal(t, []string{"r-1", "r-2", "r-3"}, order)
}

func TestCoordinator_SubmitControlMissingOnSecondRecord(t *testing.T) {
	store := new(mockStore)
	store.On("MarkProcessed", mock.Anything, "r-1").Return(nil, nil).Once()
	session := &fakeSession{fakePage: newFakePage()}
	session.waitErr = func(sel string, n int) error {
		if sel == "#submit" && n == 2 {
			return errTimeout
		}
		return nil
	}
	factory := &fakeFactory{session: session}
	c := newTestCoordinator(factory, store, testOptions())

	out := c.RunBatch(context.Background(), makeRecords(3), testFormURL)

	assert.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, 1, out.TotalProcessed)
	assert.Equal(t, 3, out.TotalRequested)
	assert.Contains(t, out.ErrorDetail, "SubmitControlNotFoundError")
	assert.Contains(t, out.ErrorDetail, "r-2")
	assert.Equal(t, 1, session.closeCount)
	assert.Equal(t, 2, session.count("wait:#name"), "third record is never started")
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, "r-2")
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, "r-3")
}

func TestCoordinator_CategoryMissingIsNotFatal(t *testing.T) {
	store := new(mockStore)
	store.On("MarkProcessed", mock.Anything, "r-1").Return(nil, nil).Once()
	store.On("MarkProcessed", mock.Anything, "r-2").Return(nil, nil).Once()
	session := &fakeSession{fakePage: newFakePage()}
	session.waitErr = func(sel string, n int) error {
		if sel == "#cat-ir" && n == 1 {
			return errTimeout
		}
		return nil
	}
	factory := &fakeFactory{session: session}
	c := newTestCoordinator(factory, store, testOptions())

	out := c.RunBatch(context.Background(), makeRecords(2), testFormURL)

	assert.Equal(t, schemas.OutcomeSuccess, out.Status)
	assert.Equal(t, 2, out.TotalProcessed)
	assert.Equal(t, 1, session.count("click:#cat-ir"), "category clicked only for the second record")
	assert.Equal(t, 1, session.closeCount)
	store.AssertExpectations(t)
}

func TestCoordinator_SessionInitFailure(t *testing.T) {
	initErr := &StepError{Kind: KindSessionInit, Err: errors.New("navigation timed out")}

	t.Run("partial session is released", func(t *testing.T) {
		session := &fakeSession{fakePage: newFakePage()}
		factory := &fakeFactory{session: session, err: initErr, partial: true}
		c := newTestCoordinator(factory, new(mockStore), testOptions())

		out := c.RunBatch(context.Background(), makeRecords(1), testFormURL)
		assert.Equal(t, schemas.OutcomeFailure, out.Status)
		assert.Zero(t, out.TotalProcessed)
		assert.Contains(t, out.ErrorDetail, "SessionInitError")
		assert.Equal(t, 1, session.closeCount)
		assert.Empty(t, session.calls, "no page interaction on a failed session")
	})

	t.Run("no session to release", func(t *testing.T) {
		factory := &fakeFactory{err: initErr}
		c := newTestCoordinator(factory, new(mockStore), testOptions())

		out := c.RunBatch(context.Background(), makeRecords(1), testFormURL)
		assert.Equal(t, schemas.OutcomeFailure, out.Status)
		assert.Zero(t, out.TotalProcessed)
		assert.Equal(t, 1, factory.acquired)
	})
}

func TestCoordinator_ResetFailureKeepsSubmittedCount(t *testing.T) {
	store := new(mockStore)
	store.On("MarkProcessed", mock.Anything, "r-1").Return(nil, nil).Once()
	session := &fakeSession{fakePage: newFakePage()}
	session.clickErr = func(sel string, _ int) error {
		if sel == "#again" {
			return errors.New("detached node")
		}
		return nil
	}
	c := newTestCoordinator(&fakeFactory{session: session}, store, testOptions())

	out := c.RunBatch(context.Background(), makeRecords(3), testFormURL)
	assert.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, 1, out.TotalProcessed)
	assert.Contains(t, out.ErrorDetail, "ResetControlNotFoundError")
	assert.Equal(t, 1, session.closeCount)
}

func TestCoordinator_PersistenceFailureStillCounts(t *testing.T) {
	store := new(mockStore)
	store.On("MarkProcessed", mock.Anything, "r-1").Return(nil, errors.New("db down")).Once()
	store.On("MarkProcessed", mock.Anything, "r-2").Return(nil, nil).Once()
	session := &fakeSession{fakePage: newFakePage()}
	c := newTestCoordinator(&fakeFactory{session: session}, store, testOptions())

	out := c.RunBatch(context.Background(), makeRecords(2), testFormURL)
	assert.Equal(t, schemas.OutcomeSuccess, out.Status)
	assert.Equal(t, 2, out.TotalProcessed)
	store.AssertExpectations(t)
}

func TestCoordinator_CloseErrorDoesNotChangeOutcome(t *testing.T) {
	store := new(mockStore)
	store.On("MarkProcessed", mock.Anything, "r-1").Return(nil, nil).Once()
	session := &fakeSession{fakePage: newFakePage(), closeErr: errors.New("browser already gone")}
	c := newTestCoordinator(&fakeFactory{session: session}, store, testOptions())

	out := c.RunBatch(context.Background(), makeRecords(1), testFormURL)
	assert.Equal(t, schemas.OutcomeSuccess, out.Status)
	assert.Equal(t, 1, session.closeCount)
}

func TestCoordinator_PanicBecomesFailure(t *testing.T) {
	store := new(mockStore)
	store.On("MarkProcessed", mock.Anything, "r-1").Return(nil, nil).Once()
	session := &fakeSession{fakePage: newFakePage()}
	session.typeErr = func(sel string, n int) error {
		if sel == "#name" && n == 2 {
			panic("unexpected DOM state")
		}
		return nil
	}
	c := newTestCoordinator(&fakeFactory{session: session}, store, testOptions())

	var out schemas.SubmissionOutcome
	require.NotPanics(t, func() {
		out = c.RunBatch(context.Background(), makeRecords(2), testFormURL)
	})
	assert.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, 1, out.TotalProcessed)
	assert.Contains(t, out.ErrorDetail, "unexpected DOM state")
	assert.Equal(t, 1, session.closeCount)
}
