package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/nafauto/api/schemas"
)

var errTimeout = errors.New("timed out")

// fakePage records every primitive call. The fail hooks receive the selector and
// how many times that primitive has been called for it (1-based).
type fakePage struct {
	mu     sync.Mutex
	calls  []string
	counts map[string]int

	waitErr   func(sel string, n int) error
	typeErr   func(sel string, n int) error
	clickErr  func(sel string, n int) error
	settleErr func(n int) error

	typed        map[string][]string
	typeTimeouts []time.Duration
	holds        []time.Duration
}

func newFakePage() *fakePage {
	return &fakePage{counts: map[string]int{}, typed: map[string][]string{}}
}

func (p *fakePage) bump(key string) int {
	p.counts[key]++
	return p.counts[key]
}

func (p *fakePage) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "wait:"+sel)
	n := p.bump("wait:" + sel)
	if p.waitErr != nil {
		return p.waitErr(sel, n)
	}
	return nil
}

func (p *fakePage) Type(_ context.Context, sel, text string, timeout time.Duration, keyDelay func() time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "type:"+sel)
	p.typeTimeouts = append(p.typeTimeouts, timeout)
	n := p.bump("type:" + sel)
	if p.typeErr != nil {
		if err := p.typeErr(sel, n); err != nil {
			return err
		}
	}
	for range text {
		_ = keyDelay()
	}
	p.typed[sel] = append(p.typed[sel], text)
	return nil
}

func (p *fakePage) Click(_ context.Context, sel string, hold time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "click:"+sel)
	p.holds = append(p.holds, hold)
	n := p.bump("click:" + sel)
	if p.clickErr != nil {
		return p.clickErr(sel, n)
	}
	return nil
}

func (p *fakePage) WaitSettled(_ context.Context, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "settle")
	n := p.bump("settle")
	if p.settleErr != nil {
		return p.settleErr(n)
	}
	return nil
}

func (p *fakePage) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[key]
}

type fakeSession struct {
	*fakePage
	closeCount int
	closeErr   error
}

func (s *fakeSession) Close(context.Context) error {
	s.closeCount++
	return s.closeErr
}

type fakeFactory struct {
	session  *fakeSession
	err      error
	partial  bool
	acquired int
	urls     []string
}

func (f *fakeFactory) Acquire(_ context.Context, formURL string) (Session, error) {
	f.acquired++
	f.urls = append(f.urls, formURL)
	if f.err != nil {
		if f.partial && f.session != nil {
			return f.session, f.err
		}
		return nil, f.err
	}
	return f.session, nil
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) MarkProcessed(ctx context.Context, id string) (*schemas.InquiryRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*schemas.InquiryRecord)
	return rec, args.Error(1)
}

func (m *mockStore) FindRecords(ctx context.Context, filter schemas.RecordFilter) ([]schemas.InquiryRecord, error) {
	args := m.Called(ctx, filter)
	recs, _ := args.Get(0).([]schemas.InquiryRecord)
	return recs, args.Error(1)
}

func testFieldMap() FieldMap {
	return FieldMap{
		Name:            "#name",
		IDNumber:        "#cpf",
		Detail:          "#detail",
		Submit:          "#submit",
		SubmitAnother:   "#again",
		CategoryOptions: map[string]string{"imposto de renda": "#cat-ir"},
		DefaultCategory: "#cat-ir",
	}
}

func testOptions() DriverOptions {
	return DriverOptions{
		FieldMap:           testFieldMap(),
		Timeouts:           DefaultTimeouts(),
		Jitter:             NoJitter{},
		TolerateAckTimeout: true,
		DetailPlaceholder:  "Sem descrição.",
	}
}

func makeRecords(n int) []schemas.InquiryRecord {
	recs := make([]schemas.InquiryRecord, n)
	for i := range recs {
		recs[i] = schemas.InquiryRecord{
			ID:               fmt.Sprintf("r-%d", i+1),
			TaxpayerName:     fmt.Sprintf("Contribuinte %d", i+1),
			TaxpayerIDNumber: fmt.Sprintf("000.000.000-0%d", i+1),
			Category:         "Imposto de Renda",
			Detail:           fmt.Sprintf("Dúvida %d", i+1),
			AssignedStaff:    schemas.DefaultAssignedStaff,
		}
	}
	return recs
}
