package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
	"github.com/tejusbharadwaj/gatewaydash/internal/models"
)

// Phase is the state of the analysis browser.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseLoaded  Phase = "loaded"
)

// AnalysisLister is the part of the gateway used by the analysis browser.
type AnalysisLister interface {
	ListAnalysis(ctx context.Context, page, pageSize int) (*models.AnalysisPage, error)
}

// AnalysisBrowser pages through analysis records.
//
// Every load is tagged with a monotonic sequence number and only the
// response of the latest issued load is applied; earlier responses are
// dropped when they arrive.
type AnalysisBrowser struct {
	gateway         AnalysisLister
	recordingPrefix string
	hooks           hooks

	mu         sync.Mutex
	phase      Phase
	page       int
	totalCount int
	records    []models.AnalysisRecord
	err        string
	seq        uint64
}

// AnalysisView is an immutable copy of the browser. Records is empty unless
// Phase is PhaseLoaded.
type AnalysisView struct {
	Phase      Phase       `json:"phase"`
	Pagination Pagination  `json:"pagination"`
	TotalPages int         `json:"totalPages"`
	HasPrev    bool        `json:"hasPrev"`
	HasNext    bool        `json:"hasNext"`
	Records    []RecordRow `json:"records"`
	Error      string      `json:"error,omitempty"`
}

func newAnalysisBrowser(gw AnalysisLister, prefix string, h hooks) *AnalysisBrowser {
	return &AnalysisBrowser{
		gateway:         gw,
		recordingPrefix: prefix,
		hooks:           h,
		phase:           PhaseLoading,
		page:            1,
	}
}

// Load fetches the current page.
func (b *AnalysisBrowser) Load(ctx context.Context) {
	b.mu.Lock()
	page := b.page
	b.mu.Unlock()
	b.load(ctx, page)
}

// Next moves one page forward. It is a no-op on the last page.
func (b *AnalysisBrowser) Next(ctx context.Context) bool {
	b.mu.Lock()
	if b.page >= TotalPages(b.totalCount, PageSize) {
		b.mu.Unlock()
		return false
	}
	target := b.page + 1
	b.mu.Unlock()

	b.load(ctx, target)
	return true
}

// Prev moves one page back. It is a no-op on the first page.
func (b *AnalysisBrowser) Prev(ctx context.Context) bool {
	b.mu.Lock()
	if b.page <= 1 {
		b.mu.Unlock()
		return false
	}
	target := b.page - 1
	b.mu.Unlock()

	b.load(ctx, target)
	return true
}

// GoTo jumps to page, clamped to the known page range. Jumping to the
// current page does nothing.
func (b *AnalysisBrowser) GoTo(ctx context.Context, page int) bool {
	b.mu.Lock()
	target := ClampPage(page, TotalPages(b.totalCount, PageSize))
	if target == b.page {
		b.mu.Unlock()
		return false
	}
	b.mu.Unlock()

	b.load(ctx, target)
	return true
}

func (b *AnalysisBrowser) load(ctx context.Context, page int) {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.page = page
	b.phase = PhaseLoading
	b.records = nil
	b.err = ""
	b.mu.Unlock()

	start := time.Now()
	result, err := b.gateway.ListAnalysis(ctx, page, PageSize)

	b.mu.Lock()
	if seq != b.seq {
		latest := b.seq
		b.mu.Unlock()
		b.hooks.logger.WithFields(logrus.Fields{
			"view":   ViewAnalysis,
			"page":   page,
			"seq":    seq,
			"latest": latest,
		}).Debug("Discarding stale analysis response")
		b.hooks.metrics.ObserveFetch(ViewAnalysis, metrics.OutcomeStale, time.Since(start))
		return
	}

	if err != nil {
		b.phase = PhaseError
		b.err = MsgAnalysisFailed
		b.mu.Unlock()
		b.hooks.synced(ViewAnalysis, start, err)
		return
	}

	b.phase = PhaseLoaded
	b.records = result.Records
	b.totalCount = result.TotalCount
	clamped := ClampPage(b.page, TotalPages(b.totalCount, PageSize))
	b.mu.Unlock()
	b.hooks.synced(ViewAnalysis, start, nil)

	// The listing shrank below the current page.
	if clamped != page {
		b.load(ctx, clamped)
	}
}

// Snapshot returns a copy of the browser state.
func (b *AnalysisBrowser) Snapshot() AnalysisView {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := Pagination{Page: b.page, PageSize: PageSize, TotalCount: b.totalCount}
	v := AnalysisView{
		Phase:      b.phase,
		Pagination: p,
		TotalPages: p.TotalPages(),
		HasPrev:    p.HasPrev(),
		HasNext:    p.HasNext(),
		Records:    []RecordRow{},
		Error:      b.err,
	}
	if b.phase == PhaseLoaded {
		v.Records = rows(b.records, b.recordingPrefix)
	}
	return v
}
