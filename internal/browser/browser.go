// Package browser pages through the rows of one migrated table.
package browser

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"postgrator/internal/api"
	"postgrator/internal/model"
)

// DefaultPageSize is used when a non-positive page size is requested.
const DefaultPageSize = 100

// RowFetcher fetches one page of table rows.
type RowFetcher interface {
	FetchRows(ctx context.Context, jobID, table string, page, pageSize int) (*model.RowPage, error)
}

// Browser holds the pagination state of a single table. It is safe for
// concurrent use; navigation calls are serialized.
type Browser struct {
	mu sync.Mutex

	fetcher  RowFetcher
	log      logrus.FieldLogger
	jobID    string
	table    string
	pageSize int

	page    int
	total   int64
	current *model.RowPage
}

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets the diagnostics logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Browser) {
		b.log = l
	}
}

// New returns a browser positioned on page 1. Nothing is fetched until FetchPage.
func New(f RowFetcher, jobID, table string, pageSize int, opts ...Option) *Browser {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	b := &Browser{
		fetcher:  f,
		jobID:    jobID,
		table:    table,
		pageSize: pageSize,
		page:     1,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		b.log = l
	}
	b.log = b.log.WithFields(logrus.Fields{"job_id": jobID, "table": table})
	return b
}

// Table returns the browsed table name.
func (b *Browser) Table() string { return b.table }

// PageSize returns the fixed page size.
func (b *Browser) PageSize() int { return b.pageSize }

// FetchPage loads the current page.
func (b *Browser) FetchPage(ctx context.Context) (*model.RowPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetch(ctx, b.page)
}

// Next advances one page. At the last page it is a no-op and reports false.
func (b *Browser) Next(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.canNext() {
		return false, nil
	}
	if _, err := b.fetch(ctx, b.page+1); err != nil {
		return false, err
	}
	return true, nil
}

// Prev goes back one page. At page 1 it is a no-op and reports false.
func (b *Browser) Prev(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page <= 1 {
		return false, nil
	}
	if _, err := b.fetch(ctx, b.page-1); err != nil {
		return false, err
	}
	return true, nil
}

// Goto jumps to page, clamped to at least 1. Pages past the end are
// clamped after the server reports them out of range.
func (b *Browser) Goto(ctx context.Context, page int) (*model.RowPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if page < 1 {
		page = 1
	}
	return b.fetch(ctx, page)
}

// CanNext reports whether a following page exists.
func (b *Browser) CanNext() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canNext()
}

// CanPrev reports whether a previous page exists.
func (b *Browser) CanPrev() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page > 1
}

// TotalPages is ceil(total/pageSize); 0 before the first fetch or for an empty table.
func (b *Browser) TotalPages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return api.TotalPages(b.total, b.pageSize)
}

// Page returns the 1-based current page.
func (b *Browser) Page() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

// Total returns the table's row count as last reported by the server.
func (b *Browser) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Current returns the last successfully fetched page, or nil.
func (b *Browser) Current() *model.RowPage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Browser) canNext() bool {
	return b.page < api.TotalPages(b.total, b.pageSize)
}

// fetch loads page and commits it on success. The position only moves when
// the fetch succeeds, except for the out-of-range clamp.
func (b *Browser) fetch(ctx context.Context, page int) (*model.RowPage, error) {
	rp, err := b.fetcher.FetchRows(ctx, b.jobID, b.table, page, b.pageSize)
	if err == nil {
		b.commit(page, rp)
		return rp, nil
	}
	if !errors.Is(err, api.ErrOutOfRange) {
		return nil, err
	}

	clamped := b.clamp(page, err)
	if clamped == page {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{"page": page, "clamped": clamped}).Debug("page out of range; clamping")
	b.page = clamped
	rp, err = b.fetcher.FetchRows(ctx, b.jobID, b.table, clamped, b.pageSize)
	if err != nil {
		return nil, err
	}
	b.commit(clamped, rp)
	return rp, nil
}

func (b *Browser) commit(page int, rp *model.RowPage) {
	b.page = page
	b.total = rp.Total
	b.current = rp
}

// clamp picks the page to retry after page was rejected. A counted total
// replaces the cached one, an empty table included. Without a count the
// rejected page and everything after it are treated as gone.
func (b *Browser) clamp(page int, err error) int {
	last := api.TotalPages(b.total, b.pageSize)
	var oor *api.OutOfRangeError
	if errors.As(err, &oor) && oor.Counted {
		b.total = oor.Total
		last = api.TotalPages(b.total, b.pageSize)
	} else if last >= page {
		last = page - 1
	}
	if last < 1 {
		last = 1
	}
	switch {
	case page < 1:
		return 1
	case page > last:
		return last
	}
	return page
}
