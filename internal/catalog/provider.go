package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// Option is one selectable reference-data entry (a membership plan, a staff
// role, a locker size).
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Fetcher retrieves all catalogs for a branch in one call, keyed by catalog
// name. Implemented by transport.Client.
type Fetcher interface {
	FetchCatalog(ctx context.Context, branchID string) (map[string][]Option, error)
}

// Provider serves branch-scoped reference catalogs to wizard hosts. Catalogs
// are fetched once per branch and cached; switching branches evicts the
// previous branch's entries so stale options never populate a select.
type Provider struct {
	fetcher Fetcher
	logger  *slog.Logger

	mu     sync.Mutex
	branch string
	cache  map[string][]Option
}

// NewProvider creates a provider backed by the given fetcher.
func NewProvider(fetcher Fetcher, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{fetcher: fetcher, logger: logger}
}

// Options returns the named catalog for a branch, fetching all of the
// branch's catalogs on first use. An unknown catalog name on a loaded branch
// is NOT_FOUND, not a refetch.
func (p *Provider) Options(ctx context.Context, branchID, name string) ([]Option, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache == nil || p.branch != branchID {
		catalogs, err := p.fetcher.FetchCatalog(ctx, branchID)
		if err != nil {
			return nil, err
		}
		p.branch = branchID
		p.cache = catalogs
		p.logger.DebugContext(ctx, "catalogs loaded",
			slog.String("branch_id", branchID), slog.Int("catalogs", len(catalogs)))
	}

	opts, ok := p.cache[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"no catalog %q for branch %q", name, branchID)
	}
	out := make([]Option, len(opts))
	copy(out, opts)
	return out, nil
}

// Invalidate drops all cached catalogs. The next Options call refetches.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.branch = ""
	p.cache = nil
}
