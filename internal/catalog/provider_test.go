package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

type countingFetcher struct {
	calls    int
	catalogs map[string][]Option
	err      error
}

func (f *countingFetcher) FetchCatalog(context.Context, string) (map[string][]Option, error) {
	f.calls++
	return f.catalogs, f.err
}

func TestProvider_FetchesOncePerBranch(t *testing.T) {
	fetcher := &countingFetcher{catalogs: map[string][]Option{
		"plans": {{ID: "p1", Name: "Monthly"}, {ID: "p2", Name: "Annual"}},
		"roles": {{ID: "r1", Name: "Trainer"}},
	}}
	p := NewProvider(fetcher, nil)
	ctx := context.Background()

	plans, err := p.Options(ctx, "north", "plans")
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	roles, err := p.Options(ctx, "north", "roles")
	require.NoError(t, err)
	assert.Len(t, roles, 1)
	assert.Equal(t, 1, fetcher.calls)
}

func TestProvider_BranchChangeEvicts(t *testing.T) {
	fetcher := &countingFetcher{catalogs: map[string][]Option{"plans": {{ID: "p1", Name: "Monthly"}}}}
	p := NewProvider(fetcher, nil)
	ctx := context.Background()

	_, err := p.Options(ctx, "north", "plans")
	require.NoError(t, err)
	_, err = p.Options(ctx, "south", "plans")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)

	// Back to the first branch refetches; only one branch is cached.
	_, err = p.Options(ctx, "north", "plans")
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.calls)
}

func TestProvider_UnknownCatalogName(t *testing.T) {
	fetcher := &countingFetcher{catalogs: map[string][]Option{"plans": nil}}
	p := NewProvider(fetcher, nil)

	_, err := p.Options(context.Background(), "north", "lockers")
	require.Error(t, err)
	var enErr *schema.EnrollError
	require.ErrorAs(t, err, &enErr)
	assert.Equal(t, schema.ErrCodeNotFound, enErr.Code)
	assert.Equal(t, 1, fetcher.calls)
}

func TestProvider_InvalidateRefetches(t *testing.T) {
	fetcher := &countingFetcher{catalogs: map[string][]Option{"plans": {{ID: "p1", Name: "Monthly"}}}}
	p := NewProvider(fetcher, nil)
	ctx := context.Background()

	_, err := p.Options(ctx, "north", "plans")
	require.NoError(t, err)
	p.Invalidate()
	_, err = p.Options(ctx, "north", "plans")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestProvider_OptionsReturnsCopy(t *testing.T) {
	fetcher := &countingFetcher{catalogs: map[string][]Option{"plans": {{ID: "p1", Name: "Monthly"}}}}
	p := NewProvider(fetcher, nil)

	plans, err := p.Options(context.Background(), "north", "plans")
	require.NoError(t, err)
	plans[0].Name = "mutated"

	again, err := p.Options(context.Background(), "north", "plans")
	require.NoError(t, err)
	assert.Equal(t, "Monthly", again[0].Name)
}
