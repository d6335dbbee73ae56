package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-desk/backend/internal/models"
)

func result(id, name, industry string, services ...string) models.ExtractionResult {
	return models.ExtractionResult{
		CompanyProfile: models.CompanyProfile{
			Name:             name,
			Overview:         name + " has been trading for years.",
			ServiceOfferings: services,
		},
		ID:          id,
		FileName:    id + ".pdf",
		ExtractedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:      models.ResultStatusExtracted,
		Industry:    industry,
	}
}

func openCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	require.NoError(t, c.Index(ctx, result("r1", "Acme Structural", "Engineering", "Structural Engineering")))
	require.NoError(t, c.Index(ctx, result("r2", "Bolt Builders", "Construction", "General Construction")))
	require.NoError(t, c.Index(ctx, result("r3", "Civic Partners", "Professional Services", "Advisory")))

	ids, err := c.Search(ctx, "ENGINEERING")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)

	ids, err = c.Search(ctx, "r2.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, ids)

	ids, err = c.Search(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)

	ids, err = c.Search(ctx, "nothing like this")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndexReplaces(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	require.NoError(t, c.Index(ctx, result("r1", "Old Name", "Construction")))
	require.NoError(t, c.Index(ctx, result("r1", "New Name", "Construction")))

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := c.Search(ctx, "new name")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.Index(ctx, result(id, "Co "+id, "Professional Services")))
	}
	require.NoError(t, c.Remove(ctx, "a", "c", "unknown"))
	require.NoError(t, c.Remove(ctx))

	ids, err := c.Search(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestIndustryCounts(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	require.NoError(t, c.Index(ctx, result("1", "A", "Construction")))
	require.NoError(t, c.Index(ctx, result("2", "B", "Engineering")))
	require.NoError(t, c.Index(ctx, result("3", "C", "Construction")))

	counts, err := c.IndustryCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []IndustryCount{
		{Industry: "Construction", Count: 2},
		{Industry: "Engineering", Count: 1},
	}, counts)
}

func TestEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	counts, err := c.IndustryCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
