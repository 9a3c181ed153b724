package catalog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/shopmate/internal/models"
	"github.com/xhad/shopmate/pkg/catalog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const sampleCatalog = `[
  {"id": 5, "product_code": "PID042", "name": "Storm Shell Jacket", "price": 129.5, "category": "Outerwear", "stock": 4},
  {"id": "7", "product_code": "PID107", "name": "Trail Boots", "imageUrl": "https://img.example.com/boots.png"},
  {"id": "9", "product_code": "SKU-9", "name": "Wool Scarf"},
  {"id": "", "product_code": "PID999", "name": "Orphan"}
]`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadCatalog(t *testing.T, content string) *catalog.Catalog {
	t.Helper()
	c := catalog.New(writeCatalog(t, content), nil)
	require.NoError(t, c.Load())
	return c
}

func TestCodeMapPIDSpellings(t *testing.T) {
	codes := catalog.BuildCodeMap([]models.Product{{ID: "5", ProductCode: "PID042"}})

	assert.Equal(t, "5", codes["PID042"])
	assert.Equal(t, "5", codes["042"])
	assert.Equal(t, "5", codes["5"])
	assert.Len(t, codes, 3)
}

func TestCodeMapHasNoDanglingIDs(t *testing.T) {
	catalogs := [][]models.Product{
		nil,
		{{ID: "a"}},
		{{ID: "1", ProductCode: "PID001"}, {ID: "2", ProductCode: "PID002"}, {ID: "3", ProductCode: "X-3"}},
		{{ID: "", ProductCode: "PID100"}, {ID: "4", ProductCode: "PIDX"}},
		{{ID: "1", ProductCode: "PID001"}, {ID: "2", ProductCode: "PID001"}},
	}

	for _, products := range catalogs {
		ids := map[string]bool{}
		for _, p := range products {
			ids[p.ID] = true
		}
		for key, id := range catalog.BuildCodeMap(products) {
			assert.NotEmpty(t, id, "key %q", key)
			assert.True(t, ids[id], "key %q maps to unknown id %q", key, id)
		}
	}
}

func TestCodeMapNonNumericSuffixNotRegistered(t *testing.T) {
	codes := catalog.BuildCodeMap([]models.Product{{ID: "4", ProductCode: "PIDX"}})
	_, ok := codes["X"]
	assert.False(t, ok)
	assert.Equal(t, "4", codes["PIDX"])
}

func TestLoad(t *testing.T) {
	c := loadCatalog(t, sampleCatalog)

	products := c.Products()
	require.Len(t, products, 4)
	assert.Equal(t, "5", products[0].ID)
	assert.Equal(t, models.PlaceholderImageURL, products[0].ImageURL)
	assert.Equal(t, "https://img.example.com/boots.png", products[1].ImageURL)

	id, ok := c.Resolve("042")
	assert.True(t, ok)
	assert.Equal(t, "5", id)

	id, ok = c.Resolve("SKU-9")
	assert.True(t, ok)
	assert.Equal(t, "9", id)

	_, ok = c.Resolve("PID999")
	assert.False(t, ok)

	// lookups are case sensitive
	_, ok = c.Resolve("pid042")
	assert.False(t, ok)
}

func TestLoadBootstrapsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "products.json")
	core, logs := observer.New(zapcore.WarnLevel)
	c := catalog.New(path, zap.New(core))

	require.NoError(t, c.Load())
	assert.Equal(t, catalog.DefaultProducts(), c.Products())
	assert.Equal(t, 1, logs.FilterMessage("catalog file missing, writing default catalog").Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored []models.Product
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "prod_001", stored[0].ID)
}

func TestLoadMalformedKeepsPrevious(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c := catalog.New(path, nil)
	require.NoError(t, c.Load())

	require.NoError(t, os.WriteFile(path, []byte(`[{"id": `), 0o644))
	assert.Error(t, c.Load())

	id, ok := c.Resolve("PID107")
	assert.True(t, ok)
	assert.Equal(t, "7", id)
}

func TestReloadReplacesMap(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c := catalog.New(path, nil)
	require.NoError(t, c.Load())
	before := c.CodeMap()

	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "11", "product_code": "PID011"}]`), 0o644))
	require.NoError(t, c.Load())

	_, ok := c.Resolve("PID042")
	assert.False(t, ok)
	id, ok := c.Resolve("011")
	assert.True(t, ok)
	assert.Equal(t, "11", id)

	// the earlier map is untouched
	assert.Equal(t, "5", before["PID042"])
}

func TestFind(t *testing.T) {
	c := loadCatalog(t, sampleCatalog)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"by id", "7", "7"},
		{"by code any case", "pid042", "5"},
		{"partial code", "107", "7"},
		{"partial name", "scarf", "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := c.Find(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}

	_, err := c.Find("umbrella")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = c.Find("  ")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
