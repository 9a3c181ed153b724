// Package catalog loads the product catalog and resolves every accepted
// spelling of a product identifier to its canonical id.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("product not found")

var pidPattern = regexp.MustCompile(`^PID(\d+)$`)

// CodeMap maps an identifier spelling to a canonical product id.
type CodeMap map[string]string

// BuildCodeMap registers, for every product, its id, its product code and,
// for codes shaped like PID042, the digits alone. Products without an id are
// skipped so that no key points at a missing product.
func BuildCodeMap(products []models.Product) CodeMap {
	codes := make(CodeMap, len(products)*3)
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		codes[p.ID] = p.ID
		if p.ProductCode == "" {
			continue
		}
		codes[p.ProductCode] = p.ID
		if m := pidPattern.FindStringSubmatch(p.ProductCode); m != nil {
			codes[m[1]] = p.ID
		}
	}
	return codes
}

// DefaultProducts is written out when no catalog file exists yet.
func DefaultProducts() []models.Product {
	return []models.Product{{
		ID:          "prod_001",
		Name:        "Sample Product",
		Description: "This is a sample product",
		Price:       9.99,
		Category:    "Sample",
		Stock:       100,
		ImageURL:    models.PlaceholderImageURL,
	}}
}

type snapshot struct {
	products []models.Product
	codes    CodeMap
}

// Catalog holds the most recently loaded products and their CodeMap. A reload
// swaps both at once, so readers see either the old catalog or the new one.
type Catalog struct {
	path   string
	logger *zap.Logger
	state  atomic.Pointer[snapshot]
}

func New(path string, logger *zap.Logger) *Catalog {
	c := &Catalog{
		path:   path,
		logger: logging.OrNop(logger),
	}
	c.state.Store(&snapshot{codes: CodeMap{}})
	return c
}

// Load reads the catalog file, creating it with DefaultProducts when missing.
// A file that cannot be parsed leaves the previous catalog in place.
func (c *Catalog) Load() error {
	products, err := c.read()
	if err != nil {
		return err
	}

	for i := range products {
		if products[i].ImageURL == "" {
			products[i].ImageURL = models.PlaceholderImageURL
		}
		if products[i].ID == "" {
			c.logger.Warn("skipping product without id", zap.String("name", products[i].Name))
		}
	}

	c.state.Store(&snapshot{products: products, codes: BuildCodeMap(products)})
	c.logger.Debug("catalog loaded", zap.String("path", c.path), zap.Int("products", len(products)))
	return nil
}

func (c *Catalog) read() ([]models.Product, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("catalog file missing, writing default catalog", zap.String("path", c.path))
		products := DefaultProducts()
		if err := c.write(products); err != nil {
			c.logger.Warn("could not write default catalog", zap.Error(err))
		}
		return products, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", c.path, err)
	}
	return products, nil
}

func (c *Catalog) write(products []models.Product) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Resolve looks up a spelling exactly as given.
func (c *Catalog) Resolve(spelling string) (string, bool) {
	id, ok := c.state.Load().codes[spelling]
	return id, ok
}

// CodeMap returns the current map. Callers must not modify it.
func (c *Catalog) CodeMap() CodeMap {
	return c.state.Load().codes
}

func (c *Catalog) Products() []models.Product {
	products := c.state.Load().products
	out := make([]models.Product, len(products))
	copy(out, products)
	return out
}

// Find matches a product by id or case-insensitive product code, then by a
// partial match on code or name.
func (c *Catalog) Find(query string) (models.Product, error) {
	products := c.state.Load().products
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return models.Product{}, ErrNotFound
	}

	for _, p := range products {
		if p.ID == query || (p.ProductCode != "" && strings.ToLower(p.ProductCode) == q) {
			return p, nil
		}
	}
	for _, p := range products {
		if p.ProductCode != "" && strings.Contains(strings.ToLower(p.ProductCode), q) {
			return p, nil
		}
		if strings.Contains(strings.ToLower(p.Name), q) {
			return p, nil
		}
	}
	return models.Product{}, fmt.Errorf("%w: %s", ErrNotFound, query)
}
