// Package catalog provides read-only product lookups by SKU.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"realtime-commerce-assistant/internal/models"
)

//go:embed products.json
var embeddedProducts []byte

var ErrDuplicateSKU = errors.New("duplicate sku in catalog")

// Catalog is an immutable, in-memory product list keyed by SKU.
type Catalog struct {
	bySKU map[string]models.Product
	skus  []string
}

// New builds a catalog from products. SKUs are matched case-insensitively.
func New(products []models.Product) (*Catalog, error) {
	c := &Catalog{bySKU: make(map[string]models.Product, len(products))}
	for _, p := range products {
		key := normalizeSKU(p.SKU)
		if key == "" {
			return nil, fmt.Errorf("product %q has no sku", p.Name)
		}
		if _, exists := c.bySKU[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSKU, p.SKU)
		}
		c.bySKU[key] = p
		c.skus = append(c.skus, p.SKU)
	}
	sort.Strings(c.skus)
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(embeddedProducts)
}

// Load reads a JSON product list from path, or the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of products.
func Parse(data []byte) (*Catalog, error) {
	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(products)
}

// Lookup returns the product with the given SKU.
func (c *Catalog) Lookup(sku string) (models.Product, bool) {
	p, ok := c.bySKU[normalizeSKU(sku)]
	return p, ok
}

// SKUs returns all SKUs in sorted order.
func (c *Catalog) SKUs() []string {
	return append([]string(nil), c.skus...)
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.bySKU)
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
