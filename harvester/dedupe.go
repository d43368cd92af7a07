package harvester

import (
	"slices"
	"strings"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// seen is the fold state for Dedupe.
type seen struct {
	ids  map[string]struct{}
	skus map[string]struct{}
}

// admit reports whether p is the first record with its keys and records them.
func (s seen) admit(p models.Product, bySKU bool) bool {
	if _, dup := s.ids[p.Identifier]; dup {
		return false
	}
	if bySKU && p.SKU != "" {
		if _, dup := s.skus[p.SKU]; dup {
			return false
		}
		s.skus[p.SKU] = struct{}{}
	}
	s.ids[p.Identifier] = struct{}{}
	return true
}

// Dedupe keeps the first record per identifier and, when bySKU is set, the
// first record per non-empty SKU. The input is not modified. It returns
// the kept records in input order and the number dropped.
func Dedupe(products []models.Product, bySKU bool) ([]models.Product, int) {
	s := seen{ids: map[string]struct{}{}, skus: map[string]struct{}{}}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if s.admit(p, bySKU) {
			out = append(out, p)
		}
	}
	return out, len(products) - len(out)
}

// Sort orders records by name (case-insensitive), then SKU, then URL.
func Sort(products []models.Product) {
	slices.SortStableFunc(products, Compare)
}

// Compare is the ordering used by Sort.
func Compare(a, b models.Product) int {
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	if c := strings.Compare(a.SKU, b.SKU); c != 0 {
		return c
	}
	return strings.Compare(a.URL, b.URL)
}
