// Package catalog loads SKU defaults from a YAML override file.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/mylife/internal/billing/domain"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/security"
)

const maxCatalogSize = 1 << 20

type file struct {
	SKUs map[string]domain.SKUDefaults `yaml:"skus"`
}

// Load returns the built-in catalog, overlaid with the entries in path when
// path is non-empty. Entries replace built-ins with the same SKU.
func Load(path string) (domain.Catalog, error) {
	catalog := domain.DefaultCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := security.ReadFile(path, maxCatalogSize)
	if err != nil {
		return nil, fmt.Errorf("read sku catalog: %w", err)
	}
	overrides, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("sku catalog %s: %w", path, err)
	}
	for sku, d := range overrides {
		catalog[sku] = d
	}
	return catalog, nil
}

// Parse decodes and validates catalog YAML. Unknown keys are rejected.
func Parse(data []byte) (domain.Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	skus := make([]string, 0, len(f.SKUs))
	for sku := range f.SKUs {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	out := make(domain.Catalog, len(f.SKUs))
	var errs []error
	for _, sku := range skus {
		d := f.SKUs[sku]
		if strings.TrimSpace(sku) == "" {
			errs = append(errs, errors.New("empty sku name"))
			continue
		}
		if d.ModeDefault == "" {
			d.ModeDefault = domain.ModeUnchanged
		}
		if !d.ModeDefault.Valid() {
			errs = append(errs, fmt.Errorf("%s: unsupported modeDefault %q", sku, d.ModeDefault))
		}
		if d.UpdatePackYear != nil && (*d.UpdatePackYear < 2000 || *d.UpdatePackYear > 2100) {
			errs = append(errs, fmt.Errorf("%s: updatePackYear must be between 2000 and 2100", sku))
		}
		out[sku] = d
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
