package card

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

var (
	// ErrUnknownProvider is returned when a logo is configured for a provider
	// outside weather.KnownProviders.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrEmptyAsset is returned when a logo or the placeholder has no reference.
	ErrEmptyAsset = errors.New("empty asset reference")
)

// LogoCatalog resolves provider identifiers to logo asset references.
// Providers without an entry resolve to the placeholder.
type LogoCatalog struct {
	logos       map[weather.ProviderName]string
	placeholder string
}

// NewLogoCatalog validates logos against the known provider set and returns a catalog.
func NewLogoCatalog(logos map[string]string, placeholder string) (*LogoCatalog, error) {
	if strings.TrimSpace(placeholder) == "" {
		return nil, fmt.Errorf("placeholder logo: %w", ErrEmptyAsset)
	}

	// Sorted so the first reported error is stable.
	names := make([]string, 0, len(logos))
	for name := range logos {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &LogoCatalog{
		logos:       make(map[weather.ProviderName]string, len(logos)),
		placeholder: placeholder,
	}
	for _, name := range names {
		p := weather.ProviderName(name)
		if !p.IsKnown() {
			return nil, fmt.Errorf("logo for %q: %w", name, ErrUnknownProvider)
		}
		asset := strings.TrimSpace(logos[name])
		if asset == "" {
			return nil, fmt.Errorf("logo for %q: %w", name, ErrEmptyAsset)
		}
		c.logos[p] = asset
	}

	return c, nil
}

// Logo returns the asset for p, or the placeholder.
func (c *LogoCatalog) Logo(p weather.ProviderName) string {
	if asset, ok := c.logos[p]; ok {
		return asset
	}
	return c.placeholder
}

// Placeholder returns the fallback asset reference.
func (c *LogoCatalog) Placeholder() string {
	return c.placeholder
}
