// Package refdata supplies option lists for select fields (states,
// districts, crops) keyed by source name and the value of a parent field.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSource is returned for sources a provider does not serve.
var ErrUnknownSource = errors.New("refdata: unknown source")

// Option is one selectable value.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Provider lists the options of source. parentKey is the current value of
// the parent field, or "" for top-level lists.
type Provider interface {
	List(ctx context.Context, source, parentKey string) ([]Option, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, source, parentKey string) ([]Option, error)

// List calls fn.
func (fn ProviderFunc) List(ctx context.Context, source, parentKey string) ([]Option, error) {
	return fn(ctx, source, parentKey)
}

// Contains reports whether value is one of options.
func Contains(options []Option, value string) bool {
	for _, option := range options {
		if option.Value == value {
			return true
		}
	}
	return false
}

// Static serves lists held in memory: source -> parent key -> options.
type Static map[string]map[string][]Option

var _ Provider = Static(nil)

// List returns a copy of the list. A known source with no entry for
// parentKey yields an empty list.
func (s Static) List(ctx context.Context, source, parentKey string) ([]Option, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	byParent, ok := s[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return append([]Option(nil), byParent[parentKey]...), nil
}

// Sources lists the source names, sorted.
func (s Static) Sources() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ParseYAML decodes a Static document:
//
//	states:
//	  "":
//	    - {value: TS, label: Telangana}
//	districts:
//	  TS:
//	    - {value: WGL, label: Warangal}
func ParseYAML(data []byte) (Static, error) {
	var out Static
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("refdata: decode yaml: %w", err)
	}
	if out == nil {
		out = Static{}
	}
	return out, nil
}

// Chain asks each provider in turn and returns the first list from a
// provider that knows source. Errors other than ErrUnknownSource stop the
// lookup.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context, source, parentKey string) ([]Option, error) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			options, err := p.List(ctx, source, parentKey)
			if errors.Is(err, ErrUnknownSource) {
				continue
			}
			return options, err
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	})
}
