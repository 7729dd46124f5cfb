package adapter

import "fmt"

// SingleFactory builds a SingleSeriesAdapter from its declared metadata and
// an opaque parameter bag (the `default_params` map from the sources YAML
// file). The "class" tag YAML names is resolved against a compile-time
// registry; there is no dynamic loading.
type SingleFactory func(md Metadata, params map[string]any) (SingleSeriesAdapter, error)

// MultiFactory is the multi-series analogue, additionally given the group's
// schedule and series definitions (the `request_groups.<id>` YAML entry).
type MultiFactory func(groupID string, schedule string, params map[string]any, series []SeriesDefinition) (MultiSeriesAdapter, error)

var (
	singleFactories = map[string]SingleFactory{}
	multiFactories  = map[string]MultiFactory{}
)

// RegisterSingle adds a single-series adapter factory under tag, callable
// from YAML via `class: <tag>`. Intended to be invoked from each adapter
// implementation's package `init()`.
func RegisterSingle(tag string, f SingleFactory) { singleFactories[tag] = f }

// RegisterMulti adds a multi-series adapter factory under tag.
func RegisterMulti(tag string, f MultiFactory) { multiFactories[tag] = f }

// BuildSingle looks up a registered single-series factory by tag and
// invokes it, returning a descriptive error if the tag is unknown.
func BuildSingle(tag string, md Metadata, params map[string]any) (SingleSeriesAdapter, error) {
	f, ok := singleFactories[tag]
	if !ok {
		return nil, fmt.Errorf("adapter: no single-series factory registered for class %q", tag)
	}
	return f(md, params)
}

// BuildMulti looks up a registered multi-series factory by tag and invokes
// it.
func BuildMulti(tag, groupID, schedule string, params map[string]any, series []SeriesDefinition) (MultiSeriesAdapter, error) {
	f, ok := multiFactories[tag]
	if !ok {
		return nil, fmt.Errorf("adapter: no multi-series factory registered for class %q", tag)
	}
	return f(groupID, schedule, params, series)
}
