package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/aperture-cli/aperture/openapi"
	"github.com/aperture-cli/aperture/spec"
)

func (a *app) specStore() *spec.Store {
	return &spec.Store{Dir: a.mgr.SpecCacheDir()}
}

// specLoader fetches remote specs under the configured request timeout.
func (a *app) specLoader() *openapi.Loader {
	return &openapi.Loader{Timeout: time.Duration(a.cfg.TimeoutSecs()) * time.Second}
}

// loadSpec returns the cached spec for an API, re-deriving it from the
// stored document when the cached form is stale, and applies the user's
// command mapping.
func (a *app) loadSpec(name string) (*spec.CachedSpec, error) {
	cached, err := a.specStore().Load(name)
	if errors.Is(err, spec.ErrStale) {
		slog.Info("cached spec is stale, re-deriving", slog.String("api", name))
		cached, err = a.rederive(name)
	}
	if err != nil {
		return nil, err
	}

	mapping, err := spec.LoadMapping(a.mgr.MappingPath(name))
	if err != nil {
		return nil, err
	}
	warnings, err := mapping.Apply(cached)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	return cached, nil
}

// rederive rebuilds the cached spec from the verbatim stored document and
// persists it.
func (a *app) rederive(name string) (*spec.CachedSpec, error) {
	doc, _, err := a.specLoader().Load(a.mgr.SpecPath(name))
	if err != nil {
		return nil, err
	}
	result, err := openapi.Validate(doc, false)
	if err != nil {
		return nil, err
	}
	cached, err := spec.Transform(doc, spec.TransformOptions{
		Name:     name,
		Skipped:  result.Skipped,
		Warnings: result.Warnings,
	})
	if err != nil {
		return nil, err
	}
	if err := a.specStore().Save(cached); err != nil {
		return nil, err
	}
	return cached, nil
}
