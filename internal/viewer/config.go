package viewer

import (
	"fmt"
	"net/url"
	"slices"

	"multiangle-viewer/internal/platform/config"
)

// Deep link query parameters.
const (
	QueryURI       = "uri"
	QueryBackend   = "backend"
	QueryEdgeAuth  = "edgeauth"
	QueryStreamIDs = "streamIDs"
	QueryActs      = "acts"
)

// Configuration is the set of launch parameters a session is built from.
// Acts are kept raw so two configurations compare exactly as launched.
type Configuration struct {
	URI       string   `json:"uri"`
	Backend   string   `json:"backend"`
	EdgeAuth  string   `json:"edgeauth,omitempty"`
	StreamIDs []string `json:"streamIDs"`
	Acts      []string `json:"acts"`
}

// Equal reports whether c and o launch the same session.
func (c Configuration) Equal(o Configuration) bool {
	return c.URI == o.URI &&
		c.Backend == o.Backend &&
		c.EdgeAuth == o.EdgeAuth &&
		slices.Equal(c.StreamIDs, o.StreamIDs) &&
		slices.Equal(c.Acts, o.Acts)
}

// Validate checks that the configuration can start a session.
func (c Configuration) Validate() error {
	if len(c.StreamIDs) == 0 {
		return fmt.Errorf("%w: no stream ids", ErrDeepLinkInvalid)
	}
	for _, id := range c.StreamIDs {
		if id == "" {
			return fmt.Errorf("%w: empty stream id", ErrDeepLinkInvalid)
		}
	}
	if c.Backend == "" {
		return fmt.Errorf("%w: no backend", ErrDeepLinkInvalid)
	}
	for _, raw := range []string{c.URI, c.Backend} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("%w: %q is not a url", ErrDeepLinkInvalid, raw)
		}
	}
	_, err := c.ParsedActs()
	return err
}

// ParsedActs parses the raw acts in order.
func (c Configuration) ParsedActs() ([]Act, error) {
	return ParseActs(c.Acts)
}

// ParseDeepLink builds a configuration from deep link query parameters.
// Parameters that are absent fall back to defaults; list parameters are
// comma-separated.
func ParseDeepLink(query url.Values, defaults Configuration) (Configuration, error) {
	cfg := Configuration{
		URI:       defaults.URI,
		Backend:   defaults.Backend,
		EdgeAuth:  defaults.EdgeAuth,
		StreamIDs: slices.Clone(defaults.StreamIDs),
		Acts:      slices.Clone(defaults.Acts),
	}
	if query.Has(QueryURI) {
		cfg.URI = query.Get(QueryURI)
	}
	if query.Has(QueryBackend) {
		cfg.Backend = query.Get(QueryBackend)
	}
	if query.Has(QueryEdgeAuth) {
		cfg.EdgeAuth = query.Get(QueryEdgeAuth)
	}
	if query.Has(QueryStreamIDs) {
		cfg.StreamIDs = config.SplitList(query.Get(QueryStreamIDs))
	}
	if query.Has(QueryActs) {
		cfg.Acts = config.SplitList(query.Get(QueryActs))
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}
