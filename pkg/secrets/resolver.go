package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// refPattern matches ${secret:name} references.
var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Default cache settings.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheMaxSize = 64
)

// Resolver looks secrets up in an ordered list of sources and expands
// ${secret:name} references in configuration values.
type Resolver struct {
	sources []Source
	cache   *cache
	logger  *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL sets how long resolved values are reused. Zero disables
// caching.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache.ttl = ttl
	}
}

// WithLogger sets the logger. Secret values are never logged.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver that tries sources in order.
func NewResolver(sources []Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		sources: sources,
		cache:   newCache(DefaultCacheTTL, DefaultCacheMaxSize),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "secrets")
	return r
}

// Get returns the value of the first source holding name. A source failing
// for any reason other than ErrNotFound stops the lookup, so a badly
// protected secret file is reported rather than silently skipped.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if value, ok := r.cache.get(name); ok {
		return value, nil
	}

	for _, src := range r.sources {
		value, err := src.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %q from %s: %w", name, src.Name(), err)
		}

		r.logger.Debug("secret resolved", "name", maskName(name), "source", src.Name())
		r.cache.set(name, value)
		return value, nil
	}

	return "", fmt.Errorf("%w: %q in any source", ErrNotFound, name)
}

// Resolve replaces every ${secret:name} reference in input. Input without
// references is returned unchanged. All unresolvable references are
// reported together.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	var errs []error

	output := refPattern.ReplaceAllStringFunc(input, func(ref string) string {
		name := strings.TrimSpace(refPattern.FindStringSubmatch(ref)[1])
		value, err := r.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return value
	})

	if len(errs) > 0 {
		return "", fmt.Errorf("failed to resolve secret references: %w", errors.Join(errs...))
	}
	return output, nil
}

// Invalidate drops cached values in the resolver and every refreshable
// source, so the next lookup reads the backing store again.
func (r *Resolver) Invalidate() {
	r.cache.clear()
	for _, src := range r.sources {
		if rs, ok := src.(Refreshable); ok {
			rs.Refresh()
		}
	}
}

// HasReferences reports whether s contains a ${secret:name} reference.
func HasReferences(s string) bool {
	return refPattern.MatchString(s)
}

// maskName keeps the ends of a secret name for logs.
func maskName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
