package secret

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const refPrefix = "secretref:"

// Resolver expands configuration values: strict ${VAR} expansion first, then
// secretref:<provider>:<ref> lookups, either as the whole value or inline.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a resolver. In strict mode a provider returning an
// empty value is an error.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Default returns a strict resolver with the env and file providers.
func Default() *Resolver {
	return NewResolver(true, EnvProvider{}, FileProvider{})
}

// Register adds or replaces a provider.
func (r *Resolver) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// Providers returns the registered provider names, sorted.
func (r *Resolver) Providers() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveValue resolves one configuration value. Values without ${...} or
// secretref: are returned unchanged.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.lookup(ctx, provider, ref)
	}
	return r.resolveInline(ctx, expanded)
}

// ResolveMap resolves every value in input. Keys are reported in errors,
// values never are.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]string) (map[string]string, error) {
	if input == nil {
		return nil, nil
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		resolved, err := r.ResolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// Close closes every provider.
func (r *Resolver) Close() error {
	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseSecretRef parses a whole-value reference: secretref:<provider>:<ref>.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, ok = strings.Cut(rest, ":")
	if !ok || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) lookup(ctx context.Context, name, ref string) (string, error) {
	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && v == "" {
		return "", fmt.Errorf("%w from provider %q", ErrEmptySecret, name)
	}
	return v, nil
}

var inlineRefPattern = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// resolveInline replaces references embedded in a longer value, e.g.
// "Bearer secretref:env:TOKEN". Matches are replaced back to front so
// earlier indexes stay valid.
func (r *Resolver) resolveInline(ctx context.Context, value string) (string, error) {
	matches := inlineRefPattern.FindAllStringSubmatchIndex(value, -1)
	out := value
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		v, err := r.lookup(ctx, out[m[2]:m[3]], out[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + v + out[m[1]:]
	}
	return out, nil
}
