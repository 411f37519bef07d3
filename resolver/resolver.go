package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ruteri/kms-env-resolver/cipher"
	"github.com/ruteri/kms-env-resolver/interfaces"
	"github.com/ruteri/kms-env-resolver/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultRegion is used when neither the configuration nor the reference
// names a region.
const DefaultRegion = "us-east-1"

// Config holds the region defaults and concurrency bound of a Resolver.
type Config struct {
	// DefaultRegion is the lowest precedence region. Empty means DefaultRegion.
	DefaultRegion string
	// Region is the configured plugin region, overriding DefaultRegion.
	Region string
	// MaxConcurrency bounds in-flight decryptions per scope, 0 is unbounded.
	MaxConcurrency int
}

// Resolver resolves cipher references against a decryption oracle.
type Resolver struct {
	cfg       Config
	decrypter interfaces.Decrypter
	log       *slog.Logger
	metrics   *metrics.ResolverMetrics
}

// NewResolver creates a resolver. metrics may be nil.
func NewResolver(cfg Config, decrypter interfaces.Decrypter, log *slog.Logger, m *metrics.ResolverMetrics) *Resolver {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = DefaultRegion
	}
	if log == nil {
		log = slog.Default()
	}

	return &Resolver{
		cfg:       cfg,
		decrypter: decrypter,
		log:       log,
		metrics:   m,
	}
}

// RegionFor applies region precedence: the most specific non-empty value wins.
func (r *Resolver) RegionFor(hint string) string {
	if hint != "" {
		return hint
	}
	if r.cfg.Region != "" {
		return r.cfg.Region
	}
	return r.cfg.DefaultRegion
}

// regionForReference is RegionFor, except that an inline reference without a
// region segment always targets the default region.
func (r *Resolver) regionForReference(ref cipher.Reference) string {
	if ref.Kind == cipher.DataURICipher && ref.RegionHint == "" {
		return r.cfg.DefaultRegion
	}
	return r.RegionFor(ref.RegionHint)
}

// ResolveTree resolves the shared scope and every unit scope concurrently.
// Scopes are independent: a failing scope does not stop the others, and scopes
// that succeeded stay resolved even though the tree reports failure.
func (r *Resolver) ResolveTree(ctx context.Context, tree *interfaces.ConfigurationTree) error {
	if tree == nil {
		return nil
	}

	start := time.Now()
	var g errgroup.Group

	g.Go(func() error {
		return r.ResolveScope(ctx, interfaces.SharedScopeName, tree.Shared)
	})
	for _, name := range tree.UnitNames() {
		scope := tree.Units[name]
		g.Go(func() error {
			return r.ResolveScope(ctx, name, scope)
		})
	}

	if err := g.Wait(); err != nil {
		r.log.Error("Failed to resolve configuration tree",
			slog.Int("units", len(tree.Units)),
			slog.Duration("duration", time.Since(start)),
			"err", err)
		return err
	}

	r.log.Debug("Resolved configuration tree",
		slog.Int("units", len(tree.Units)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

type pendingReference struct {
	name string
	ref  cipher.Reference
}

// ResolveScope decrypts every cipher reference in scope and overwrites it with
// its plaintext. An absent or empty scope is a no-op.
//
// Every well-formed reference is dispatched even when another entry failed to
// parse; the returned error joins all parse errors with the first oracle
// failure.
func (r *Resolver) ResolveScope(ctx context.Context, scopeName string, scope interfaces.Scope) error {
	if len(scope) == 0 {
		return nil
	}
	defer r.metrics.ObserveScope(time.Now())

	// Classification runs before any goroutine starts, so the scope is never
	// iterated while it is being written.
	names := make([]string, 0, len(scope))
	for name := range scope {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	pending := make([]pendingReference, 0, len(names))
	for _, name := range names {
		ref, err := cipher.Classify(scope[name])
		if err != nil {
			r.metrics.ObserveParseError(parseErrorLabel(err))
			r.log.Error("Malformed cipher reference",
				slog.String("scope", scopeName),
				slog.String("variable", name),
				"err", err)
			errs = append(errs, fmt.Errorf("scope %s: variable %s: %w", scopeName, name, err))
			continue
		}
		if ref.IsCipher() {
			pending = append(pending, pendingReference{name: name, ref: ref})
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	if r.cfg.MaxConcurrency > 0 {
		g.SetLimit(r.cfg.MaxConcurrency)
	}

	for _, p := range pending {
		g.Go(func() error {
			plaintext, err := r.decrypt(ctx, p.ref)
			if err != nil {
				return fmt.Errorf("scope %s: variable %s: %w", scopeName, p.name, err)
			}

			mu.Lock()
			scope[p.name] = plaintext
			mu.Unlock()

			r.log.Debug("Resolved cipher reference",
				slog.String("scope", scopeName),
				slog.String("variable", p.name),
				slog.String("form", p.ref.Kind.String()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Resolver) decrypt(ctx context.Context, ref cipher.Reference) (string, error) {
	region := r.regionForReference(ref)

	plaintext, err := r.decrypter.Decrypt(ctx, ref.Ciphertext, region)
	r.metrics.ObserveDecrypt(region, err)
	if err != nil {
		r.log.Error("Oracle cannot decrypt value",
			slog.String("region", region),
			slog.String("ciphertext", ref.Ciphertext),
			"err", err)
		if !errors.Is(err, interfaces.ErrOracleFailure) {
			err = fmt.Errorf("%w: %w", interfaces.ErrOracleFailure, err)
		}
		return "", fmt.Errorf("region %s: %w", region, err)
	}
	return plaintext, nil
}

func parseErrorLabel(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrMalformedCipherObject):
		return interfaces.ErrMalformedCipherObject.Error()
	case errors.Is(err, interfaces.ErrMalformedInlineCipher):
		return interfaces.ErrMalformedInlineCipher.Error()
	default:
		return "unknown"
	}
}
