package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"globalroute/internal/classifier"
)

// DefaultTimeout bounds one classifier call.
const DefaultTimeout = 8 * time.Second

// Outcome tells how a Resolution was reached.
type Outcome string

const (
	// Skipped: both flags were ignore, the classifier was not consulted.
	Skipped Outcome = "skipped"
	// Classified: the classifier (or the cache) answered.
	Classified Outcome = "classified"
	// FailOpen: the classifier failed; the policy is empty.
	FailOpen Outcome = "fail_open"
)

// Resolution is the result of Resolve. Err is set only for FailOpen and is
// informational; callers proceed with Policy regardless.
type Resolution struct {
	Policy  Policy
	Outcome Outcome
	Cached  bool
	Err     error
}

// Observer receives one call per Resolve.
type Observer interface {
	ObserveClassification(outcome Outcome, cached bool, d time.Duration)
}

// Options tune a Resolver.
type Options struct {
	Timeout  time.Duration
	Cache    Cache
	Observer Observer
}

// Resolver resolves country policies. Safe for concurrent use.
type Resolver struct {
	classifier classifier.Classifier
	opts       Options
	log        *zap.Logger
}

// NewResolver wraps c. A nil classifier makes every consulting flag
// combination fail open.
func NewResolver(c classifier.Classifier, opts Options, log *zap.Logger) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{classifier: c, opts: opts, log: log}
}

// Resolve never fails: classifier errors, timeouts and malformed output all
// produce an empty policy with Outcome FailOpen.
func (r *Resolver) Resolve(ctx context.Context, description string, pf ProhibitedFlag, rf RestrictedFlag) Resolution {
	rule := Lookup(pf, rf)
	if !rule.NeedsClassifier() {
		return Resolution{Policy: Empty(), Outcome: Skipped}
	}

	start := time.Now()
	res, cached, err := r.classify(ctx, description)
	if r.opts.Observer != nil {
		defer func() {
			outcome := Classified
			if err != nil {
				outcome = FailOpen
			}
			r.opts.Observer.ObserveClassification(outcome, cached, time.Since(start))
		}()
	}
	if err != nil {
		r.log.Warn("classifier failed; continuing without country policy",
			zap.Error(err),
			zap.String("prohibited_flag", string(pf)),
			zap.String("restricted_flag", string(rf)),
		)
		return Resolution{Policy: Empty(), Outcome: FailOpen, Err: err}
	}
	return Resolution{Policy: Combine(rule, res), Outcome: Classified, Cached: cached}
}

func (r *Resolver) classify(ctx context.Context, description string) (classifier.Result, bool, error) {
	if r.classifier == nil {
		return classifier.Result{}, false, classifier.ErrNotConfigured
	}
	key := CacheKey(description)
	if r.opts.Cache != nil {
		if res, ok, err := r.opts.Cache.Get(ctx, key); err != nil {
			r.log.Debug("classification cache get", zap.Error(err))
		} else if ok {
			return res, true, nil
		}
	}

	res, err := r.call(ctx, description)
	if err != nil {
		return classifier.Result{}, false, err
	}
	if r.opts.Cache != nil {
		if err := r.opts.Cache.Set(ctx, key, res); err != nil {
			r.log.Debug("classification cache set", zap.Error(err))
		}
	}
	return res, false, nil
}

type callResult struct {
	res classifier.Result
	err error
}

// call returns once the classifier answers or the timeout elapses, even if
// the classifier ignores its context.
func (r *Resolver) call(ctx context.Context, description string) (res classifier.Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- callResult{err: fmt.Errorf("classifier panic: %v", p)}
			}
		}()
		res, err := r.classifier.Classify(ctx, description)
		done <- callResult{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return classifier.Result{}, fmt.Errorf("classifier timed out after %s: %w", r.opts.Timeout, ctx.Err())
		}
		return classifier.Result{}, ctx.Err()
	}
}

// CacheKey derives the cache key of a description.
func CacheKey(description string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(description))))
	return "classify:" + hex.EncodeToString(sum[:16])
}
