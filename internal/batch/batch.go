// Package batch runs one action against many targets with bounded
// concurrency. A failing target never stops the others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default concurrency per kind of work.
const (
	DefaultReadConcurrency   = 5
	DefaultWriteConcurrency  = 4
	DefaultUpdateConcurrency = 2
)

// Outcome of one target.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Failure {
		return "failure"
	}
	return "success"
}

// Action is the work done for one target.
type Action func(ctx context.Context, target string) error

// Result is the outcome for one target.
type Result struct {
	Target   string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Summary collects the results of a batch in target order.
type Summary struct {
	Results []Result
	Failed  int
}

// Err returns a *PartialFailureError if any target failed.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	pf := &PartialFailureError{Failed: s.Failed, Total: len(s.Results)}
	for _, r := range s.Results {
		if r.Outcome == Failure {
			pf.Errors = append(pf.Errors, r.Err)
		}
	}
	return pf
}

// Failures returns the targets that failed, in order.
func (s Summary) Failures() []string {
	var out []string
	for _, r := range s.Results {
		if r.Outcome == Failure {
			out = append(out, r.Target)
		}
	}
	return out
}

// PartialFailureError reports that some targets of a batch failed.
type PartialFailureError struct {
	Failed int
	Total  int
	Errors []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d of %d targets failed", e.Failed, e.Total)
}

func (e *PartialFailureError) Unwrap() []error {
	return e.Errors
}

// Run calls action for every target, at most concurrency at a time, and
// waits for all of them. Each target's error or panic is captured in its
// own Result.
func Run(ctx context.Context, targets []string, concurrency int, action Action) Summary {
	if concurrency <= 0 {
		concurrency = max(len(targets), 1)
	}

	results := make([]Result, len(targets))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = runOne(ctx, target, action)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Results: results}
	for _, r := range results {
		if r.Outcome == Failure {
			summary.Failed++
		}
	}
	return summary
}

func runOne(ctx context.Context, target string, action Action) (res Result) {
	start := time.Now()
	res = Result{Target: target, Outcome: Success}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = Failure
			res.Err = fmt.Errorf("%s: panic: %v", target, r)
		}
		res.Duration = time.Since(start)
	}()

	if err := action(ctx, target); err != nil {
		res.Outcome = Failure
		res.Err = err
	}
	return res
}

// Dedupe drops repeated targets, keeping first occurrences in order.
func Dedupe(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// IsPartialFailure reports whether err is a *PartialFailureError.
func IsPartialFailure(err error) bool {
	var pf *PartialFailureError
	return errors.As(err, &pf)
}
