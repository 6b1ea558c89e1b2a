//go:build ruleguard

// Package gorules defines linter rules for cedar-go, run through
// golangci-lint's gocritic ruleguard checker.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StdErrors flags the standard errors package outside internal/errors.
// internal/errors re-exports Is, As and Join, and its builder attaches the
// component and category that errors.IsValidation and friends test.
func StdErrors(m dsl.Matcher) {
	m.Match(`errors.New($msg)`, `errors.Is($*_)`, `errors.As($*_)`).
		Where(m.File().Imports("errors") &&
			m.File().PkgPath.Matches(`/internal/`) &&
			!m.File().PkgPath.Matches(`/internal/errors$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("import github.com/tphakala/cedar-go/internal/errors instead of the standard errors package")
}

// WaitGroupGo detects the manual Add/Done pattern.
//
// See: https://pkg.go.dev/sync#WaitGroup.Go
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Underlying().Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern").
		Suggest("$wg.Go(func() { $body })")
}

// TestingContext suggests t.Context() over context.Background() in tests.
func TestingContext(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests so work is cancelled when the test ends")
}

// TickerInLoop flags time.After inside loops, which allocates a timer per
// iteration.
func TickerInLoop(m dsl.Matcher) {
	m.Match(`for { select { case <-time.After($d): $*_ } }`,
		`for $*_ { select { case <-time.After($d): $*_ } }`).
		Report("time.After in a loop allocates a timer per iteration; use time.NewTicker or a reused time.Timer")
}
