// Package check runs scripted GraphQL requests and asserts on their
// responses with boolean expressions.
//
// A check file is YAML:
//
//	cases:
//	  - name: matrix
//	    query: 'query($n: String!) { movie(name: $n) { released } }'
//	    variables: {n: The Matrix}
//	    expect:
//	      - ok
//	      - data.movie.released == 1999
//
// Expressions see the response as "data" and "errors", plus "ok", which is
// true when the response carries no errors.
package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rlch/moviegraph/graphql"
)

var (
	// ErrExprNotBool is returned when an expectation does not evaluate to a boolean.
	ErrExprNotBool = errors.New("expression did not return a boolean")
	// ErrInvalidFile is returned for a check file that cannot be run.
	ErrInvalidFile = errors.New("invalid check file")
)

// File is a parsed check file.
type File struct {
	Cases []Case `yaml:"cases"`
}

// Case is one request and the expectations on its response.
type Case struct {
	Name          string         `yaml:"name"`
	Query         string         `yaml:"query"`
	OperationName string         `yaml:"operationName,omitempty"`
	Variables     map[string]any `yaml:"variables,omitempty"`
	Expect        []string       `yaml:"expect"`
	Skip          bool           `yaml:"skip,omitempty"`
}

// Read parses a check file.
func Read(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File

	err := dec.Decode(&f)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	seen := make(map[string]bool, len(f.Cases))

	for i, c := range f.Cases {
		switch {
		case c.Name == "":
			return nil, fmt.Errorf("%w: case %d has no name", ErrInvalidFile, i+1)
		case c.Query == "":
			return nil, fmt.Errorf("%w: case %q has no query", ErrInvalidFile, c.Name)
		case seen[c.Name]:
			return nil, fmt.Errorf("%w: duplicate case %q", ErrInvalidFile, c.Name)
		}

		seen[c.Name] = true
	}

	return &f, nil
}

// Load reads the check file at path.
func Load(path string) (*File, error) {
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() { _ = fh.Close() }()

	f, err := Read(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return f, nil
}

// Executor runs one request.
type Executor interface {
	Execute(ctx context.Context, req graphql.Request) *graphql.Response
}

// Status is the outcome of a case.
type Status int

const (
	StatusPass Status = iota
	StatusFail
	StatusSkip
)

func (s Status) String() string {
	switch s {
	case StatusFail:
		return "FAIL"
	case StatusSkip:
		return "SKIP"
	default:
		return "PASS"
	}
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Results  []ExprResult
}

// Failure returns the first expectation that did not hold, or nil.
func (r CaseResult) Failure() *ExprResult {
	return FirstFailure(r.Results)
}

// Result is the outcome of a run.
type Result struct {
	Cases    []CaseResult
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// Ok reports whether no case failed.
func (r *Result) Ok() bool {
	return r.Failed == 0
}

// Runner executes check files.
type Runner struct {
	failFast bool
	filter   *regexp.Regexp
	reporter *Reporter
}

// Option configures a Runner.
type Option func(*Runner)

// WithFailFast stops on the first failing case.
func WithFailFast(enabled bool) Option {
	return func(r *Runner) {
		r.failFast = enabled
	}
}

// WithFilter runs only the cases whose name matches pattern.
func WithFilter(pattern *regexp.Regexp) Option {
	return func(r *Runner) {
		r.filter = pattern
	}
}

// WithReporter prints every case as it finishes.
func WithReporter(rep *Reporter) Option {
	return func(r *Runner) {
		r.reporter = rep
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes every case of f in order. Cases are independent requests;
// mutations in earlier cases are visible to later ones.
func (r *Runner) Run(ctx context.Context, exec Executor, f *File) (*Result, error) {
	start := time.Now()
	result := &Result{}

	for _, c := range f.Cases {
		err := ctx.Err()
		if err != nil {
			return result, err
		}

		cr := r.runCase(ctx, exec, c)
		result.Cases = append(result.Cases, cr)

		switch cr.Status {
		case StatusPass:
			result.Passed++
		case StatusFail:
			result.Failed++
		case StatusSkip:
			result.Skipped++
		}

		if r.reporter != nil {
			r.reporter.Case(cr)
		}

		if r.failFast && cr.Status == StatusFail {
			break
		}
	}

	result.Duration = time.Since(start)

	if r.reporter != nil {
		r.reporter.Summary(result)
	}

	return result, nil
}

func (r *Runner) runCase(ctx context.Context, exec Executor, c Case) CaseResult {
	cr := CaseResult{Name: c.Name}

	if c.Skip || (r.filter != nil && !r.filter.MatchString(c.Name)) {
		cr.Status = StatusSkip

		return cr
	}

	start := time.Now()
	resp := exec.Execute(ctx, graphql.Request{
		Query:         c.Query,
		OperationName: c.OperationName,
		Variables:     c.Variables,
	})
	cr.Duration = time.Since(start)

	cr.Results = EvalExprs(c.Expect, Env(resp), r.failFast)

	cr.Status = StatusPass
	if cr.Failure() != nil {
		cr.Status = StatusFail
	}

	return cr
}

// Env is the expression environment for a response.
func Env(resp *graphql.Response) map[string]any {
	env := resp.Map()
	env["ok"] = len(resp.Errors) == 0

	if resp.Data == nil {
		env["data"] = nil
	}

	return env
}
