// Package graphql executes GraphQL requests against a resolver registry.
//
// Execution is breadth-first. Every level of the response tree is planned
// before anything at that level is resolved, so all sibling instances of a
// batch-registered field are known when its batch resolver is called: a
// field selected under a list of N parents costs one call, not N.
package graphql

import (
	"context"
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request is a GraphQL request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Executor runs requests against a schema and a resolver registry.
type Executor struct {
	schema      *ast.Schema
	registry    *Registry
	logger      *zap.Logger
	concurrency int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithConcurrency bounds how many resolvers run at once within a level.
// Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		e.concurrency = n
	}
}

// NewExecutor creates an Executor. It fails if the registry references
// types, fields or scalars that are not in the schema.
func NewExecutor(schema *ast.Schema, registry *Registry, opts ...Option) (*Executor, error) {
	err := registry.Check(schema)
	if err != nil {
		return nil, err
	}

	e := &Executor{
		schema:   schema,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Schema returns the executor's schema.
func (e *Executor) Schema() *ast.Schema {
	return e.schema
}

// OperationType returns the type of the operation a request would run
// ("query", "mutation"), or "" if the request does not parse.
func (e *Executor) OperationType(req Request) string {
	doc, errs := gqlparser.LoadQuery(e.schema, req.Query)
	if len(errs) > 0 {
		return ""
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return ""
	}

	return string(op.Operation)
}

// Execute parses, validates and runs a request. Document-level failures
// are reported without data; field failures are reported next to the data
// that could still be resolved.
func (e *Executor) Execute(ctx context.Context, req Request) *Response {
	doc, errs := gqlparser.LoadQuery(e.schema, req.Query)
	if len(errs) > 0 {
		return &Response{Errors: requestErrors(errs)}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return &Response{Errors: requestErrors(gqlerror.List{
			gqlerror.Errorf("%s: %q", ErrNoOperation, req.OperationName),
		})}
	}

	vars, err := validator.VariableValues(e.schema, op, req.Variables)
	if err != nil {
		var gqlErr *gqlerror.Error
		if !errors.As(err, &gqlErr) {
			gqlErr = gqlerror.Wrap(err)
		}

		return &Response{Errors: requestErrors(gqlerror.List{gqlErr})}
	}

	var root *ast.Definition

	switch op.Operation {
	case ast.Query:
		root = e.schema.Query
	case ast.Mutation:
		root = e.schema.Mutation
	}

	if root == nil {
		return &Response{Errors: requestErrors(gqlerror.List{
			gqlerror.Errorf("%s: %s", ErrUnsupportedOperation, op.Operation),
		})}
	}

	x := &execution{
		Executor: e,
		doc:      doc,
		vars:     vars,
	}

	return x.run(ctx, root, op)
}

// collected is a response key with every AST field merged under it.
type collected struct {
	key    string
	index  int
	fields []*ast.Field
}

// position is a slot in the response tree. Nulling a non-nullable position
// nulls the nearest nullable enclosing position instead.
type position struct {
	slot     *any
	nullable bool
	dead     bool
	up       *position
}

// objectTask is an object value whose fields still need resolving.
type objectTask struct {
	def    *ast.Definition
	source any
	fields []collected
	out    *Object
	pos    *position
}

func (t *objectTask) alive() bool {
	for p := t.pos; p != nil; p = p.up {
		if p.dead {
			return false
		}
	}

	return true
}

type fieldJob struct {
	task  *objectTask
	field collected
	def   *ast.FieldDefinition
	res   resolver
	value any
	err   error

	// silent jobs share a batch failure already reported by the first job.
	silent bool
}

type batchKey struct {
	typeName string
	field    *ast.Field
}

type batchGroup struct {
	key  batchKey
	fn   BatchResolveFunc
	jobs []*fieldJob
}

type execution struct {
	*Executor

	doc    *ast.QueryDocument
	vars   map[string]any
	data   any
	errors gqlerror.List
}

func (x *execution) run(ctx context.Context, root *ast.Definition, op *ast.OperationDefinition) *Response {
	fields := x.collectFields(root.Name, []ast.SelectionSet{op.SelectionSet})
	out := newObject(fields)
	x.data = out

	rootPos := &position{slot: &x.data, nullable: true}
	task := &objectTask{def: root, fields: fields, out: out, pos: rootPos}

	if op.Operation == ast.Mutation {
		// Mutation fields run one after another, each with its whole subtree.
		for _, f := range fields {
			x.drain(ctx, []*objectTask{{def: root, fields: []collected{f}, out: out, pos: rootPos}})
		}
	} else {
		x.drain(ctx, []*objectTask{task})
	}

	resp := &Response{Errors: x.errors, executed: true}
	if obj, ok := x.data.(*Object); ok {
		resp.Data = obj
	}

	return resp
}

func (x *execution) drain(ctx context.Context, tasks []*objectTask) {
	for len(tasks) > 0 {
		tasks = x.level(ctx, tasks)
	}
}

// level resolves every field of every task at one depth and returns the
// object tasks of the next depth.
func (x *execution) level(ctx context.Context, tasks []*objectTask) []*objectTask {
	var (
		jobs   []*fieldJob
		groups []*batchGroup
	)

	byKey := make(map[batchKey]*batchGroup)

	for _, t := range tasks {
		if !t.alive() {
			continue
		}

		for _, f := range t.fields {
			field := f.fields[0]
			if field.Name == "__typename" {
				t.out.values[f.index] = t.def.Name

				continue
			}

			def := t.def.Fields.ForName(field.Name)
			if def == nil {
				continue
			}

			res, _ := x.registry.lookup(t.def.Name, field.Name)
			job := &fieldJob{task: t, field: f, def: def, res: res}
			jobs = append(jobs, job)

			if res.batch == nil {
				continue
			}

			key := batchKey{typeName: t.def.Name, field: field}

			g, ok := byKey[key]
			if !ok {
				g = &batchGroup{key: key, fn: res.batch}
				byKey[key] = g
				groups = append(groups, g)
			}

			g.jobs = append(g.jobs, job)
		}
	}

	var eg errgroup.Group
	if x.concurrency > 0 {
		eg.SetLimit(x.concurrency)
	}

	for _, job := range jobs {
		if job.res.batch != nil {
			continue
		}

		eg.Go(func() error {
			x.resolveSingle(ctx, job)

			return nil
		})
	}

	for _, g := range groups {
		eg.Go(func() error {
			x.resolveBatch(ctx, g)

			return nil
		})
	}

	_ = eg.Wait()

	var next []*objectTask

	for _, job := range jobs {
		next = append(next, x.completeField(job)...)
	}

	return next
}

func (x *execution) resolveSingle(ctx context.Context, job *fieldJob) {
	defer func() {
		if r := recover(); r != nil {
			job.err = fmt.Errorf("panic resolving %s.%s: %v", job.task.def.Name, job.def.Name, r)
		}
	}()

	field := job.field.fields[0]

	args, err := x.coerceArgs(field, job.def)
	if err != nil {
		job.err = err

		return
	}

	if job.res.single == nil {
		job.value, job.err = defaultResolve(job.task.source, field.Name)

		return
	}

	job.value, job.err = job.res.single(ctx, ResolveParams{
		Source: job.task.source,
		Args:   args,
		Field:  field,
	})
}

func (x *execution) resolveBatch(ctx context.Context, g *batchGroup) {
	fail := func(err error) {
		for i, job := range g.jobs {
			job.err = err
			job.silent = i > 0
		}
	}

	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("panic resolving %s.%s: %v", g.key.typeName, g.key.field.Name, r))
		}
	}()

	args, err := x.coerceArgs(g.key.field, g.jobs[0].def)
	if err != nil {
		fail(err)

		return
	}

	sources := make([]any, len(g.jobs))
	for i, job := range g.jobs {
		sources[i] = job.task.source
	}

	x.logger.Debug("Batch resolve",
		zap.String("type", g.key.typeName),
		zap.String("field", g.key.field.Name),
		zap.Int("parents", len(sources)))

	results, err := g.fn(ctx, BatchParams{Sources: sources, Args: args, Field: g.key.field})
	if err != nil {
		fail(err)

		return
	}

	if len(results) != len(g.jobs) {
		fail(fmt.Errorf("%w: batch resolver for %s.%s returned %d results for %d parents",
			ErrBatchMismatch, g.key.typeName, g.key.field.Name, len(results), len(g.jobs)))

		return
	}

	for i, job := range g.jobs {
		job.value, job.err = results[i].Value, results[i].Err
	}
}

// ErrBatchMismatch is reported when a batch resolver breaks the one result
// per parent contract.
var ErrBatchMismatch = errors.New("batch result count mismatch")

func (x *execution) completeField(job *fieldJob) []*objectTask {
	pos := &position{
		slot:     &job.task.out.values[job.field.index],
		nullable: !job.def.Type.NonNull,
		up:       job.task.pos,
	}

	if job.err != nil {
		if !job.silent {
			x.fail(job.task.def.Name+"."+job.def.Name, job.err)
		}

		x.nullify(pos)

		return nil
	}

	return x.completeValue(job.def.Type, job.field.fields, job.value, pos)
}

func (x *execution) completeValue(typ *ast.Type, fields []*ast.Field, v any, pos *position) []*objectTask {
	v = indirect(v)
	if v == nil {
		if typ.NonNull {
			x.fail(typ.String(), fmt.Errorf("%w: %s", ErrNullValue, fields[0].Name))
		}

		x.nullify(pos)

		return nil
	}

	if typ.Elem != nil {
		items, ok := listItems(v)
		if !ok {
			x.fail(typ.String(), fmt.Errorf("%w: %s resolved to %T", ErrNotList, fields[0].Name, v))
			x.nullify(pos)

			return nil
		}

		list := make([]any, len(items))
		*pos.slot = list

		var tasks []*objectTask

		for i, item := range items {
			itemPos := &position{slot: &list[i], nullable: !typ.Elem.NonNull, up: pos}
			tasks = append(tasks, x.completeValue(typ.Elem, fields, item, itemPos)...)
		}

		return tasks
	}

	def := x.schema.Types[typ.NamedType]

	switch def.Kind {
	case ast.Scalar, ast.Enum:
		out, err := x.scalar(def.Name).Serialize(v)
		if err != nil {
			x.fail(fields[0].Name, err)
			x.nullify(pos)

			return nil
		}

		if out == nil {
			return x.completeValue(typ, fields, nil, pos)
		}

		*pos.slot = out

		return nil
	case ast.Object:
		sets := make([]ast.SelectionSet, len(fields))
		for i, f := range fields {
			sets[i] = f.SelectionSet
		}

		collected := x.collectFields(def.Name, sets)
		obj := newObject(collected)
		*pos.slot = obj

		return []*objectTask{{def: def, source: v, fields: collected, out: obj, pos: pos}}
	default:
		x.fail(def.Name, fmt.Errorf("%w: %s", ErrUnsupportedType, def.Kind))
		x.nullify(pos)

		return nil
	}
}

var (
	// ErrNullValue is reported when a non-null position resolved to null.
	ErrNullValue = errors.New("cannot return null for non-nullable field")
	// ErrNotList is reported when a list field resolved to a non-list value.
	ErrNotList = errors.New("expected a list")
	// ErrUnsupportedType is reported for abstract types, which this executor does not resolve.
	ErrUnsupportedType = errors.New("unsupported type kind")
)

// nullify writes null at the nearest nullable position at or above p and
// marks it dead so pending work below it is skipped.
func (x *execution) nullify(p *position) {
	for p != nil && !p.nullable {
		p = p.up
	}

	if p == nil {
		x.data = nil

		return
	}

	*p.slot = nil
	p.dead = true
}

func (x *execution) fail(where string, err error) {
	gqlErr := ClassifyError(err)
	if !IsValidation(gqlErr) {
		x.logger.Warn("Field resolution failed", zap.String("field", where), zap.Error(err))
	}

	x.errors = append(x.errors, gqlErr)
}

// collectFields flattens selection sets (fragments included, @skip and
// @include applied) into response keys in document order.
func (x *execution) collectFields(typeName string, sets []ast.SelectionSet) []collected {
	var out []collected

	index := make(map[string]int)
	visited := make(map[string]bool)

	var walk func(set ast.SelectionSet)

	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if !x.included(s.Directives) {
					continue
				}

				key := s.Alias
				if key == "" {
					key = s.Name
				}

				if i, ok := index[key]; ok {
					out[i].fields = append(out[i].fields, s)

					continue
				}

				index[key] = len(out)
				out = append(out, collected{key: key, index: len(out), fields: []*ast.Field{s}})
			case *ast.InlineFragment:
				if !x.included(s.Directives) || (s.TypeCondition != "" && s.TypeCondition != typeName) {
					continue
				}

				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if !x.included(s.Directives) || visited[s.Name] {
					continue
				}

				visited[s.Name] = true

				frag := s.Definition
				if frag == nil {
					frag = x.doc.Fragments.ForName(s.Name)
				}

				if frag == nil || frag.TypeCondition != typeName {
					continue
				}

				walk(frag.SelectionSet)
			}
		}
	}

	for _, set := range sets {
		walk(set)
	}

	return out
}

func (x *execution) included(dirs ast.DirectiveList) bool {
	if d := dirs.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(x.vars)["if"].(bool); skip {
			return false
		}
	}

	if d := dirs.ForName("include"); d != nil {
		if include, ok := d.ArgumentMap(x.vars)["if"].(bool); ok && !include {
			return false
		}
	}

	return true
}
