// Package instrument decorates a moviegraph.Store with round-trip metrics,
// tracing spans and debug logging.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rlch/moviegraph"
)

const tracerName = "github.com/rlch/moviegraph/stores/instrument"

// Option configures a Store.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
}

// WithLogger sets the logger round trips are reported to at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer sets where the collectors are registered. Defaults to
// prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithTracerProvider sets the span source. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// Store is an instrumented moviegraph.Store.
type Store struct {
	inner   moviegraph.Store
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics
}

type metrics struct {
	roundtrips *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// Wrap returns store with every call counted, timed, traced and logged.
func Wrap(store moviegraph.Store, opts ...Option) (*Store, error) {
	o := options{
		logger:     zap.NewNop(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, err
	}

	return &Store{
		inner:   store,
		logger:  o.logger,
		tracer:  o.tracer.Tracer(tracerName),
		metrics: m,
	}, nil
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		roundtrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviegraph",
			Subsystem: "store",
			Name:      "roundtrips_total",
			Help:      "Total number of store round trips",
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviegraph",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Total number of failed store round trips",
		}, []string{"op"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moviegraph",
			Subsystem: "store",
			Name:      "duration_seconds",
			Help:      "Store round-trip duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"op"}),
	}

	var err error

	m.roundtrips, err = register(reg, m.roundtrips)
	if err != nil {
		return nil, err
	}

	m.errors, err = register(reg, m.errors)
	if err != nil {
		return nil, err
	}

	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, reusing the collector already registered under the
// same description.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	return c, fmt.Errorf("instrument: failed to register collector: %w", err)
}

// observe runs one round trip under a span and records its outcome.
func observe[T any](
	ctx context.Context,
	s *Store,
	op string,
	attrs []attribute.KeyValue,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	attrs = append(attrs, attribute.String("store", s.inner.Name()))
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))

	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	elapsed := time.Since(start)

	s.metrics.roundtrips.WithLabelValues(op).Inc()
	s.metrics.duration.WithLabelValues(op).Observe(elapsed.Seconds())

	if err != nil {
		s.metrics.errors.WithLabelValues(op).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.logger.Debug(op,
		zap.String("store", s.inner.Name()),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)

	return v, err
}

func idsAttr(ids []moviegraph.ID) attribute.KeyValue {
	return attribute.Int("parents", len(ids))
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() moviegraph.Store { //nolint:ireturn
	return s.inner
}

func (s *Store) Name() string {
	return s.inner.Name()
}

func (s *Store) Close() error {
	return s.inner.Close()
}

func (s *Store) MovieByTitle(ctx context.Context, title string) (moviegraph.Movie, error) {
	return observe(ctx, s, "MovieByTitle", []attribute.KeyValue{attribute.String("title", title)},
		func(ctx context.Context) (moviegraph.Movie, error) {
			return s.inner.MovieByTitle(ctx, title)
		})
}

func (s *Store) Movies(ctx context.Context) ([]moviegraph.Movie, error) {
	return observe(ctx, s, "Movies", nil, s.inner.Movies)
}

func (s *Store) PersonByName(ctx context.Context, name string) (moviegraph.Person, error) {
	return observe(ctx, s, "PersonByName", []attribute.KeyValue{attribute.String("name", name)},
		func(ctx context.Context) (moviegraph.Person, error) {
			return s.inner.PersonByName(ctx, name)
		})
}

func (s *Store) People(ctx context.Context) ([]moviegraph.Person, error) {
	return observe(ctx, s, "People", nil, s.inner.People)
}

func (s *Store) Follows(ctx context.Context, person moviegraph.ID) ([]moviegraph.Person, error) {
	return observe(ctx, s, "Follows", []attribute.KeyValue{attribute.String("person", person.String())},
		func(ctx context.Context) ([]moviegraph.Person, error) {
			return s.inner.Follows(ctx, person)
		})
}

func (s *Store) Followers(ctx context.Context, person moviegraph.ID) ([]moviegraph.Person, error) {
	return observe(ctx, s, "Followers", []attribute.KeyValue{attribute.String("person", person.String())},
		func(ctx context.Context) ([]moviegraph.Person, error) {
			return s.inner.Followers(ctx, person)
		})
}

func (s *Store) ReviewsByMovieIDs(
	ctx context.Context,
	movies []moviegraph.ID,
) (map[moviegraph.ID][]moviegraph.Review, error) {
	return observe(ctx, s, "ReviewsByMovieIDs", []attribute.KeyValue{idsAttr(movies)},
		func(ctx context.Context) (map[moviegraph.ID][]moviegraph.Review, error) {
			return s.inner.ReviewsByMovieIDs(ctx, movies)
		})
}

func (s *Store) DirectorsByMovieIDs(
	ctx context.Context,
	movies []moviegraph.ID,
) (map[moviegraph.ID][]moviegraph.Person, error) {
	return observe(ctx, s, "DirectorsByMovieIDs", []attribute.KeyValue{idsAttr(movies)},
		func(ctx context.Context) (map[moviegraph.ID][]moviegraph.Person, error) {
			return s.inner.DirectorsByMovieIDs(ctx, movies)
		})
}

func (s *Store) CastByMovieIDs(
	ctx context.Context,
	movies []moviegraph.ID,
) (map[moviegraph.ID][]moviegraph.Roles, error) {
	return observe(ctx, s, "CastByMovieIDs", []attribute.KeyValue{idsAttr(movies)},
		func(ctx context.Context) (map[moviegraph.ID][]moviegraph.Roles, error) {
			return s.inner.CastByMovieIDs(ctx, movies)
		})
}

func (s *Store) ReviewsByReviewerIDs(
	ctx context.Context,
	people []moviegraph.ID,
) (map[moviegraph.ID][]moviegraph.Review, error) {
	return observe(ctx, s, "ReviewsByReviewerIDs", []attribute.KeyValue{idsAttr(people)},
		func(ctx context.Context) (map[moviegraph.ID][]moviegraph.Review, error) {
			return s.inner.ReviewsByReviewerIDs(ctx, people)
		})
}

func (s *Store) SaveMovie(ctx context.Context, movie moviegraph.Movie) (moviegraph.Movie, error) {
	attrs := []attribute.KeyValue{
		attribute.String("title", movie.Title),
		attribute.Bool("reviews.loaded", movie.Reviews != nil),
		attribute.Int("reviews", len(movie.Reviews)),
	}

	return observe(ctx, s, "SaveMovie", attrs, func(ctx context.Context) (moviegraph.Movie, error) {
		return s.inner.SaveMovie(ctx, movie)
	})
}

var _ moviegraph.Store = (*Store)(nil)
