//nolint:testpackage // Tests need access to internal types
package instrument

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rlch/moviegraph"
	"github.com/rlch/moviegraph/stores/memory"
)

func setup(t *testing.T) (*Store, *tracetest.SpanRecorder) {
	t.Helper()

	inner, err := memory.Open(moviegraph.StoreConfig{})
	require.NoError(t, err)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	s, err := Wrap(inner,
		WithRegisterer(prometheus.NewRegistry()),
		WithTracerProvider(tp),
	)
	require.NoError(t, err)

	return s, rec
}

func TestWrap_CountsRoundTrips(t *testing.T) {
	t.Parallel()

	s, rec := setup(t)
	ctx := t.Context()

	movie, err := s.MovieByTitle(ctx, "The Matrix")
	require.NoError(t, err)

	_, err = s.ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	require.NoError(t, err)

	_, err = s.ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	require.NoError(t, err)

	_, err = s.MovieByTitle(ctx, "Missing")
	require.ErrorIs(t, err, moviegraph.ErrNotFound)

	assert.InDelta(t, 2, testutil.ToFloat64(s.metrics.roundtrips.WithLabelValues("MovieByTitle")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(s.metrics.roundtrips.WithLabelValues("ReviewsByMovieIDs")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.errors.WithLabelValues("MovieByTitle")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(s.metrics.errors.WithLabelValues("ReviewsByMovieIDs")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(s.metrics.duration))

	spans := rec.Ended()
	require.Len(t, spans, 4)
	assert.Equal(t, "store.MovieByTitle", spans[0].Name())
	assert.Equal(t, "store.ReviewsByMovieIDs", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[3].Status().Code)
}

func TestWrap_DelegatesWrites(t *testing.T) {
	t.Parallel()

	s, _ := setup(t)
	ctx := t.Context()

	movie, err := s.MovieByTitle(ctx, "Unforgiven")
	require.NoError(t, err)

	loaded, err := s.ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	require.NoError(t, err)
	require.NotEmpty(t, loaded[movie.ID])

	saved, err := s.SaveMovie(ctx, movie.WithReviews(loaded[movie.ID]).ClearReviews())
	require.NoError(t, err)
	assert.Empty(t, saved.Reviews)

	reviews, err := s.Unwrap().ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	require.NoError(t, err)
	assert.Empty(t, reviews[movie.ID])

	assert.Equal(t, "memory", s.Name())
	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.roundtrips.WithLabelValues("SaveMovie")), 0)
	require.NoError(t, s.Close())
}

func TestWrap_SharedRegisterer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	ctx := t.Context()

	a, err := Wrap(memory.New(), WithRegisterer(reg))
	require.NoError(t, err)

	b, err := Wrap(memory.New(), WithRegisterer(reg))
	require.NoError(t, err)

	_, err = a.Movies(ctx)
	require.NoError(t, err)

	_, err = b.Movies(ctx)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "moviegraph_store_roundtrips_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 2, testutil.ToFloat64(b.metrics.roundtrips.WithLabelValues("Movies")), 0)
}
