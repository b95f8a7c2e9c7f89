package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/moviegraph"
	"github.com/rlch/moviegraph/graphql"
	"github.com/rlch/moviegraph/service"
	"github.com/rlch/moviegraph/stores/memory"
)

// countingStore records how many times each store method was called.
type countingStore struct {
	moviegraph.Store

	mu    sync.Mutex
	calls map[string]int
}

func (c *countingStore) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[op]++
}

func (c *countingStore) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[op]
}

func (c *countingStore) Follows(ctx context.Context, id moviegraph.ID) ([]moviegraph.Person, error) {
	c.count("Follows")

	return c.Store.Follows(ctx, id)
}

func (c *countingStore) Followers(ctx context.Context, id moviegraph.ID) ([]moviegraph.Person, error) {
	c.count("Followers")

	return c.Store.Followers(ctx, id)
}

func (c *countingStore) ReviewsByMovieIDs(ctx context.Context, ids []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	c.count("ReviewsByMovieIDs")

	return c.Store.ReviewsByMovieIDs(ctx, ids)
}

func (c *countingStore) DirectorsByMovieIDs(ctx context.Context, ids []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Person, error) {
	c.count("DirectorsByMovieIDs")

	return c.Store.DirectorsByMovieIDs(ctx, ids)
}

func (c *countingStore) CastByMovieIDs(ctx context.Context, ids []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Roles, error) {
	c.count("CastByMovieIDs")

	return c.Store.CastByMovieIDs(ctx, ids)
}

func (c *countingStore) ReviewsByReviewerIDs(ctx context.Context, ids []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	c.count("ReviewsByReviewerIDs")

	return c.Store.ReviewsByReviewerIDs(ctx, ids)
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, seed string) (*countingStore, *graphql.Executor) {
	t.Helper()

	mem, err := memory.Open(moviegraph.StoreConfig{Seed: seed})
	require.NoError(t, err)

	store := &countingStore{Store: mem, calls: make(map[string]int)}
	svc := service.New(store, service.WithClock(func() time.Time { return fixedNow }))

	exec, err := svc.NewExecutor()
	require.NoError(t, err)

	return store, exec
}

func run(t *testing.T, exec *graphql.Executor, query string, vars map[string]any) map[string]any {
	t.Helper()

	return exec.Execute(t.Context(), graphql.Request{Query: query, Variables: vars}).Map()
}

func classification(t *testing.T, resp map[string]any) (string, any) {
	t.Helper()

	errs, _ := resp["errors"].([]any)
	require.Len(t, errs, 1)

	e, _ := errs[0].(map[string]any)
	ext, _ := e["extensions"].(map[string]any)

	return e["message"].(string), ext["classification"] //nolint:forcetypeassert
}

func TestMovie(t *testing.T) {
	t.Parallel()

	_, exec := setup(t, "")

	got := run(t, exec, `{ movie(name: "The Matrix") { title tagline released director { name born } } }`, nil)

	want := map[string]any{
		"movie": map[string]any{
			"title":    "The Matrix",
			"tagline":  "Welcome to the Real World",
			"released": 1999,
			"director": []any{
				map[string]any{"name": "Lilly Wachowski", "born": 1967},
				map[string]any{"name": "Lana Wachowski", "born": 1965},
			},
		},
	}
	if diff := cmp.Diff(want, got["data"]); diff != "" {
		t.Errorf("movie mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, got["errors"])
}

func TestMovie_NotFound(t *testing.T) {
	t.Parallel()

	_, exec := setup(t, "")

	got := run(t, exec, `{ movie(name: "Nonexistent Title") { title } movies { title } }`, nil)

	data, _ := got["data"].(map[string]any)
	assert.Nil(t, data["movie"])
	assert.Len(t, data["movies"], 8)

	msg, class := classification(t, got)
	assert.Contains(t, msg, "not found")
	assert.Equal(t, graphql.ClassInternal, class)
}

func TestMovies_ReviewsAreBatched(t *testing.T) {
	t.Parallel()

	store, exec := setup(t, "")

	got := run(t, exec, `{
		movies {
			title
			reviews { summary rating reviewer { name wroteReviews { rating } } }
			cast { roles actor { name } }
		}
	}`, nil)
	require.Empty(t, got["errors"])

	movies, _ := got["data"].(map[string]any)["movies"].([]any)
	require.Len(t, movies, 8)

	first, _ := movies[0].(map[string]any)
	assert.Equal(t, "The Matrix", first["title"])
	assert.Equal(t, []any{}, first["reviews"])

	replacements, _ := movies[2].(map[string]any)
	assert.Len(t, replacements["reviews"], 3)

	assert.Equal(t, 1, store.Calls("ReviewsByMovieIDs"))
	assert.Equal(t, 1, store.Calls("ReviewsByReviewerIDs"))
	assert.Equal(t, 1, store.Calls("CastByMovieIDs"))
	assert.Equal(t, 0, store.Calls("DirectorsByMovieIDs"))
}

func TestMovies_EmptyStoreMakesNoBatchCalls(t *testing.T) {
	t.Parallel()

	store, exec := setup(t, memory.SeedNone)

	got := run(t, exec, `{ movies { reviews { summary } director { name } } }`, nil)

	assert.Equal(t, map[string]any{"movies": []any{}}, got["data"])
	assert.Equal(t, 0, store.Calls("ReviewsByMovieIDs"))
	assert.Equal(t, 0, store.Calls("DirectorsByMovieIDs"))
}

func TestReviewsSince(t *testing.T) {
	t.Parallel()

	_, exec := setup(t, "")

	got := run(t, exec, `{ movie(name: "The Replacements") { reviews(since: "2021-01-01T00:00:00Z") { summary createdWhen } } }`, nil)

	want := map[string]any{
		"movie": map[string]any{
			"reviews": []any{
				map[string]any{"summary": "The coolest football movie ever", "createdWhen": "2021-01-09T12:00:00Z"},
				map[string]any{"summary": "Pretty funny at times", "createdWhen": "2022-11-23T08:15:00Z"},
			},
		},
	}
	if diff := cmp.Diff(want, got["data"]); diff != "" {
		t.Errorf("reviews mismatch (-want +got):\n%s", diff)
	}

	got = run(t, exec, `query($since: Instant) { movie(name: "The Replacements") { reviews(since: $since) { rating } } }`,
		map[string]any{"since": "2022-01-01T00:00:00Z"})
	assert.Equal(t, map[string]any{"movie": map[string]any{"reviews": []any{map[string]any{"rating": 62}}}}, got["data"])

	got = run(t, exec, `{ movie(name: "The Replacements") { reviews(since: 5) { rating } } }`, nil)
	_, class := classification(t, got)
	assert.Equal(t, graphql.ClassValidation, class)
}

func TestFollowsAndFollowers(t *testing.T) {
	t.Parallel()

	store, exec := setup(t, "")

	got := run(t, exec, `{ person(name: "Jessica Thompson") { name follows { name } followers { name } } }`, nil)

	want := map[string]any{
		"person": map[string]any{
			"name":    "Jessica Thompson",
			"follows": []any{},
			"followers": []any{
				map[string]any{"name": "James Thompson"},
				map[string]any{"name": "Angela Scope"},
			},
		},
	}
	if diff := cmp.Diff(want, got["data"]); diff != "" {
		t.Errorf("person mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1, store.Calls("Follows"))
	assert.Equal(t, 1, store.Calls("Followers"))

	got = run(t, exec, `{ person(name: "Nobody") { name } }`, nil)
	assert.Equal(t, map[string]any{"person": nil}, got["data"])
	assert.Empty(t, got["errors"])
}

func TestAddMovieReview(t *testing.T) {
	t.Parallel()

	_, exec := setup(t, "")

	const mutation = `mutation($input: AddMovieReviewInput!) {
		addMovieReview(input: $input) { id summary rating createdWhen reviewer { name } }
	}`

	got := run(t, exec, mutation, map[string]any{"input": map[string]any{
		"movie":    "The Matrix",
		"reviewer": "Paul Blythe",
		"summary":  "Still holds up",
		"rating":   90,
	}})
	require.Empty(t, got["errors"])

	review, _ := got["data"].(map[string]any)["addMovieReview"].(map[string]any)
	assert.NotEmpty(t, review["id"])
	assert.Equal(t, "Still holds up", review["summary"])
	assert.Equal(t, 90, review["rating"])
	assert.Equal(t, "2025-03-01T12:00:00Z", review["createdWhen"])
	assert.Equal(t, map[string]any{"name": "Paul Blythe"}, review["reviewer"])

	// A second review by the same reviewer is a distinct new edge.
	got = run(t, exec, `mutation {
		addMovieReview(input: {movie: "The Matrix", reviewer: "Paul Blythe", summary: "Again", rating: 70}) { id summary }
	}`, nil)
	require.Empty(t, got["errors"])

	second, _ := got["data"].(map[string]any)["addMovieReview"].(map[string]any)
	assert.Equal(t, "Again", second["summary"])
	assert.NotEqual(t, review["id"], second["id"])

	got = run(t, exec, `{ movie(name: "The Matrix") { reviews { summary } } }`, nil)
	assert.Equal(t, map[string]any{"movie": map[string]any{"reviews": []any{
		map[string]any{"summary": "Still holds up"},
		map[string]any{"summary": "Again"},
	}}}, got["data"])
}

func TestAddMovieReview_InvalidArguments(t *testing.T) {
	t.Parallel()

	_, exec := setup(t, "")

	tests := []struct {
		name     string
		movie    string
		reviewer string
		message  string
	}{
		{"unknown movie", "Nonexistent Title", "Paul Blythe", "No such movie"},
		{"unknown reviewer", "The Matrix", "Nobody", "No such reviewer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := run(t, exec, `mutation($movie: String!, $reviewer: String!) {
				addMovieReview(input: {movie: $movie, reviewer: $reviewer, summary: "x", rating: 1}) { id }
			}`, map[string]any{"movie": tt.movie, "reviewer": tt.reviewer})

			assert.Equal(t, map[string]any{"addMovieReview": nil}, got["data"])

			msg, class := classification(t, got)
			assert.Equal(t, tt.message, msg)
			assert.Equal(t, graphql.ClassValidation, class)
		})
	}
}

func TestDeleteMovieReviews(t *testing.T) {
	t.Parallel()

	_, exec := setup(t, "")

	for range 2 {
		got := run(t, exec, `mutation { deleteMovieReviews(movieName: "The Replacements") }`, nil)
		require.Empty(t, got["errors"])
		assert.Equal(t, map[string]any{"deleteMovieReviews": true}, got["data"])
	}

	got := run(t, exec, `{
		movie(name: "The Replacements") { reviews { summary } }
		person(name: "Angela Scope") { wroteReviews { summary } }
	}`, nil)
	assert.Equal(t, map[string]any{
		"movie":  map[string]any{"reviews": []any{}},
		"person": map[string]any{"wroteReviews": []any{}},
	}, got["data"])

	got = run(t, exec, `mutation { deleteMovieReviews(movieName: "Nonexistent Title") }`, nil)
	assert.Nil(t, got["data"])

	msg, class := classification(t, got)
	assert.Equal(t, "No such movie", msg)
	assert.Equal(t, graphql.ClassValidation, class)
}

func TestIDs(t *testing.T) {
	t.Parallel()

	_, exec := setup(t, "")

	got := run(t, exec, `{ people { id } }`, nil)

	people, _ := got["data"].(map[string]any)["people"].([]any)
	require.NotEmpty(t, people)

	for _, p := range people {
		id, _ := p.(map[string]any)["id"].(string)
		_, err := moviegraph.ParseID(id)
		assert.NoError(t, err)
	}
}

func TestService_AddMovieReviewDirect(t *testing.T) {
	t.Parallel()

	mem, err := memory.Open(moviegraph.StoreConfig{})
	require.NoError(t, err)

	svc := service.New(mem, service.WithClock(func() time.Time { return fixedNow }))

	review, err := svc.AddMovieReview(t.Context(), service.AddMovieReviewInput{
		Movie:    "Unforgiven",
		Reviewer: "Jessica Thompson",
		Summary:  "Better the second time",
		Rating:   90,
	})
	require.NoError(t, err)
	assert.True(t, review.ID.IsSet())
	assert.Equal(t, fixedNow, review.CreatedWhen)

	// Jessica already reviewed Unforgiven; the new edge is the one returned.
	movie, err := svc.Movie(t.Context(), "Unforgiven")
	require.NoError(t, err)

	reviews, err := mem.ReviewsByMovieIDs(t.Context(), []moviegraph.ID{movie.ID})
	require.NoError(t, err)
	require.Len(t, reviews[movie.ID], 2)
	assert.Equal(t, review.ID, reviews[movie.ID][1].ID)
	assert.Equal(t, "Dark, but compelling", reviews[movie.ID][0].Summary)

	_, err = svc.AddMovieReview(t.Context(), service.AddMovieReviewInput{Movie: "Nope", Reviewer: "Jessica Thompson"})
	require.ErrorIs(t, err, moviegraph.ErrInvalidArgument)
}

// slowStore widens the window between loading a movie's reviews and saving
// them.
type slowStore struct {
	moviegraph.Store
}

func (s slowStore) ReviewsByMovieIDs(ctx context.Context, ids []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	reviews, err := s.Store.ReviewsByMovieIDs(ctx, ids)
	time.Sleep(5 * time.Millisecond)

	return reviews, err
}

func TestAddMovieReview_Concurrent(t *testing.T) {
	t.Parallel()

	mem, err := memory.Open(moviegraph.StoreConfig{})
	require.NoError(t, err)

	svc := service.New(slowStore{Store: mem}, service.WithClock(func() time.Time { return fixedNow }))

	const n = 10

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[moviegraph.ID]bool)
		errs []error
	)

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			review, err := svc.AddMovieReview(t.Context(), service.AddMovieReviewInput{
				Movie:    "The Matrix",
				Reviewer: "Paul Blythe",
				Summary:  fmt.Sprintf("take %d", i),
				Rating:   i,
			})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, err)

				return
			}

			ids[review.ID] = true
		}()
	}

	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, ids, n)

	movie, err := svc.Movie(t.Context(), "The Matrix")
	require.NoError(t, err)

	reviews, err := mem.ReviewsByMovieIDs(t.Context(), []moviegraph.ID{movie.ID})
	require.NoError(t, err)
	assert.Len(t, reviews[movie.ID], n)

	for _, r := range reviews[movie.ID] {
		assert.True(t, ids[r.ID], "review %s was not returned to its caller", r.ID)
	}
}

var errUnavailable = errors.New("store unavailable")

// failingStore fails every batched review lookup.
type failingStore struct {
	moviegraph.Store
}

func (failingStore) ReviewsByMovieIDs(context.Context, []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	return nil, errUnavailable
}

func TestRelationshipFailure_KeepsSiblings(t *testing.T) {
	t.Parallel()

	mem, err := memory.Open(moviegraph.StoreConfig{})
	require.NoError(t, err)

	exec, err := service.New(failingStore{Store: mem}).NewExecutor()
	require.NoError(t, err)

	got := run(t, exec, `{
		person(name: "Paul Blythe") { name }
		movies { title reviews { summary } }
	}`, nil)

	msg, class := classification(t, got)
	assert.Equal(t, "store unavailable", msg)
	assert.Equal(t, "INTERNAL_ERROR", class)

	data, _ := got["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, map[string]any{"name": "Paul Blythe"}, data["person"])

	movies, _ := data["movies"].([]any)
	require.NotEmpty(t, movies)

	for _, m := range movies {
		movie, _ := m.(map[string]any)
		assert.NotEmpty(t, movie["title"])
		assert.Contains(t, movie, "reviews")
		assert.Nil(t, movie["reviews"])
	}
}
