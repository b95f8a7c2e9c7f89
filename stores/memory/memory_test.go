package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/moviegraph"
)

func openDefault(t *testing.T) *Store {
	t.Helper()

	s, err := Open(moviegraph.StoreConfig{})
	require.NoError(t, err)

	return s
}

func names(people []moviegraph.Person) []string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.Name
	}

	return out
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	assert.Contains(t, moviegraph.RegisteredStores(), "memory")

	s, err := moviegraph.NewStore("memory", moviegraph.StoreConfig{Seed: SeedNone})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	movies, err := s.Movies(t.Context())
	require.NoError(t, err)
	assert.Empty(t, movies)
}

func TestMovieByTitle(t *testing.T) {
	t.Parallel()

	s := openDefault(t)

	m, err := s.MovieByTitle(t.Context(), "The Matrix")
	require.NoError(t, err)
	assert.True(t, m.ID.IsSet())
	assert.Equal(t, 1999, m.Released)
	require.NotNil(t, m.Tagline)
	assert.Equal(t, "Welcome to the Real World", *m.Tagline)
	assert.Nil(t, m.Reviews)

	_, err = s.MovieByTitle(t.Context(), "the matrix")
	require.ErrorIs(t, err, moviegraph.ErrNotFound)

	m, err = s.MovieByTitle(t.Context(), "Something's Gotta Give")
	require.NoError(t, err)
	assert.Nil(t, m.Tagline)
}

func TestMovieByTitle_Ambiguous(t *testing.T) {
	t.Parallel()

	s := New()
	ds := Dataset{Movies: []MovieRecord{{Title: "Twice", Released: 2000}}}

	require.NoError(t, s.Seed(ds))
	require.NoError(t, s.Seed(ds))

	_, err := s.MovieByTitle(t.Context(), "Twice")
	require.ErrorIs(t, err, moviegraph.ErrAmbiguous)
}

func TestFollowsAndFollowers(t *testing.T) {
	t.Parallel()

	s := openDefault(t)

	jessica, err := s.PersonByName(t.Context(), "Jessica Thompson")
	require.NoError(t, err)

	followers, err := s.Followers(t.Context(), jessica.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"James Thompson", "Angela Scope"}, names(followers))

	follows, err := s.Follows(t.Context(), jessica.ID)
	require.NoError(t, err)
	assert.Empty(t, follows)
	assert.NotNil(t, follows)

	angela, err := s.PersonByName(t.Context(), "Angela Scope")
	require.NoError(t, err)

	follows, err = s.Follows(t.Context(), angela.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jessica Thompson"}, names(follows))
}

func TestBatchedLookups(t *testing.T) {
	t.Parallel()

	s := openDefault(t)
	ctx := t.Context()

	matrix, err := s.MovieByTitle(ctx, "The Matrix")
	require.NoError(t, err)

	replacements, err := s.MovieByTitle(ctx, "The Replacements")
	require.NoError(t, err)

	ids := []moviegraph.ID{matrix.ID, replacements.ID}

	reviews, err := s.ReviewsByMovieIDs(ctx, ids)
	require.NoError(t, err)
	assert.Empty(t, reviews[matrix.ID])
	require.Len(t, reviews[replacements.ID], 3)
	assert.Equal(t, "Jessica Thompson", reviews[replacements.ID][0].Reviewer.Name)
	assert.Equal(t, time.Date(2020, 6, 1, 18, 30, 0, 0, time.UTC), reviews[replacements.ID][0].CreatedWhen)

	directors, err := s.DirectorsByMovieIDs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lilly Wachowski", "Lana Wachowski"}, names(directors[matrix.ID]))

	cast, err := s.CastByMovieIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, cast[matrix.ID], 4)
	assert.Equal(t, []string{"Neo"}, cast[matrix.ID][0].Roles)
	assert.Equal(t, "Keanu Reeves", cast[matrix.ID][0].Actor.Name)

	jessica, err := s.PersonByName(ctx, "Jessica Thompson")
	require.NoError(t, err)

	wrote, err := s.ReviewsByReviewerIDs(ctx, []moviegraph.ID{jessica.ID})
	require.NoError(t, err)
	assert.Len(t, wrote[jessica.ID], 6)

	none, err := s.ReviewsByMovieIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveMovie_SyncsReviews(t *testing.T) {
	t.Parallel()

	s := openDefault(t)
	ctx := t.Context()

	movie, err := s.MovieByTitle(ctx, "The Da Vinci Code")
	require.NoError(t, err)

	existing, err := s.ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	require.NoError(t, err)
	require.Len(t, existing[movie.ID], 2)

	paul, err := s.PersonByName(ctx, "Paul Blythe")
	require.NoError(t, err)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	// Keep the first review with a new rating, drop the second, add one.
	kept := existing[movie.ID][0]
	kept.Rating = 70

	snapshot := movie.WithReviews(existing[movie.ID]).
		UpdateReview(kept).
		RemoveReview(existing[movie.ID][1].ID).
		AppendReview(moviegraph.NewReview(paul, "Codes were broken", 80, now))

	saved, err := s.SaveMovie(ctx, snapshot)
	require.NoError(t, err)
	require.Len(t, saved.Reviews, 2)

	assert.Equal(t, kept.ID, saved.Reviews[0].ID)
	assert.Equal(t, 70, saved.Reviews[0].Rating)
	assert.True(t, saved.Reviews[1].ID.IsSet())
	assert.Equal(t, "Paul Blythe", saved.Reviews[1].Reviewer.Name)
	assert.Equal(t, now, saved.Reviews[1].CreatedWhen)

	after, err := s.ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	require.NoError(t, err)

	if diff := cmp.Diff(saved.Reviews, after[movie.ID], cmp.AllowUnexported(moviegraph.ID{})); diff != "" {
		t.Errorf("stored reviews mismatch (-want +got):\n%s", diff)
	}

	cleared, err := s.SaveMovie(ctx, saved.ClearReviews())
	require.NoError(t, err)
	assert.Empty(t, cleared.Reviews)
	assert.NotNil(t, cleared.Reviews)

	jessica, err := s.PersonByName(ctx, "Jessica Thompson")
	require.NoError(t, err)

	wrote, err := s.ReviewsByReviewerIDs(ctx, []moviegraph.ID{jessica.ID})
	require.NoError(t, err)
	assert.Len(t, wrote[jessica.ID], 5)
}

func TestSaveMovie_KeepsReviewsSavedConcurrently(t *testing.T) {
	t.Parallel()

	s := openDefault(t)
	ctx := t.Context()

	movie, err := s.MovieByTitle(ctx, "The Replacements")
	require.NoError(t, err)

	loaded, err := s.ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	require.NoError(t, err)

	jessica, err := s.PersonByName(ctx, "Jessica Thompson")
	require.NoError(t, err)

	paul, err := s.PersonByName(ctx, "Paul Blythe")
	require.NoError(t, err)

	// Both writers start from the same snapshot.
	first := movie.WithReviews(loaded[movie.ID])
	second := movie.WithReviews(loaded[movie.ID])

	_, err = s.SaveMovie(ctx, first.AppendReview(moviegraph.NewReview(jessica, "first", 60, time.Now())))
	require.NoError(t, err)

	saved, err := s.SaveMovie(ctx, second.AppendReview(moviegraph.NewReview(paul, "second", 70, time.Now())))
	require.NoError(t, err)
	assert.Len(t, saved.Reviews, len(loaded[movie.ID])+2)

	// Clearing only deletes what the snapshot saw.
	cleared, err := s.SaveMovie(ctx, first.ClearReviews())
	require.NoError(t, err)
	require.Len(t, cleared.Reviews, 2)
	assert.Equal(t, "first", cleared.Reviews[0].Summary)
	assert.Equal(t, "second", cleared.Reviews[1].Summary)
}

func TestSaveMovie_NilReviewsLeavesEdges(t *testing.T) {
	t.Parallel()

	s := openDefault(t)
	ctx := t.Context()

	movie, err := s.MovieByTitle(ctx, "Unforgiven")
	require.NoError(t, err)

	movie.Released = 1993

	saved, err := s.SaveMovie(ctx, movie)
	require.NoError(t, err)
	assert.Len(t, saved.Reviews, 1)

	again, err := s.MovieByTitle(ctx, "Unforgiven")
	require.NoError(t, err)
	assert.Equal(t, 1993, again.Released)
}

func TestSaveMovie_Errors(t *testing.T) {
	t.Parallel()

	s := openDefault(t)
	ctx := t.Context()

	_, err := s.SaveMovie(ctx, moviegraph.Movie{ID: moviegraph.NewID(9999), Title: "Ghost"})
	require.ErrorIs(t, err, moviegraph.ErrNotFound)

	movie, err := s.MovieByTitle(ctx, "The Matrix")
	require.NoError(t, err)

	stranger := moviegraph.Person{Name: "Stranger"}
	_, err = s.SaveMovie(ctx, movie.ClearReviews().AppendReview(moviegraph.NewReview(stranger, "?", 1, time.Now())))
	require.ErrorIs(t, err, moviegraph.ErrNotFound)

	foreign := moviegraph.Review{ID: moviegraph.NewID(1), Reviewer: moviegraph.Person{ID: moviegraph.NewID(1)}}
	_, err = s.SaveMovie(ctx, movie.ClearReviews().AppendReview(foreign))
	require.ErrorIs(t, err, moviegraph.ErrNotFound)
}

func TestSaveMovie_CreatesMovie(t *testing.T) {
	t.Parallel()

	s := New()

	saved, err := s.SaveMovie(t.Context(), moviegraph.Movie{Title: "New", Released: 2024})
	require.NoError(t, err)
	assert.True(t, saved.ID.IsSet())
	assert.NotNil(t, saved.Reviews)

	got, err := s.MovieByTitle(t.Context(), "New")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
}

func TestOpen_SeedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
people:
  - {name: Ada}
  - {name: Grace}
movies:
  - title: Compilers
    released: 1952
    directors: [Grace]
    reviews:
      - {reviewer: Ada, summary: Visionary, rating: 99}
follows:
  - {from: Ada, to: Grace}
`), 0o600))

	s, err := Open(moviegraph.StoreConfig{Seed: path})
	require.NoError(t, err)

	people, err := s.People(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada", "Grace"}, names(people))

	_, err = Open(moviegraph.StoreConfig{Seed: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestReadDataset_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadDataset(strings.NewReader("movies:\n  - title: X\n    budget: 3\n"))
	require.Error(t, err)

	ds, err := ReadDataset(strings.NewReader("movies:\n  - {title: X, directors: [Nobody]}\n"))
	require.NoError(t, err)
	require.ErrorIs(t, New().Seed(ds), moviegraph.ErrNotFound)

	dup := Dataset{People: []PersonRecord{{Name: "A"}, {Name: "A"}}}
	require.ErrorIs(t, New().Seed(dup), moviegraph.ErrAmbiguous)
}
