// Package service implements the movie graph queries and mutations on top of
// a moviegraph.Store and exposes them through a GraphQL executor.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rlch/moviegraph"
)

// Service resolves queries and mutations against a store.
type Service struct {
	store       moviegraph.Store
	logger      *zap.Logger
	clock       func() time.Time
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the clock used to stamp new reviews.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithConcurrency bounds how many resolvers the executor runs at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		s.concurrency = n
	}
}

// New creates a Service backed by store.
func New(store moviegraph.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Store returns the backing store.
func (s *Service) Store() moviegraph.Store { //nolint:ireturn
	return s.store
}

// Movie returns the movie with the given title. A miss is an ErrNotFound
// failure.
func (s *Service) Movie(ctx context.Context, name string) (moviegraph.Movie, error) {
	return s.store.MovieByTitle(ctx, name)
}

// Movies returns every movie.
func (s *Service) Movies(ctx context.Context) ([]moviegraph.Movie, error) {
	return s.store.Movies(ctx)
}

// Person returns the person with the given name, or nil if there is none.
func (s *Service) Person(ctx context.Context, name string) (*moviegraph.Person, error) {
	p, err := s.store.PersonByName(ctx, name)
	if errors.Is(err, moviegraph.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &p, nil
}

// People returns every person.
func (s *Service) People(ctx context.Context) ([]moviegraph.Person, error) {
	return s.store.People(ctx)
}

// Follows returns the people p follows.
func (s *Service) Follows(ctx context.Context, p moviegraph.Person) ([]moviegraph.Person, error) {
	if !p.ID.IsSet() {
		return []moviegraph.Person{}, nil
	}

	return s.store.Follows(ctx, p.ID)
}

// Followers returns the people following p.
func (s *Service) Followers(ctx context.Context, p moviegraph.Person) ([]moviegraph.Person, error) {
	if !p.ID.IsSet() {
		return []moviegraph.Person{}, nil
	}

	return s.store.Followers(ctx, p.ID)
}

// AddMovieReviewInput is the input of AddMovieReview.
type AddMovieReviewInput struct {
	Movie    string
	Reviewer string
	Summary  string
	Rating   int
}

// AddMovieReview appends a review by the named reviewer to the named movie
// and returns the created review. Unknown titles and names are reported as
// invalid arguments.
func (s *Service) AddMovieReview(ctx context.Context, in AddMovieReviewInput) (moviegraph.Review, error) {
	movie, err := s.loadMovie(ctx, in.Movie)
	if err != nil {
		return moviegraph.Review{}, err
	}

	reviewer, err := s.store.PersonByName(ctx, in.Reviewer)
	if errors.Is(err, moviegraph.ErrNotFound) {
		return moviegraph.Review{}, moviegraph.InvalidArgument("No such reviewer")
	}

	if err != nil {
		return moviegraph.Review{}, err
	}

	before := make(map[moviegraph.ID]bool, len(movie.Reviews))
	for _, r := range movie.Reviews {
		before[r.ID] = true
	}

	review := moviegraph.NewReview(reviewer, in.Summary, in.Rating, s.clock())

	saved, err := s.store.SaveMovie(ctx, movie.AppendReview(review))
	if err != nil {
		return moviegraph.Review{}, err
	}

	for _, r := range saved.Reviews {
		if !before[r.ID] && sameReview(r, review) {
			s.logger.Debug("AddMovieReview",
				zap.String("movie", movie.Title),
				zap.String("reviewer", reviewer.Name),
				zap.Stringer("review", r.ID))

			return r, nil
		}
	}

	return moviegraph.Review{}, fmt.Errorf("%w: review by %q missing after saving %q",
		moviegraph.ErrNotFound, in.Reviewer, in.Movie)
}

// sameReview reports whether saved is the persisted form of the unsaved
// review r.
func sameReview(saved, r moviegraph.Review) bool {
	return saved.Reviewer.ID == r.Reviewer.ID &&
		saved.Summary == r.Summary &&
		saved.Rating == r.Rating &&
		saved.CreatedWhen.Equal(r.CreatedWhen)
}

// DeleteMovieReviews removes every review of the named movie. It is
// idempotent.
func (s *Service) DeleteMovieReviews(ctx context.Context, movieName string) (bool, error) {
	movie, err := s.loadMovie(ctx, movieName)
	if err != nil {
		return false, err
	}

	_, err = s.store.SaveMovie(ctx, movie.ClearReviews())
	if err != nil {
		return false, err
	}

	s.logger.Debug("DeleteMovieReviews",
		zap.String("movie", movie.Title),
		zap.Int("deleted", len(movie.Reviews)))

	return true, nil
}

// loadMovie fetches a movie snapshot with its reviews, reporting a miss as an
// invalid argument.
func (s *Service) loadMovie(ctx context.Context, title string) (moviegraph.Movie, error) {
	movie, err := s.store.MovieByTitle(ctx, title)
	if errors.Is(err, moviegraph.ErrNotFound) {
		return moviegraph.Movie{}, moviegraph.InvalidArgument("No such movie")
	}

	if err != nil {
		return moviegraph.Movie{}, err
	}

	reviews, err := s.store.ReviewsByMovieIDs(ctx, []moviegraph.ID{movie.ID})
	if err != nil {
		return moviegraph.Movie{}, err
	}

	return movie.WithReviews(reviews[movie.ID]), nil
}
