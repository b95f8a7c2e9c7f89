// Package memory provides an in-process moviegraph.Store. It is seeded from
// a YAML dataset and is used for demos and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rlch/moviegraph"
)

func init() {
	moviegraph.RegisterStore("memory", func(cfg moviegraph.StoreConfig) (moviegraph.Store, error) {
		return Open(cfg)
	})
}

// SeedNone disables seeding when used as the seed path.
const SeedNone = "none"

type edge struct {
	id   moviegraph.ID
	head moviegraph.ID
	tail moviegraph.ID
}

type roleEdge struct {
	edge

	roles []string
}

type reviewEdge struct {
	edge

	summary     string
	rating      int
	createdWhen time.Time
}

// Store is an in-memory graph. Nodes and relationships share one identity
// sequence, like the internal ids of a Neo4j database.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	movies   []moviegraph.Movie
	people   []moviegraph.Person
	directed []edge
	actedIn  []roleEdge
	reviewed []reviewEdge
	follows  []edge
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Open returns a store seeded according to cfg.Seed: the embedded dataset
// when empty, nothing for SeedNone, otherwise the dataset file at that path.
func Open(cfg moviegraph.StoreConfig) (*Store, error) {
	s := New()

	var (
		ds  Dataset
		err error
	)

	switch cfg.Seed {
	case SeedNone:
		return s, nil
	case "":
		ds, err = DefaultDataset()
	default:
		ds, err = LoadDataset(cfg.Seed)
	}

	if err != nil {
		return nil, err
	}

	err = s.Seed(ds)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) newID() moviegraph.ID {
	s.nextID++

	return moviegraph.NewID(s.nextID)
}

// Name returns "memory".
func (s *Store) Name() string {
	return "memory"
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) MovieByTitle(_ context.Context, title string) (moviegraph.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found moviegraph.Movie
		n     int
	)

	for _, m := range s.movies {
		if m.Title == title {
			found = m
			n++
		}
	}

	switch n {
	case 0:
		return moviegraph.Movie{}, fmt.Errorf("%w: movie %q", moviegraph.ErrNotFound, title)
	case 1:
		return found, nil
	default:
		return moviegraph.Movie{}, fmt.Errorf("%w: %d movies titled %q", moviegraph.ErrAmbiguous, n, title)
	}
}

func (s *Store) Movies(_ context.Context) ([]moviegraph.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.movies), nil
}

func (s *Store) PersonByName(_ context.Context, name string) (moviegraph.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.people {
		if p.Name == name {
			return p, nil
		}
	}

	return moviegraph.Person{}, fmt.Errorf("%w: person %q", moviegraph.ErrNotFound, name)
}

func (s *Store) People(_ context.Context) ([]moviegraph.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.people), nil
}

func (s *Store) Follows(_ context.Context, person moviegraph.ID) ([]moviegraph.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []moviegraph.Person{}

	for _, e := range s.follows {
		if e.head == person {
			out = append(out, s.person(e.tail))
		}
	}

	return out, nil
}

func (s *Store) Followers(_ context.Context, person moviegraph.ID) ([]moviegraph.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []moviegraph.Person{}

	for _, e := range s.follows {
		if e.tail == person {
			out = append(out, s.person(e.head))
		}
	}

	return out, nil
}

func (s *Store) ReviewsByMovieIDs(_ context.Context, movies []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := set(movies)
	out := make(map[moviegraph.ID][]moviegraph.Review, len(movies))

	for _, e := range s.reviewed {
		if want[e.tail] {
			out[e.tail] = append(out[e.tail], s.review(e))
		}
	}

	return out, nil
}

func (s *Store) DirectorsByMovieIDs(_ context.Context, movies []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := set(movies)
	out := make(map[moviegraph.ID][]moviegraph.Person, len(movies))

	for _, e := range s.directed {
		if want[e.tail] {
			out[e.tail] = append(out[e.tail], s.person(e.head))
		}
	}

	return out, nil
}

func (s *Store) CastByMovieIDs(_ context.Context, movies []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Roles, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := set(movies)
	out := make(map[moviegraph.ID][]moviegraph.Roles, len(movies))

	for _, e := range s.actedIn {
		if want[e.tail] {
			out[e.tail] = append(out[e.tail], moviegraph.Roles{
				ID:    e.id,
				Roles: slices.Clone(e.roles),
				Actor: s.person(e.head),
			})
		}
	}

	return out, nil
}

func (s *Store) ReviewsByReviewerIDs(_ context.Context, people []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := set(people)
	out := make(map[moviegraph.ID][]moviegraph.Review, len(people))

	for _, e := range s.reviewed {
		if want[e.head] {
			out[e.head] = append(out[e.head], s.review(e))
		}
	}

	return out, nil
}

// SaveMovie upserts movie. When movie.Reviews is non-nil its review changes
// are applied to the movie's REVIEWED edges: set IDs update the properties of
// existing edges, unset IDs create new ones and the snapshot's dropped
// reviews are deleted. An existing edge keeps its reviewer.
func (s *Store) SaveMovie(_ context.Context, movie moviegraph.Movie) (moviegraph.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1

	if movie.ID.IsSet() {
		idx = slices.IndexFunc(s.movies, func(m moviegraph.Movie) bool { return m.ID == movie.ID })
		if idx < 0 {
			return moviegraph.Movie{}, fmt.Errorf("%w: movie %s", moviegraph.ErrNotFound, movie.ID)
		}
	}

	if movie.Reviews != nil {
		err := s.checkReviews(movie)
		if err != nil {
			return moviegraph.Movie{}, err
		}
	}

	stored := moviegraph.Movie{
		ID:       movie.ID,
		Title:    movie.Title,
		Tagline:  movie.Tagline,
		Released: movie.Released,
	}

	if idx < 0 {
		stored.ID = s.newID()
		s.movies = append(s.movies, stored)
	} else {
		s.movies[idx] = stored
	}

	if movie.Reviews != nil {
		s.syncReviews(stored.ID, movie.Reviews, movie.DroppedReviews())
	}

	var reviews []moviegraph.Review

	for _, e := range s.reviewed {
		if e.tail == stored.ID {
			reviews = append(reviews, s.review(e))
		}
	}

	return stored.WithReviews(reviews), nil
}

// checkReviews validates a snapshot before anything is written.
func (s *Store) checkReviews(movie moviegraph.Movie) error {
	for _, r := range movie.Reviews {
		if !r.Reviewer.ID.IsSet() || s.personIndex(r.Reviewer.ID) < 0 {
			return fmt.Errorf("%w: reviewer %q", moviegraph.ErrNotFound, r.Reviewer.Name)
		}

		if !r.ID.IsSet() {
			continue
		}

		ok := slices.ContainsFunc(s.reviewed, func(e reviewEdge) bool {
			return e.id == r.ID && e.tail == movie.ID
		})
		if !ok {
			return fmt.Errorf("%w: review %s of movie %q", moviegraph.ErrNotFound, r.ID, movie.Title)
		}
	}

	return nil
}

func (s *Store) syncReviews(movie moviegraph.ID, reviews []moviegraph.Review, dropped []moviegraph.ID) {
	updates := make(map[moviegraph.ID]moviegraph.Review, len(reviews))
	for _, r := range reviews {
		if r.ID.IsSet() {
			updates[r.ID] = r
		}
	}

	kept := s.reviewed[:0]

	for _, e := range s.reviewed {
		if e.tail == movie && slices.Contains(dropped, e.id) {
			continue
		}

		if r, ok := updates[e.id]; ok && e.tail == movie {
			e.summary = r.Summary
			e.rating = r.Rating
		}

		kept = append(kept, e)
	}

	s.reviewed = kept

	for _, r := range reviews {
		if r.ID.IsSet() {
			continue
		}

		s.reviewed = append(s.reviewed, reviewEdge{
			edge:        edge{id: s.newID(), head: r.Reviewer.ID, tail: movie},
			summary:     r.Summary,
			rating:      r.Rating,
			createdWhen: r.CreatedWhen.UTC(),
		})
	}
}

func (s *Store) personIndex(id moviegraph.ID) int {
	return slices.IndexFunc(s.people, func(p moviegraph.Person) bool { return p.ID == id })
}

func (s *Store) person(id moviegraph.ID) moviegraph.Person {
	if i := s.personIndex(id); i >= 0 {
		return s.people[i]
	}

	return moviegraph.Person{ID: id}
}

func (s *Store) review(e reviewEdge) moviegraph.Review {
	return moviegraph.Review{
		ID:          e.id,
		Summary:     e.summary,
		Rating:      e.rating,
		Reviewer:    s.person(e.head),
		CreatedWhen: e.createdWhen,
	}
}

func set(ids []moviegraph.ID) map[moviegraph.ID]bool {
	m := make(map[moviegraph.ID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}

	return m
}

var _ moviegraph.Store = (*Store)(nil)
