// Package neo4j provides a moviegraph.Store backed by a Neo4j database.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rlch/moviegraph"
)

//nolint:gochecknoinits // Store self-registration pattern
func init() {
	moviegraph.RegisterStore("neo4j", func(cfg moviegraph.StoreConfig) (moviegraph.Store, error) {
		return New(cfg)
	})
}

// Store implements moviegraph.Store against Neo4j. Identities are the
// database's internal node and relationship ids.
type Store struct {
	driver neo4j.DriverWithContext
	db     string
}

// New connects to the database described by cfg.
func New(cfg moviegraph.StoreConfig) (*Store, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to create driver: %w", err)
	}

	s := &Store{
		driver: driver,
	}

	if db, ok := cfg.Options["database"].(string); ok {
		s.db = db
	}

	ctx := context.Background()

	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		_ = driver.Close(ctx)

		return nil, fmt.Errorf("neo4j: failed to connect: %w", err)
	}

	return s, nil
}

// Name returns the store identifier.
func (s *Store) Name() string {
	return "neo4j"
}

// Close releases the driver.
func (s *Store) Close() error {
	if s.driver == nil {
		return nil
	}

	err := s.driver.Close(context.Background())
	if err != nil {
		return fmt.Errorf("neo4j: failed to close driver: %w", err)
	}

	return nil
}

// queryFunc runs one statement and returns its rows as maps.
type queryFunc func(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

// read runs a read-only statement with the driver's managed retries.
func (s *Store) read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.db != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.db))
	}

	res, err := neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("neo4j: query execution failed: %w", err)
	}

	return rows(res.Records), nil
}

// inTx adapts a managed transaction to a queryFunc.
func inTx(tx neo4j.ManagedTransaction) queryFunc {
	return func(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, fmt.Errorf("neo4j: query execution failed: %w", err)
		}

		records, err := result.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("neo4j: failed to collect results: %w", err)
		}

		return rows(records), nil
	}
}

func rows(records []*neo4j.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, record := range records {
		out[i] = record.AsMap()
	}

	return out
}

func (s *Store) MovieByTitle(ctx context.Context, title string) (moviegraph.Movie, error) {
	rs, err := s.read(ctx, queryMovieByTitle, map[string]any{"title": title})
	if err != nil {
		return moviegraph.Movie{}, err
	}

	switch len(rs) {
	case 0:
		return moviegraph.Movie{}, fmt.Errorf("%w: movie %q", moviegraph.ErrNotFound, title)
	case 1:
		return decodeMovie(rs[0]["id"], rs[0]["props"])
	default:
		return moviegraph.Movie{}, fmt.Errorf("%w: more than one movie titled %q", moviegraph.ErrAmbiguous, title)
	}
}

func (s *Store) Movies(ctx context.Context) ([]moviegraph.Movie, error) {
	rs, err := s.read(ctx, queryMovies, nil)
	if err != nil {
		return nil, err
	}

	movies := make([]moviegraph.Movie, 0, len(rs))

	for _, r := range rs {
		m, err := decodeMovie(r["id"], r["props"])
		if err != nil {
			return nil, err
		}

		movies = append(movies, m)
	}

	return movies, nil
}

func (s *Store) PersonByName(ctx context.Context, name string) (moviegraph.Person, error) {
	rs, err := s.read(ctx, queryPersonByName, map[string]any{"name": name})
	if err != nil {
		return moviegraph.Person{}, err
	}

	if len(rs) == 0 {
		return moviegraph.Person{}, fmt.Errorf("%w: person %q", moviegraph.ErrNotFound, name)
	}

	return decodePerson(rs[0]["id"], rs[0]["props"])
}

func (s *Store) People(ctx context.Context) ([]moviegraph.Person, error) {
	rs, err := s.read(ctx, queryPeople, nil)
	if err != nil {
		return nil, err
	}

	people := make([]moviegraph.Person, 0, len(rs))

	for _, r := range rs {
		p, err := decodePerson(r["id"], r["props"])
		if err != nil {
			return nil, err
		}

		people = append(people, p)
	}

	return people, nil
}

func (s *Store) Follows(ctx context.Context, person moviegraph.ID) ([]moviegraph.Person, error) {
	return s.relatedPeople(ctx, moviegraph.PersonFollows, person)
}

func (s *Store) Followers(ctx context.Context, person moviegraph.ID) ([]moviegraph.Person, error) {
	return s.relatedPeople(ctx, moviegraph.PersonFollowers, person)
}

func (s *Store) relatedPeople(ctx context.Context, rel moviegraph.Relationship, person moviegraph.ID) ([]moviegraph.Person, error) {
	byParent, err := related(ctx, s.read, rel, []moviegraph.ID{person}, decodeOtherPerson)
	if err != nil {
		return nil, err
	}

	people := byParent[person]
	if people == nil {
		people = []moviegraph.Person{}
	}

	return people, nil
}

func (s *Store) ReviewsByMovieIDs(ctx context.Context, movies []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	return related(ctx, s.read, moviegraph.MovieReviews, movies, decodeMovieReview)
}

func (s *Store) DirectorsByMovieIDs(ctx context.Context, movies []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Person, error) {
	return related(ctx, s.read, moviegraph.MovieDirector, movies, decodeOtherPerson)
}

func (s *Store) CastByMovieIDs(ctx context.Context, movies []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Roles, error) {
	return related(ctx, s.read, moviegraph.MovieCast, movies, decodeRoles)
}

func (s *Store) ReviewsByReviewerIDs(ctx context.Context, people []moviegraph.ID) (map[moviegraph.ID][]moviegraph.Review, error) {
	return related(ctx, s.read, moviegraph.PersonWroteReviews, people, decodeWrittenReview)
}

// related runs the batched relationship query for rel and groups the decoded
// rows by parent identity.
func related[T any](
	ctx context.Context,
	run queryFunc,
	rel moviegraph.Relationship,
	parents []moviegraph.ID,
	decode func(row map[string]any) (T, error),
) (map[moviegraph.ID][]T, error) {
	out := make(map[moviegraph.ID][]T, len(parents))
	if len(parents) == 0 {
		return out, nil
	}

	rs, err := run(ctx, relatedQuery(rel), map[string]any{"ids": rawIDs(parents)})
	if err != nil {
		return nil, err
	}

	for _, r := range rs {
		parent, err := decodeID(r["parent"])
		if err != nil {
			return nil, err
		}

		v, err := decode(r)
		if err != nil {
			return nil, err
		}

		out[parent] = append(out[parent], v)
	}

	return out, nil
}

// SaveMovie upserts the movie and synchronises its REVIEWED relationships in
// one write transaction.
func (s *Store) SaveMovie(ctx context.Context, movie moviegraph.Movie) (moviegraph.Movie, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.db,
	})
	defer func() { _ = session.Close(ctx) }()

	return neo4j.ExecuteWrite[moviegraph.Movie](ctx, session, func(tx neo4j.ManagedTransaction) (moviegraph.Movie, error) {
		return saveMovie(ctx, inTx(tx), movie)
	})
}

func saveMovie(ctx context.Context, run queryFunc, movie moviegraph.Movie) (moviegraph.Movie, error) {
	var tagline any
	if movie.Tagline != nil {
		tagline = *movie.Tagline
	}

	props := map[string]any{
		"title":    movie.Title,
		"tagline":  tagline,
		"released": int64(movie.Released),
	}

	query := queryCreateMovie
	params := map[string]any{"props": props}

	if raw, ok := movie.ID.Value(); ok {
		query = queryUpdateMovie
		params["id"] = raw
	}

	rs, err := run(ctx, query, params)
	if err != nil {
		return moviegraph.Movie{}, err
	}

	if len(rs) == 0 {
		return moviegraph.Movie{}, fmt.Errorf("%w: movie %s", moviegraph.ErrNotFound, movie.ID)
	}

	saved, err := decodeMovie(rs[0]["id"], rs[0]["props"])
	if err != nil {
		return moviegraph.Movie{}, err
	}

	if movie.Reviews != nil {
		err = syncReviews(ctx, run, saved.ID, movie.Reviews, movie.DroppedReviews())
		if err != nil {
			return moviegraph.Movie{}, err
		}
	}

	reviews, err := related(ctx, run, moviegraph.MovieReviews, []moviegraph.ID{saved.ID}, decodeMovieReview)
	if err != nil {
		return moviegraph.Movie{}, err
	}

	return saved.WithReviews(reviews[saved.ID]), nil
}

func syncReviews(ctx context.Context, run queryFunc, movie moviegraph.ID, reviews []moviegraph.Review,
	dropped []moviegraph.ID,
) error {
	movieID, _ := movie.Value()

	updates := []map[string]any{}
	creates := []map[string]any{}

	for _, r := range reviews {
		if raw, ok := r.ID.Value(); ok {
			updates = append(updates, map[string]any{
				"id":      raw,
				"summary": r.Summary,
				"rating":  int64(r.Rating),
			})

			continue
		}

		reviewer, ok := r.Reviewer.ID.Value()
		if !ok {
			return fmt.Errorf("%w: reviewer %q", moviegraph.ErrNotFound, r.Reviewer.Name)
		}

		var created any
		if !r.CreatedWhen.IsZero() {
			created = r.CreatedWhen.UTC()
		}

		creates = append(creates, map[string]any{
			"reviewer":    reviewer,
			"summary":     r.Summary,
			"rating":      int64(r.Rating),
			"createdWhen": created,
		})
	}

	if len(dropped) > 0 {
		_, err := run(ctx, queryDeleteReviews, map[string]any{"movie": movieID, "dropped": rawIDs(dropped)})
		if err != nil {
			return err
		}
	}

	if len(updates) > 0 {
		err := expectCount(ctx, run, queryUpdateReviews, map[string]any{"movie": movieID, "updates": updates},
			len(updates), "review of movie "+movie.String())
		if err != nil {
			return err
		}
	}

	if len(creates) > 0 {
		err := expectCount(ctx, run, queryCreateReviews, map[string]any{"movie": movieID, "creates": creates},
			len(creates), "reviewer")
		if err != nil {
			return err
		}
	}

	return nil
}

// expectCount runs a statement returning "n" and fails with ErrNotFound when
// fewer than want rows were affected.
func expectCount(ctx context.Context, run queryFunc, query string, params map[string]any, want int, what string) error {
	rs, err := run(ctx, query, params)
	if err != nil {
		return err
	}

	var n int64
	if len(rs) > 0 {
		n, _ = rs[0]["n"].(int64)
	}

	if int(n) != want {
		return fmt.Errorf("%w: %s (matched %d of %d)", moviegraph.ErrNotFound, what, n, want)
	}

	return nil
}

func rawIDs(ids []moviegraph.ID) []int64 {
	out := make([]int64, 0, len(ids))

	for _, id := range ids {
		if raw, ok := id.Value(); ok {
			out = append(out, raw)
		}
	}

	return out
}

var _ moviegraph.Store = (*Store)(nil)
