package service

import (
	"context"

	"github.com/rlch/moviegraph"
	"github.com/rlch/moviegraph/graphql"
)

// Registry returns the resolvers of every schema field that is not read
// directly from its parent value.
func (s *Service) Registry() *graphql.Registry {
	r := graphql.NewRegistry()

	r.Scalar("ID", idScalar)
	r.Scalar("Instant", instantScalar)

	r.Field("Query", "movie", func(ctx context.Context, p graphql.ResolveParams) (any, error) {
		name, _ := p.Args["name"].(string)

		return s.Movie(ctx, name)
	})
	r.Field("Query", "movies", func(ctx context.Context, _ graphql.ResolveParams) (any, error) {
		return s.Movies(ctx)
	})
	r.Field("Query", "person", func(ctx context.Context, p graphql.ResolveParams) (any, error) {
		name, _ := p.Args["name"].(string)

		person, err := s.Person(ctx, name)
		if person == nil {
			return nil, err
		}

		return *person, err
	})
	r.Field("Query", "people", func(ctx context.Context, _ graphql.ResolveParams) (any, error) {
		return s.People(ctx)
	})

	r.Field("Mutation", "addMovieReview", func(ctx context.Context, p graphql.ResolveParams) (any, error) {
		input, _ := p.Args["input"].(map[string]any)

		in := AddMovieReviewInput{}
		in.Movie, _ = input["movie"].(string)
		in.Reviewer, _ = input["reviewer"].(string)
		in.Summary, _ = input["summary"].(string)
		in.Rating, _ = input["rating"].(int)

		return s.AddMovieReview(ctx, in)
	})
	r.Field("Mutation", "deleteMovieReviews", func(ctx context.Context, p graphql.ResolveParams) (any, error) {
		name, _ := p.Args["movieName"].(string)

		return s.DeleteMovieReviews(ctx, name)
	})

	r.Batch("Movie", moviegraph.MovieReviews.Field, batchLoader[moviegraph.Review](s.store.ReviewsByMovieIDs, sinceFilter))
	r.Batch("Movie", moviegraph.MovieDirector.Field, batchLoader[moviegraph.Person](s.store.DirectorsByMovieIDs, nil))
	r.Batch("Movie", moviegraph.MovieCast.Field, batchLoader[moviegraph.Roles](s.store.CastByMovieIDs, nil))
	r.Batch("Person", moviegraph.PersonWroteReviews.Field, batchLoader[moviegraph.Review](s.store.ReviewsByReviewerIDs, nil))

	r.Field("Person", moviegraph.PersonFollows.Field, func(ctx context.Context, p graphql.ResolveParams) (any, error) {
		return s.Follows(ctx, asPerson(p.Source))
	})
	r.Field("Person", moviegraph.PersonFollowers.Field, func(ctx context.Context, p graphql.ResolveParams) (any, error) {
		return s.Followers(ctx, asPerson(p.Source))
	})

	return r
}

// NewExecutor returns an executor serving the service schema.
func (s *Service) NewExecutor() (*graphql.Executor, error) {
	schema, err := Schema()
	if err != nil {
		return nil, err
	}

	return graphql.NewExecutor(schema, s.Registry(),
		graphql.WithLogger(s.logger),
		graphql.WithConcurrency(s.concurrency))
}

func asPerson(v any) moviegraph.Person {
	switch p := v.(type) {
	case moviegraph.Person:
		return p
	case *moviegraph.Person:
		if p != nil {
			return *p
		}
	}

	return moviegraph.Person{}
}
