package service

import (
	"context"
	"time"

	"github.com/rlch/moviegraph"
	"github.com/rlch/moviegraph/graphql"
)

type identified interface {
	Identity() moviegraph.ID
}

// fetchByIDs loads the related records of a set of parents in one round trip.
type fetchByIDs[T any] func(ctx context.Context, ids []moviegraph.ID) (map[moviegraph.ID][]T, error)

// keepFunc builds a per-call predicate from the field arguments. A nil
// predicate keeps everything.
type keepFunc[T any] func(args map[string]any) func(T) bool

// batchLoader resolves a relationship field for every parent of a level with
// a single store call. Parents without an identity, and parents the store
// returns nothing for, resolve to an empty list. No call is made when no
// parent has an identity.
func batchLoader[T any](fetch fetchByIDs[T], keep keepFunc[T]) graphql.BatchResolveFunc {
	return func(ctx context.Context, p graphql.BatchParams) ([]graphql.BatchResult, error) {
		ids := make([]moviegraph.ID, len(p.Sources))
		query := make([]moviegraph.ID, 0, len(p.Sources))
		seen := make(map[moviegraph.ID]bool, len(p.Sources))

		for i, src := range p.Sources {
			v, ok := src.(identified)
			if !ok {
				continue
			}

			id := v.Identity()
			ids[i] = id

			if id.IsSet() && !seen[id] {
				seen[id] = true
				query = append(query, id)
			}
		}

		var byID map[moviegraph.ID][]T

		if len(query) > 0 {
			var err error

			byID, err = fetch(ctx, query)
			if err != nil {
				return nil, err
			}
		}

		var pred func(T) bool
		if keep != nil {
			pred = keep(p.Args)
		}

		results := make([]graphql.BatchResult, len(p.Sources))

		for i, id := range ids {
			items := make([]T, 0, len(byID[id]))

			if id.IsSet() {
				for _, item := range byID[id] {
					if pred == nil || pred(item) {
						items = append(items, item)
					}
				}
			}

			results[i] = graphql.BatchResult{Value: items}
		}

		return results, nil
	}
}

// sinceFilter keeps reviews created at or after the "since" argument.
func sinceFilter(args map[string]any) func(moviegraph.Review) bool {
	since, ok := args["since"].(time.Time)
	if !ok {
		return nil
	}

	return func(r moviegraph.Review) bool {
		return !r.CreatedWhen.Before(since)
	}
}
