package neo4j

import (
	"github.com/rlch/moviegraph"
)

const (
	queryMovieByTitle = `MATCH (m:Movie {title: $title})
RETURN id(m) AS id, properties(m) AS props
LIMIT 2`

	queryMovies = `MATCH (m:Movie)
RETURN id(m) AS id, properties(m) AS props
ORDER BY id(m)`

	queryPersonByName = `MATCH (p:Person {name: $name})
RETURN id(p) AS id, properties(p) AS props
ORDER BY id(p)
LIMIT 1`

	queryPeople = `MATCH (p:Person)
RETURN id(p) AS id, properties(p) AS props
ORDER BY id(p)`

	queryCreateMovie = `CREATE (m:Movie)
SET m = $props
RETURN id(m) AS id, properties(m) AS props`

	queryUpdateMovie = `MATCH (m:Movie) WHERE id(m) = $id
SET m.title = $props.title, m.tagline = $props.tagline, m.released = $props.released
RETURN id(m) AS id, properties(m) AS props`

	queryDeleteReviews = `MATCH (m:Movie)<-[r:REVIEWED]-(:Person)
WHERE id(m) = $movie AND id(r) IN $dropped
DELETE r`

	queryUpdateReviews = `UNWIND $updates AS u
MATCH (m:Movie)<-[r:REVIEWED]-(:Person)
WHERE id(m) = $movie AND id(r) = u.id
SET r.summary = u.summary, r.rating = u.rating
RETURN count(r) AS n`

	queryCreateReviews = `UNWIND $creates AS c
MATCH (m:Movie), (p:Person)
WHERE id(m) = $movie AND id(p) = c.reviewer
CREATE (m)<-[r:REVIEWED {summary: c.summary, rating: c.rating, createdWhen: c.createdWhen}]-(p)
RETURN count(r) AS n`
)

// relatedQuery returns the batched lookup for a relationship field: every
// edge of rel whose declaring node is one of $ids, with both endpoints.
// Rows are ordered by edge identity so results follow creation order.
func relatedQuery(rel moviegraph.Relationship) string {
	anchor := rel.Tail
	if rel.Direction == moviegraph.Outgoing {
		anchor = rel.Head
	}

	return "MATCH " + rel.Pattern("n:"+anchor, "r", "o") + `
WHERE id(n) IN $ids
RETURN id(n) AS parent, properties(n) AS parentProps,
       id(r) AS rel, properties(r) AS relProps,
       id(o) AS other, properties(o) AS otherProps
ORDER BY id(r)`
}
