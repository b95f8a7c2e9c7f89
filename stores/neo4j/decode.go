package neo4j

import (
	"errors"
	"fmt"
	"time"

	"github.com/rlch/moviegraph"
)

// ErrUnexpectedValue is returned when a row holds a value of the wrong type.
var ErrUnexpectedValue = errors.New("neo4j: unexpected value")

func decodeID(v any) (moviegraph.ID, error) {
	n, ok := v.(int64)
	if !ok {
		return moviegraph.ID{}, fmt.Errorf("%w: identity %T", ErrUnexpectedValue, v)
	}

	return moviegraph.NewID(n), nil
}

func decodeProps(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}

	props, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: properties %T", ErrUnexpectedValue, v)
	}

	return props, nil
}

func decodeMovie(id, props any) (moviegraph.Movie, error) {
	mid, err := decodeID(id)
	if err != nil {
		return moviegraph.Movie{}, err
	}

	p, err := decodeProps(props)
	if err != nil {
		return moviegraph.Movie{}, err
	}

	m := moviegraph.Movie{ID: mid}
	m.Title, _ = p["title"].(string)

	if tagline, ok := p["tagline"].(string); ok {
		m.Tagline = &tagline
	}

	if released, ok := p["released"].(int64); ok {
		m.Released = int(released)
	}

	return m, nil
}

func decodePerson(id, props any) (moviegraph.Person, error) {
	pid, err := decodeID(id)
	if err != nil {
		return moviegraph.Person{}, err
	}

	p, err := decodeProps(props)
	if err != nil {
		return moviegraph.Person{}, err
	}

	person := moviegraph.Person{ID: pid}
	person.Name, _ = p["name"].(string)

	if born, ok := p["born"].(int64); ok {
		b := int(born)
		person.Born = &b
	}

	return person, nil
}

func decodeOtherPerson(row map[string]any) (moviegraph.Person, error) {
	return decodePerson(row["other"], row["otherProps"])
}

func decodeReview(id, props any, reviewer moviegraph.Person) (moviegraph.Review, error) {
	rid, err := decodeID(id)
	if err != nil {
		return moviegraph.Review{}, err
	}

	p, err := decodeProps(props)
	if err != nil {
		return moviegraph.Review{}, err
	}

	r := moviegraph.Review{ID: rid, Reviewer: reviewer}
	r.Summary, _ = p["summary"].(string)

	if rating, ok := p["rating"].(int64); ok {
		r.Rating = int(rating)
	}

	if created, ok := p["createdWhen"].(time.Time); ok {
		r.CreatedWhen = created.UTC()
	}

	return r, nil
}

// decodeMovieReview decodes a REVIEWED row anchored at the movie; the other
// endpoint is the reviewer.
func decodeMovieReview(row map[string]any) (moviegraph.Review, error) {
	reviewer, err := decodePerson(row["other"], row["otherProps"])
	if err != nil {
		return moviegraph.Review{}, err
	}

	return decodeReview(row["rel"], row["relProps"], reviewer)
}

// decodeWrittenReview decodes a REVIEWED row anchored at the reviewer.
func decodeWrittenReview(row map[string]any) (moviegraph.Review, error) {
	reviewer, err := decodePerson(row["parent"], row["parentProps"])
	if err != nil {
		return moviegraph.Review{}, err
	}

	return decodeReview(row["rel"], row["relProps"], reviewer)
}

func decodeRoles(row map[string]any) (moviegraph.Roles, error) {
	rid, err := decodeID(row["rel"])
	if err != nil {
		return moviegraph.Roles{}, err
	}

	p, err := decodeProps(row["relProps"])
	if err != nil {
		return moviegraph.Roles{}, err
	}

	actor, err := decodePerson(row["other"], row["otherProps"])
	if err != nil {
		return moviegraph.Roles{}, err
	}

	roles := []string{}

	switch v := p["roles"].(type) {
	case []any:
		for _, role := range v {
			s, ok := role.(string)
			if !ok {
				return moviegraph.Roles{}, fmt.Errorf("%w: role %T", ErrUnexpectedValue, role)
			}

			roles = append(roles, s)
		}
	case []string:
		roles = append(roles, v...)
	}

	return moviegraph.Roles{ID: rid, Roles: roles, Actor: actor}, nil
}
