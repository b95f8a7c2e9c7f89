package moviegraph

import (
	"slices"
	"time"
)

// Movie is a movie node.
//
// Reviews holds the movie's REVIEWED relationships when they have been
// loaded. A Movie is a snapshot: the review commands return a new value and
// never share the receiver's review slice. The snapshot remembers which
// saved reviews it was loaded with, so a save only deletes reviews that were
// dropped from it.
type Movie struct {
	ID       ID      `json:"id"`
	Title    string  `json:"title"`
	Tagline  *string `json:"tagline"`
	Released int     `json:"released"`

	Reviews []Review `json:"-"`

	loaded []ID
}

// Identity returns the movie's store identity.
func (m Movie) Identity() ID { return m.ID }

// AppendReview returns a copy of m with r added to its reviews.
func (m Movie) AppendReview(r Review) Movie {
	reviews := make([]Review, 0, len(m.Reviews)+1)
	reviews = append(reviews, m.Reviews...)
	reviews = append(reviews, r)

	m.Reviews = reviews

	return m
}

// UpdateReview returns a copy of m in which the review with r's ID is
// replaced by r. It is a no-op when m holds no such review.
func (m Movie) UpdateReview(r Review) Movie {
	m.Reviews = slices.Clone(m.Reviews)

	for i := range m.Reviews {
		if r.ID.IsSet() && m.Reviews[i].ID == r.ID {
			m.Reviews[i] = r
		}
	}

	return m
}

// RemoveReview returns a copy of m without the review identified by id.
func (m Movie) RemoveReview(id ID) Movie {
	reviews := make([]Review, 0, len(m.Reviews))

	for _, r := range m.Reviews {
		if r.ID != id || !id.IsSet() {
			reviews = append(reviews, r)
		}
	}

	m.Reviews = reviews

	return m
}

// ClearReviews returns a copy of m without any reviews.
func (m Movie) ClearReviews() Movie {
	m.Reviews = []Review{}

	return m
}

// WithReviews returns a copy of m holding a private copy of reviews, as
// loaded from the store.
func (m Movie) WithReviews(reviews []Review) Movie {
	m.Reviews = slices.Clone(reviews)
	if m.Reviews == nil {
		m.Reviews = []Review{}
	}

	m.loaded = IDs(m.Reviews)

	return m
}

// DroppedReviews returns the saved reviews m was loaded with that it no
// longer holds. Reviews saved by others after m was loaded are never
// included.
func (m Movie) DroppedReviews() []ID {
	if m.Reviews == nil {
		return nil
	}

	held := make(map[ID]bool, len(m.Reviews))
	for _, r := range m.Reviews {
		held[r.ID] = true
	}

	var dropped []ID

	for _, id := range m.loaded {
		if !held[id] {
			dropped = append(dropped, id)
		}
	}

	return dropped
}

// Person is a person node.
type Person struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Born *int   `json:"born"`
}

// Identity returns the person's store identity.
func (p Person) Identity() ID { return p.ID }

// Review is the payload of a REVIEWED relationship from a reviewer to a
// movie. CreatedWhen is set once when the review is created.
type Review struct {
	ID          ID        `json:"id"`
	Summary     string    `json:"summary"`
	Rating      int       `json:"rating"`
	Reviewer    Person    `json:"reviewer"`
	CreatedWhen time.Time `json:"createdWhen"`
}

// Identity returns the relationship identity.
func (r Review) Identity() ID { return r.ID }

// NewReview builds an unsaved review stamped at now.
func NewReview(reviewer Person, summary string, rating int, now time.Time) Review {
	return Review{
		Summary:     summary,
		Rating:      rating,
		Reviewer:    reviewer,
		CreatedWhen: now.UTC(),
	}
}

// Roles is the payload of an ACTED_IN relationship from an actor to a movie.
// Role names keep their order and may repeat.
type Roles struct {
	ID    ID       `json:"id"`
	Roles []string `json:"roles"`
	Actor Person   `json:"actor"`
}

// Identity returns the relationship identity.
func (r Roles) Identity() ID { return r.ID }
