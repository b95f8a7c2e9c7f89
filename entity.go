// Package moviegraph provides the entity model and store contract for a
// social/review graph of movies, people and the reviews they write.
package moviegraph

import (
	"strconv"
)

// ID is a store-assigned identity. The zero ID is unset: entities that have
// not been persisted yet carry no identity, which is distinct from ID 0.
type ID struct {
	value int64
	set   bool
}

// NewID returns a set identity.
func NewID(v int64) ID {
	return ID{value: v, set: true}
}

// Value returns the raw identity and whether it is set.
func (id ID) Value() (int64, bool) {
	return id.value, id.set
}

// IsSet reports whether the identity was assigned by a store.
func (id ID) IsSet() bool {
	return id.set
}

// String renders the identity, or the empty string when unset.
func (id ID) String() string {
	if !id.set {
		return ""
	}

	return strconv.FormatInt(id.value, 10)
}

// MarshalText implements encoding.TextMarshaler. Unset IDs marshal to "".
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// ParseID parses a decimal identity.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ID{}, err
	}

	return NewID(v), nil
}

// IDs returns the set identities of the given values, skipping unset ones.
func IDs[T interface{ Identity() ID }](values []T) []ID {
	ids := make([]ID, 0, len(values))

	for _, v := range values {
		if id := v.Identity(); id.IsSet() {
			ids = append(ids, id)
		}
	}

	return ids
}

// Direction is the direction of a relationship relative to the entity that
// declares it.
type Direction int

const (
	// Outgoing relationships start at the declaring entity.
	Outgoing Direction = iota
	// Incoming relationships end at the declaring entity.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "<-"
	}

	return "->"
}

// Relationship describes a relationship field: its edge label, direction,
// and the labels of the head (start) and tail (end) nodes of the edge.
type Relationship struct {
	Field     string
	Type      string
	Direction Direction
	Head      string
	Tail      string
}

// Pattern renders the relationship as a Cypher pattern anchored at the
// declaring node, e.g. "(n)<-[r:REVIEWED]-(o:Person)".
func (r Relationship) Pattern(anchor, rel, other string) string {
	otherLabel := r.Tail
	if r.Direction == Incoming {
		otherLabel = r.Head
	}

	edge := "[" + rel + ":" + r.Type + "]"
	if r.Direction == Incoming {
		return "(" + anchor + ")<-" + edge + "-(" + other + ":" + otherLabel + ")"
	}

	return "(" + anchor + ")-" + edge + "->(" + other + ":" + otherLabel + ")"
}

// Node labels.
const (
	LabelMovie  = "Movie"
	LabelPerson = "Person"
)

// Relationship descriptors for every relationship field of the model.
var (
	MovieDirector = Relationship{
		Field: "director", Type: "DIRECTED", Direction: Incoming, Head: LabelPerson, Tail: LabelMovie,
	}
	MovieCast = Relationship{
		Field: "cast", Type: "ACTED_IN", Direction: Incoming, Head: LabelPerson, Tail: LabelMovie,
	}
	MovieReviews = Relationship{
		Field: "reviews", Type: "REVIEWED", Direction: Incoming, Head: LabelPerson, Tail: LabelMovie,
	}
	PersonFollows = Relationship{
		Field: "follows", Type: "FOLLOWS", Direction: Outgoing, Head: LabelPerson, Tail: LabelPerson,
	}
	PersonFollowers = Relationship{
		Field: "followers", Type: "FOLLOWS", Direction: Incoming, Head: LabelPerson, Tail: LabelPerson,
	}
	PersonWroteReviews = Relationship{
		Field: "wroteReviews", Type: "REVIEWED", Direction: Outgoing, Head: LabelPerson, Tail: LabelMovie,
	}
)
