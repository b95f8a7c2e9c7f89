package moviegraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is the graph store the service resolves against.
//
// Lookups by natural key (title, name) are exact and case-sensitive.
// Batched lookups take a set of parent identities and return the related
// records grouped by parent; parents without related records may be absent
// from the map.
type Store interface {
	// Name returns the store identifier (e.g., "neo4j", "memory").
	Name() string

	// MovieByTitle returns the movie with the given title, without its
	// relationships. It returns ErrNotFound on a miss and ErrAmbiguous when
	// more than one movie has the title.
	MovieByTitle(ctx context.Context, title string) (Movie, error)

	// Movies returns every movie in store order.
	Movies(ctx context.Context) ([]Movie, error)

	// PersonByName returns the first person with the given name, or ErrNotFound.
	PersonByName(ctx context.Context, name string) (Person, error)

	// People returns every person in store order.
	People(ctx context.Context) ([]Person, error)

	// Follows returns the people that person follows.
	Follows(ctx context.Context, person ID) ([]Person, error)

	// Followers returns the people following person.
	Followers(ctx context.Context, person ID) ([]Person, error)

	// ReviewsByMovieIDs returns the reviews of each movie in one round trip.
	ReviewsByMovieIDs(ctx context.Context, movies []ID) (map[ID][]Review, error)

	// DirectorsByMovieIDs returns the directors of each movie in one round trip.
	DirectorsByMovieIDs(ctx context.Context, movies []ID) (map[ID][]Person, error)

	// CastByMovieIDs returns the cast roles of each movie in one round trip.
	CastByMovieIDs(ctx context.Context, movies []ID) (map[ID][]Roles, error)

	// ReviewsByReviewerIDs returns the reviews written by each person in one round trip.
	ReviewsByReviewerIDs(ctx context.Context, people []ID) (map[ID][]Review, error)

	// SaveMovie upserts the movie and applies its review changes: unsaved
	// reviews are created, saved ones are updated and those in
	// movie.DroppedReviews are deleted. Reviews the snapshot never saw are
	// left alone. A nil Reviews slice means the relationships were never
	// loaded and leaves them untouched. It returns the persisted snapshot
	// with its reviews.
	SaveMovie(ctx context.Context, movie Movie) (Movie, error)

	// Close releases any resources held by the store.
	Close() error
}

// StoreFactory creates a Store from configuration.
type StoreFactory func(cfg StoreConfig) (Store, error)

// StoreConfig holds connection settings for a store.
type StoreConfig struct {
	// Connection URI (e.g., "bolt://localhost:7687")
	URI string `yaml:"uri"`

	// Optional credentials (if not in URI)
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Seed is a dataset file loaded by stores that support seeding.
	Seed string `yaml:"seed,omitempty"`

	// Store-specific options
	Options map[string]any `yaml:"options,omitempty"`
}

var (
	storesMu sync.RWMutex
	stores   = make(map[string]StoreFactory)
)

// RegisterStore registers a store factory by name. It is safe to call from
// multiple goroutines.
func RegisterStore(name string, factory StoreFactory) {
	storesMu.Lock()
	defer storesMu.Unlock()

	stores[name] = factory
}

// NewStore creates a store instance by name.
func NewStore(name string, cfg StoreConfig) (Store, error) { //nolint:ireturn
	storesMu.RLock()
	factory, ok := stores[name]
	storesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}

	return factory(cfg)
}

// RegisteredStores returns the names of all registered stores, sorted.
func RegisteredStores() []string {
	storesMu.RLock()
	defer storesMu.RUnlock()

	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
