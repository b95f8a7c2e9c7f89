package memory

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rlch/moviegraph"
)

//go:embed movies.yaml
var defaultDataset []byte

// Dataset is a seed graph. People are referenced by name everywhere else.
type Dataset struct {
	People  []PersonRecord `yaml:"people"`
	Movies  []MovieRecord  `yaml:"movies"`
	Follows []FollowRecord `yaml:"follows"`
}

// PersonRecord is a seeded person.
type PersonRecord struct {
	Name string `yaml:"name"`
	Born *int   `yaml:"born,omitempty"`
}

// MovieRecord is a seeded movie with its relationships.
type MovieRecord struct {
	Title     string         `yaml:"title"`
	Tagline   *string        `yaml:"tagline,omitempty"`
	Released  int            `yaml:"released"`
	Directors []string       `yaml:"directors,omitempty"`
	Cast      []RoleRecord   `yaml:"cast,omitempty"`
	Reviews   []ReviewRecord `yaml:"reviews,omitempty"`
}

// RoleRecord is a seeded ACTED_IN relationship.
type RoleRecord struct {
	Actor string   `yaml:"actor"`
	Roles []string `yaml:"roles"`
}

// ReviewRecord is a seeded REVIEWED relationship.
type ReviewRecord struct {
	Reviewer    string `yaml:"reviewer"`
	Summary     string `yaml:"summary"`
	Rating      int    `yaml:"rating"`
	CreatedWhen string `yaml:"createdWhen,omitempty"`
}

// FollowRecord is a seeded FOLLOWS relationship.
type FollowRecord struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// DefaultDataset returns the embedded movie graph.
func DefaultDataset() (Dataset, error) {
	var ds Dataset

	err := yaml.Unmarshal(defaultDataset, &ds)
	if err != nil {
		return Dataset{}, fmt.Errorf("memory: failed to parse default dataset: %w", err)
	}

	return ds, nil
}

// ReadDataset parses a YAML dataset.
func ReadDataset(r io.Reader) (Dataset, error) {
	var ds Dataset

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(&ds)
	if err != nil && err != io.EOF {
		return Dataset{}, fmt.Errorf("memory: failed to parse dataset: %w", err)
	}

	return ds, nil
}

// LoadDataset reads a YAML dataset from a file.
func LoadDataset(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("memory: failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadDataset(f)
}

// Seed adds the dataset to the store. Names must refer to seeded people.
func (s *Store) Seed(ds Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName := make(map[string]moviegraph.ID, len(ds.People))

	for _, p := range ds.People {
		if _, dup := byName[p.Name]; dup {
			return fmt.Errorf("%w: person %q seeded twice", moviegraph.ErrAmbiguous, p.Name)
		}

		id := s.newID()
		byName[p.Name] = id
		s.people = append(s.people, moviegraph.Person{ID: id, Name: p.Name, Born: p.Born})
	}

	person := func(name string) (moviegraph.ID, error) {
		id, ok := byName[name]
		if !ok {
			return moviegraph.ID{}, fmt.Errorf("%w: person %q is not seeded", moviegraph.ErrNotFound, name)
		}

		return id, nil
	}

	for _, m := range ds.Movies {
		movieID := s.newID()
		s.movies = append(s.movies, moviegraph.Movie{
			ID:       movieID,
			Title:    m.Title,
			Tagline:  m.Tagline,
			Released: m.Released,
		})

		for _, name := range m.Directors {
			pid, err := person(name)
			if err != nil {
				return err
			}

			s.directed = append(s.directed, edge{id: s.newID(), head: pid, tail: movieID})
		}

		for _, r := range m.Cast {
			pid, err := person(r.Actor)
			if err != nil {
				return err
			}

			s.actedIn = append(s.actedIn, roleEdge{
				edge:  edge{id: s.newID(), head: pid, tail: movieID},
				roles: append([]string(nil), r.Roles...),
			})
		}

		for _, r := range m.Reviews {
			pid, err := person(r.Reviewer)
			if err != nil {
				return err
			}

			var created time.Time
			if r.CreatedWhen != "" {
				created, err = time.Parse(time.RFC3339Nano, r.CreatedWhen)
				if err != nil {
					return fmt.Errorf("memory: review of %q by %q: %w", m.Title, r.Reviewer, err)
				}
			}

			s.reviewed = append(s.reviewed, reviewEdge{
				edge:        edge{id: s.newID(), head: pid, tail: movieID},
				summary:     r.Summary,
				rating:      r.Rating,
				createdWhen: created.UTC(),
			})
		}
	}

	for _, f := range ds.Follows {
		from, err := person(f.From)
		if err != nil {
			return err
		}

		to, err := person(f.To)
		if err != nil {
			return err
		}

		s.follows = append(s.follows, edge{id: s.newID(), head: from, tail: to})
	}

	return nil
}
