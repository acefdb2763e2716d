package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/creachadair/atomicfile"

	"recipe-swap/internal/proto"
)

const DefaultPath = "./recipes.json"

var (
	ErrNotFound  = errors.New("recipe not found")
	ErrEmptyName = errors.New("recipe name is empty")
	ErrIDSpace   = errors.New("recipe id space exhausted")
)

// Store keeps the local recipes in a single JSON file. Every call re-reads
// the file; mutations rewrite it whole through a temp file and rename, so
// concurrent readers only ever see a complete array.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store at path after checking that any existing file
// decodes. A missing file is an empty catalog.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// ReadAll returns every recipe in insertion order.
func (s *Store) ReadAll(ctx context.Context) ([]proto.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Create appends a private recipe with id max+1, or 0 in an empty catalog.
func (s *Store) Create(ctx context.Context, name, ingredients, instructions string) (proto.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return proto.Recipe{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return proto.Recipe{}, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return proto.Recipe{}, err
	}

	id, err := nextID(all)
	if err != nil {
		return proto.Recipe{}, err
	}
	r := proto.Recipe{
		ID:           id,
		Name:         name,
		Ingredients:  strings.TrimSpace(ingredients),
		Instructions: strings.TrimSpace(instructions),
	}
	if err := s.save(append(all, r)); err != nil {
		return proto.Recipe{}, err
	}
	return r, nil
}

// Publish marks id public. Publishing an already public recipe is not an
// error and leaves the file untouched.
func (s *Store) Publish(ctx context.Context, id uint64) (proto.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return proto.Recipe{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return proto.Recipe{}, err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		if all[i].Public {
			return all[i], nil
		}
		all[i].Public = true
		if err := s.save(all); err != nil {
			return proto.Recipe{}, err
		}
		return all[i], nil
	}
	return proto.Recipe{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// ListPublic returns the recipes eligible for outbound responses.
func (s *Store) ListPublic(ctx context.Context) ([]proto.Recipe, error) {
	all, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]proto.Recipe, 0, len(all))
	for _, r := range all {
		if r.Public {
			out = append(out, r)
		}
	}
	return out, nil
}

// Find returns the recipe with id.
func (s *Store) Find(ctx context.Context, id uint64) (proto.Recipe, error) {
	all, err := s.ReadAll(ctx)
	if err != nil {
		return proto.Recipe{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return proto.Recipe{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// ListLocal is ReadAll under the name the REPL uses.
func (s *Store) ListLocal(ctx context.Context) ([]proto.Recipe, error) {
	return s.ReadAll(ctx)
}

func nextID(all []proto.Recipe) (uint64, error) {
	if len(all) == 0 {
		return 0, nil
	}
	var hi uint64
	for _, r := range all {
		if r.ID > hi {
			hi = r.ID
		}
	}
	if hi == math.MaxUint64 {
		return 0, ErrIDSpace
	}
	return hi + 1, nil
}

func (s *Store) load() ([]proto.Recipe, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []proto.Recipe{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []proto.Recipe{}, nil
	}
	var out []proto.Recipe
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", s.path, err)
	}
	if out == nil {
		out = []proto.Recipe{}
	}
	return out, nil
}

func (s *Store) save(all []proto.Recipe) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	data = append(data, '\n')
	if _, err := atomicfile.WriteAll(s.path, bytes.NewReader(data), 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
