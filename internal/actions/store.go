package actions

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dotcommander/actionlib/internal/storage"
	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

// Store holds the ordered action collection and the category set.
// Every mutation rewrites the whole actions file.
type Store struct {
	mu         sync.RWMutex
	actions    []Action
	categories []string

	storage  storage.Storage
	path     string
	validate *validator.Validate
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(st storage.Storage, path string, opts ...Option) *Store {
	s := &Store{
		storage:  st,
		path:     path,
		validate: validator.New(),
		logger:   slog.Default().With("component", "actions"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add appends a new action under a fresh id and persists the collection.
// Any id on the argument is ignored.
func (s *Store) Add(ctx context.Context, a Action) (Action, error) {
	a.ID = uuid.NewString()
	a.normalize()
	if err := s.check(a); err != nil {
		return Action{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions = append(s.actions, a)
	s.registerLocked(a.Category)

	s.logger.Debug("action added", "id", a.ID, "category", a.Category)
	return a, s.saveLocked(ctx)
}

// Update edits the action with the given id in place and persists the collection
func (s *Store) Update(ctx context.Context, id string, f Fields) (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Action{}, fmt.Errorf("%w: %s", apperrors.ErrActionNotFound, id)
	}

	updated := s.actions[i]
	f.apply(&updated)
	updated.normalize()
	if err := s.check(updated); err != nil {
		return Action{}, err
	}

	s.actions[i] = updated
	s.registerLocked(updated.Category)

	s.logger.Debug("action updated", "id", id, "category", updated.Category)
	return updated, s.saveLocked(ctx)
}

// Remove deletes the action with the given id and persists the collection.
// Its category stays in the set until CleanUnusedCategories.
func (s *Store) Remove(ctx context.Context, id string) (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Action{}, fmt.Errorf("%w: %s", apperrors.ErrActionNotFound, id)
	}

	removed := s.actions[i]
	s.actions = slices.Delete(s.actions, i, i+1)

	s.logger.Debug("action removed", "id", id)
	return removed, s.saveLocked(ctx)
}

// Get returns the action with the given id
func (s *Store) Get(id string) (Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.actions[i], true
	}
	return Action{}, false
}

// FindByName returns every action whose name equals name, in collection order
func (s *Store) FindByName(name string) []Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []Action
	for _, a := range s.actions {
		if a.Name == name {
			found = append(found, a)
		}
	}
	return found
}

// Resolve finds one action by full id, unique id prefix, or unique name
func (s *Store) Resolve(ref string) (Action, error) {
	if a, ok := s.Get(ref); ok {
		return a, nil
	}

	s.mu.RLock()
	var byPrefix []Action
	if ref != "" {
		for _, a := range s.actions {
			if strings.HasPrefix(a.ID, ref) {
				byPrefix = append(byPrefix, a)
			}
		}
	}
	s.mu.RUnlock()

	if len(byPrefix) == 1 {
		return byPrefix[0], nil
	}

	byName := s.FindByName(ref)
	switch len(byName) {
	case 0:
		if len(byPrefix) > 1 {
			return Action{}, fmt.Errorf("%w: %q matches %d ids", apperrors.ErrAmbiguousName, ref, len(byPrefix))
		}
		return Action{}, fmt.Errorf("%w: %s", apperrors.ErrActionNotFound, ref)
	case 1:
		return byName[0], nil
	default:
		ids := make([]string, len(byName))
		for i, a := range byName {
			ids[i] = a.ShortID()
		}
		return Action{}, fmt.Errorf("%w: %q is used by %s", apperrors.ErrAmbiguousName, ref, strings.Join(ids, ", "))
	}
}

// Len returns the number of actions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions)
}

// All yields every action in collection order
func (s *Store) All() iter.Seq[Action] {
	return s.filter(func(Action) bool { return true })
}

// List yields the actions whose name, description or code contains query,
// ignoring case. An empty query yields everything. The sequence is evaluated
// lazily against the collection as it is when iteration starts, and may be
// iterated again.
func (s *Store) List(query string) iter.Seq[Action] {
	q := strings.ToLower(query)
	return s.filter(func(a Action) bool { return a.matches(q) })
}

// ListByCategory yields the actions in category, or all of them for AllCategories
func (s *Store) ListByCategory(category string) iter.Seq[Action] {
	if category == AllCategories {
		return s.All()
	}
	return s.filter(func(a Action) bool { return a.Category == category })
}

func (s *Store) filter(keep func(Action) bool) iter.Seq[Action] {
	return func(yield func(Action) bool) {
		s.mu.RLock()
		snapshot := slices.Clone(s.actions)
		s.mu.RUnlock()

		for _, a := range snapshot {
			if !keep(a) {
				continue
			}
			if !yield(a) {
				return
			}
		}
	}
}

// Categories returns the category set in first-seen order
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categories)
}

// AddCategory declares a category that may have no actions yet. The
// category set is not persisted, so a declared category with no actions
// lasts only as long as this Store; after a reload only the categories of
// loaded actions remain.
func (s *Store) AddCategory(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(name)
}

// UnusedCategories returns the categories no current action belongs to
func (s *Store) UnusedCategories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	used := s.usedLocked()
	var unused []string
	for _, c := range s.categories {
		if !used[c] {
			unused = append(unused, c)
		}
	}
	return unused
}

// CleanUnusedCategories prunes the category set to exactly the categories of
// current actions and returns what was dropped. Declared but empty
// categories are lost; callers confirm with the user first.
func (s *Store) CleanUnusedCategories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.usedLocked()
	kept := s.categories[:0:0]
	var removed []string
	for _, c := range s.categories {
		if used[c] {
			kept = append(kept, c)
		} else {
			removed = append(removed, c)
		}
	}
	s.categories = kept

	if len(removed) > 0 {
		s.logger.Info("unused categories removed", "categories", removed)
	}
	return removed
}

// Save writes the whole collection to the actions file
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

// Load replaces the collection with the persisted one and registers its
// categories; categories seen before stay in the set. A missing file gives
// an empty collection. A malformed file also empties the collection and is
// reported as *errors.PersistenceCorruptError, after which the store is
// still usable.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.storage.Load(ctx, s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading actions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Debug("no actions file, starting empty", "path", s.path)
		s.actions = nil
		return nil
	}

	loaded, err := decodeActions(data)
	if err != nil {
		s.logger.Warn("actions file is corrupt, starting with an empty library",
			"path", s.path,
			"error", err)
		s.actions = nil
		return &apperrors.PersistenceCorruptError{Path: s.path, Err: err}
	}

	s.actions = loaded
	for _, a := range loaded {
		s.registerLocked(a.Category)
	}

	s.logger.Debug("actions loaded", "path", s.path, "count", len(loaded))
	return nil
}

func (s *Store) saveLocked(ctx context.Context) error {
	data, err := encodeActions(s.actions)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}
	if err := s.storage.Save(ctx, s.path, data); err != nil {
		return fmt.Errorf("saving actions: %w", err)
	}
	return nil
}

func (s *Store) check(a Action) error {
	if err := s.validate.Struct(a); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidAction, err)
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.actions, func(a Action) bool { return a.ID == id })
}

func (s *Store) registerLocked(category string) bool {
	if slices.Contains(s.categories, category) {
		return false
	}
	s.categories = append(s.categories, category)
	return true
}

func (s *Store) usedLocked() map[string]bool {
	used := make(map[string]bool, len(s.categories))
	for _, a := range s.actions {
		used[a.Category] = true
	}
	return used
}
