package client

import (
	"context"
	"slices"
	"sync"

	"github.com/starford/capes/internal/models"
)

// Status is the lifecycle of the last fetch.
type Status string

// Fetch statuses.
const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var _ API = (*Client)(nil)

// DefaultPageSize is the listing page size the store requests.
const DefaultPageSize = 5

// API is the subset of Client the Store drives.
type API interface {
	List(ctx context.Context, page, limit int) (*models.Page, error)
	Get(ctx context.Context, id string) (*models.Superhero, error)
	Create(ctx context.Context, in Input) (*models.Superhero, error)
	Update(ctx context.Context, id string, in Input) (*models.Superhero, error)
	Delete(ctx context.Context, id string) error
	RemoveImage(ctx context.Context, id, imageURL string) ([]string, error)
}

// State is a snapshot of the cache.
type State struct {
	Items    []models.Superhero
	Selected *models.Superhero
	Total    int
	Pages    int
	Page     int
	Status   Status
	Err      error
}

// Store caches one listing page and the selected record. Every action calls
// the API first and changes data only after it succeeds.
type Store struct {
	api      API
	pageSize int

	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]func(State)

	bg sync.WaitGroup
}

// NewStore creates an idle store over api.
func NewStore(api API) *Store {
	return &Store{
		api:      api,
		pageSize: DefaultPageSize,
		state:    State{Items: []models.Superhero{}, Page: 1, Status: StatusIdle},
		subs:     make(map[int]func(State)),
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Wait blocks until background refreshes started by Create finish.
func (s *Store) Wait() {
	s.bg.Wait()
}

// FetchPage loads one listing page.
func (s *Store) FetchPage(ctx context.Context, page int) error {
	s.update(func(st *State) {
		st.Status = StatusLoading
		st.Err = nil
	})

	res, err := s.api.List(ctx, page, s.pageSize)
	if err != nil {
		s.update(func(st *State) {
			st.Status = StatusFailed
			st.Err = err
		})
		return err
	}

	s.update(func(st *State) {
		st.Status = StatusSucceeded
		st.Items = slices.Clone(res.Records)
		if st.Items == nil {
			st.Items = []models.Superhero{}
		}
		st.Total = res.Total
		st.Pages = res.Pages
		st.Page = res.Page
	})
	return nil
}

// FetchOne loads a record into Selected.
func (s *Store) FetchOne(ctx context.Context, id string) error {
	s.update(func(st *State) {
		st.Status = StatusLoading
		st.Err = nil
	})

	hero, err := s.api.Get(ctx, id)
	if err != nil {
		s.update(func(st *State) {
			st.Status = StatusFailed
			st.Err = err
		})
		return err
	}

	s.update(func(st *State) {
		st.Status = StatusSucceeded
		st.Selected = hero
	})
	return nil
}

// Create submits a record, prepends it to Items and refreshes page 1 in the
// background.
func (s *Store) Create(ctx context.Context, in Input) (*models.Superhero, error) {
	hero, err := s.api.Create(ctx, in)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.update(func(st *State) {
		st.Items = append([]models.Superhero{*hero}, st.Items...)
	})

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_ = s.FetchPage(context.WithoutCancel(ctx), 1)
	}()
	return hero, nil
}

// Update replaces Selected and the matching listed record.
func (s *Store) Update(ctx context.Context, id string, in Input) (*models.Superhero, error) {
	hero, err := s.api.Update(ctx, id, in)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.update(func(st *State) {
		h := *hero
		st.Selected = &h
		if i := indexOf(st.Items, hero.ID); i >= 0 {
			st.Items[i] = *hero
		}
	})
	return hero, nil
}

// Delete removes the record from Items, decrements Total and clears Selected
// when it matches.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, id); err != nil {
		s.fail(err)
		return err
	}

	s.update(func(st *State) {
		st.Items = slices.DeleteFunc(st.Items, func(h models.Superhero) bool { return h.ID == id })
		st.Total--
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = nil
		}
	})
	return nil
}

// RemoveImage deletes one image and patches the listed record and Selected.
func (s *Store) RemoveImage(ctx context.Context, id, imageURL string) ([]string, error) {
	images, err := s.api.RemoveImage(ctx, id, imageURL)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.update(func(st *State) {
		if i := indexOf(st.Items, id); i >= 0 {
			st.Items[i].Images = slices.Clone(images)
		}
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected.Images = slices.Clone(images)
		}
	})
	return images, nil
}

func (s *Store) fail(err error) {
	s.update(func(st *State) {
		st.Err = err
	})
}

// update applies fn under the lock, then notifies subscribers outside it.
func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.copyLocked()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Store) copyLocked() State {
	st := s.state
	st.Items = make([]models.Superhero, len(s.state.Items))
	for i, h := range s.state.Items {
		st.Items[i] = cloneHero(h)
	}
	if s.state.Selected != nil {
		h := cloneHero(*s.state.Selected)
		st.Selected = &h
	}
	return st
}

func cloneHero(h models.Superhero) models.Superhero {
	h.Superpowers = slices.Clone(h.Superpowers)
	h.Images = slices.Clone(h.Images)
	return h
}

func indexOf(items []models.Superhero, id string) int {
	return slices.IndexFunc(items, func(h models.Superhero) bool { return h.ID == id })
}
