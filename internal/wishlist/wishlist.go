// Package wishlist keeps the anonymous per-visitor list of saved listings.
// Visitors are identified by a cookie and held in a bounded LRU, so the list
// lives only as long as the process and the visitor stays recent.
package wishlist

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"inmoelegance/pkg/domain"
)

// CookieName carries the visitor id.
const CookieName = "inmo_visitor"

// DefaultCapacity is the number of visitors kept when New receives zero.
const DefaultCapacity = 10000

// Item is a saved listing. Only ID identifies it; the other fields are a
// snapshot used to render the list without a store lookup.
type Item struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Location string  `json:"location"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Image    string  `json:"image,omitempty"`
}

// ItemFor snapshots a listing for the wishlist.
func ItemFor(p domain.Property) Item {
	return Item{
		ID:       p.ID,
		Title:    p.Title,
		Location: p.Location,
		Price:    p.Price,
		Currency: p.Currency,
		Image:    p.CoverImage(),
	}
}

type list struct {
	items []Item
}

// Store maps visitor ids to their lists.
type Store struct {
	mu       sync.Mutex
	visitors *lru.Cache[string, *list]
}

// New returns a store holding at most capacity visitors.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	visitors, _ := lru.New[string, *list](capacity)
	return &Store{visitors: visitors}
}

// Add appends item unless a listing with the same id is already saved. It
// reports whether the item was added.
func (s *Store) Add(visitor string, item Item) bool {
	if visitor == "" || item.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.visitors.Get(visitor)
	if !ok {
		l = &list{}
		s.visitors.Add(visitor, l)
	}
	if slices.ContainsFunc(l.items, func(it Item) bool { return it.ID == item.ID }) {
		return false
	}
	l.items = append(l.items, item)
	return true
}

// Remove drops the listing with id and reports whether it was present.
func (s *Store) Remove(visitor, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.visitors.Get(visitor)
	if !ok {
		return false
	}
	n := len(l.items)
	l.items = slices.DeleteFunc(l.items, func(it Item) bool { return it.ID == id })
	return len(l.items) != n
}

// Clear empties the visitor's list.
func (s *Store) Clear(visitor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visitors.Remove(visitor)
}

// Items returns the saved listings in insertion order.
func (s *Store) Items(visitor string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.visitors.Get(visitor)
	if !ok {
		return []Item{}
	}
	return slices.Clone(l.items)
}

// Contains reports whether id is saved for visitor.
func (s *Store) Contains(visitor, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.visitors.Peek(visitor)
	return ok && slices.ContainsFunc(l.items, func(it Item) bool { return it.ID == id })
}

// Len reports the number of tracked visitors.
func (s *Store) Len() int { return s.visitors.Len() }

// VisitorID returns the visitor id from the request cookie, issuing a new
// one on w when the cookie is missing or malformed.
func VisitorID(w http.ResponseWriter, r *http.Request, secure bool) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
