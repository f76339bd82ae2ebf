// Package selection tracks which library items an operator has picked.
//
// A Set survives paging: ids stay selected while the operator moves between
// pages or changes filters. Bulk helpers select every item matching a filter
// across all pages, or every item added inside a date range.
package selection

import (
	"container/list"
	"sync"

	"github.com/Sternrassler/plex-added-date/pkg/library"
)

// Set is an insertion-ordered set of item ids. It is safe for concurrent use
// but expects a single writer at a time, so interleaved bulk operations do
// not define a meaningful order.
type Set struct {
	mu     sync.Mutex
	order  *list.List
	index  map[int64]*list.Element
	titles map[int64]string
}

// New returns an empty set.
func New() *Set {
	return &Set{
		order:  list.New(),
		index:  make(map[int64]*list.Element),
		titles: make(map[int64]string),
	}
}

// FromIDs returns a set holding ids in order, duplicates dropped.
func FromIDs(ids []int64) *Set {
	s := New()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new. An existing id keeps its
// position.
func (s *Set) Add(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(id)
}

func (s *Set) add(id int64) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = s.order.PushBack(id)
	return true
}

// AddItem inserts item.ID and remembers its title.
func (s *Set) AddItem(item library.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addItem(item)
}

func (s *Set) addItem(item library.Item) bool {
	added := s.add(item.ID)
	if item.Title != "" {
		s.titles[item.ID] = item.Title
	}
	return added
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(id)
}

func (s *Set) remove(id int64) bool {
	elem, ok := s.index[id]
	if !ok {
		return false
	}
	s.order.Remove(elem)
	delete(s.index, id)
	delete(s.titles, id)
	return true
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Init()
	s.index = make(map[int64]*list.Element)
	s.titles = make(map[int64]string)
}

// Contains reports whether id is selected.
func (s *Set) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Len returns the number of selected ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Title returns the remembered title of id, or "".
func (s *Set) Title(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titles[id]
}

// Titles returns a copy of every remembered title.
func (s *Set) Titles() map[int64]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]string, len(s.titles))
	for id, title := range s.titles {
		out[id] = title
	}
	return out
}

// Snapshot returns the ids in insertion order.
func (s *Set) Snapshot() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.index))
	for e := s.order.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(int64))
	}
	return ids
}

// AddPage selects every item on page and returns how many were new.
func (s *Set) AddPage(page *library.Page) int {
	if page == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, item := range page.Items {
		if s.addItem(item) {
			added++
		}
	}
	return added
}

// RemovePage deselects every item on page and returns how many were removed.
func (s *Set) RemovePage(page *library.Page) int {
	if page == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, item := range page.Items {
		if s.remove(item.ID) {
			removed++
		}
	}
	return removed
}
