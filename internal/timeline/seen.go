package timeline

import "sync"

// SeenSet remembers the last N ids it was shown. Consumers that do not keep
// a full timeline (the worker) use it to drop replayed events.
type SeenSet struct {
	mu    sync.Mutex
	limit int
	order []string
	ids   map[string]struct{}
}

func NewSeenSet(limit int) *SeenSet {
	if limit <= 0 {
		limit = 4096
	}
	return &SeenSet{limit: limit, ids: make(map[string]struct{}, limit)}
}

// FirstSeen records id and reports whether it was new.
func (s *SeenSet) FirstSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
	s.order = append(s.order, id)
	s.ids[id] = struct{}{}
	return true
}

// Forget removes id so a later FirstSeen reports it as new again.
func (s *SeenSet) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return
	}
	delete(s.ids, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
