package extract

// OrderedSet keeps strings unique in the order they were first added.
type OrderedSet struct {
	items []string
	seen  map[string]struct{}
}

func NewOrderedSet() *OrderedSet {
	return &OrderedSet{seen: make(map[string]struct{})}
}

// Add inserts v unless it is already present and reports whether it was new.
func (s *OrderedSet) Add(v string) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *OrderedSet) Has(v string) bool {
	_, ok := s.seen[v]
	return ok
}

func (s *OrderedSet) Len() int {
	return len(s.items)
}

// Values returns a copy of the members; never nil.
func (s *OrderedSet) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
