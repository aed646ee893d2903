package memory

import "github.com/xraph/escrow/account"

// keySet is an insertion-ordered set of account keys. Removal swaps the
// last key into the vacated position, so it is O(1) but does not preserve
// order past the removed element.
type keySet struct {
	keys []account.Key
	pos  map[account.Key]int
}

func newKeySet() *keySet {
	return &keySet{pos: make(map[account.Key]int)}
}

func (s *keySet) add(k account.Key) bool {
	if _, ok := s.pos[k]; ok {
		return false
	}
	s.pos[k] = len(s.keys)
	s.keys = append(s.keys, k)
	return true
}

func (s *keySet) remove(k account.Key) bool {
	i, ok := s.pos[k]
	if !ok {
		return false
	}
	last := len(s.keys) - 1
	if i != last {
		moved := s.keys[last]
		s.keys[i] = moved
		s.pos[moved] = i
	}
	s.keys[last] = account.Key{}
	s.keys = s.keys[:last]
	delete(s.pos, k)
	return true
}

func (s *keySet) contains(k account.Key) bool {
	_, ok := s.pos[k]
	return ok
}

func (s *keySet) len() int { return len(s.keys) }
