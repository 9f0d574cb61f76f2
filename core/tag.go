package core

import (
	"sort"
	"sync"
)

// Tag is metadata attached to an absolute item offset within a stream.
// Key and Value are opaque to the runtime.
type Tag struct {
	Offset uint64
	Key    string
	Value  any
	SrcID  string

	seq uint64 // store-local identity, 0 until stored
}

// sameTag matches a blacklist entry against a stored tag. Tags handed out by
// a store match by identity; hand-built tags match by offset and key.
func sameTag(stored, want Tag) bool {
	if stored.Offset != want.Offset {
		return false
	}
	if want.seq != 0 {
		return stored.seq == want.seq
	}
	return stored.Key == want.Key && stored.SrcID == want.SrcID
}

// TagStore keeps the tags of one input stream ordered by offset, plus the
// blacklist of tags the owning block asked to remove. It is safe for one
// writer and one reader goroutine.
type TagStore struct {
	mu        sync.Mutex
	tags      []Tag
	blacklist []Tag
	nextSeq   uint64
}

// NewTagStore returns an empty store.
func NewTagStore() *TagStore {
	return &TagStore{}
}

// Add inserts a copy of t after any tags already at the same offset and
// returns the stored copy.
func (s *TagStore) Add(t Tag) Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	t.seq = s.nextSeq
	i := sort.Search(len(s.tags), func(i int) bool { return s.tags[i].Offset > t.Offset })
	s.tags = append(s.tags, Tag{})
	copy(s.tags[i+1:], s.tags[i:])
	s.tags[i] = t
	return t
}

// InRange returns the tags with start <= Offset < end, excluding blacklisted
// tags. An empty key matches every tag.
func (s *TagStore) InRange(start, end uint64, key string) []Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Tag
	for _, t := range s.window(start, end) {
		if key != "" && t.Key != key {
			continue
		}
		if s.blacklisted(t) >= 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Take returns the tags in [start, end) that should be propagated. A tag
// that matches a blacklist entry is dropped and the entry is pruned, so each
// removal suppresses exactly one tag.
func (s *TagStore) Take(start, end uint64) []Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Tag
	for _, t := range s.window(start, end) {
		if i := s.blacklisted(t); i >= 0 {
			s.blacklist = append(s.blacklist[:i], s.blacklist[i+1:]...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Blacklist marks t so that it is neither returned by InRange nor propagated.
func (s *TagStore) Blacklist(t Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist = append(s.blacklist, t)
}

// BlacklistLen returns the number of pending blacklist entries.
func (s *TagStore) BlacklistLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blacklist)
}

// Prune drops every tag with Offset < upTo.
func (s *TagStore) Prune(upTo uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.tags), func(i int) bool { return s.tags[i].Offset >= upTo })
	if i == 0 {
		return
	}
	s.tags = append(s.tags[:0], s.tags[i:]...)
}

// Len returns the number of stored tags.
func (s *TagStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}

func (s *TagStore) window(start, end uint64) []Tag {
	lo := sort.Search(len(s.tags), func(i int) bool { return s.tags[i].Offset >= start })
	hi := sort.Search(len(s.tags), func(i int) bool { return s.tags[i].Offset >= end })
	if lo >= hi {
		return nil
	}
	return s.tags[lo:hi]
}

func (s *TagStore) blacklisted(t Tag) int {
	for i, b := range s.blacklist {
		if sameTag(t, b) {
			return i
		}
	}
	return -1
}
