package session

import "sync"

// Store holds sessions for the lifetime of the process. Sessions are created
// lazily and only removed by End. Each chat has its own lock, so different chats
// never contend on the same session.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

func (s *Store) entryFor(chatID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[chatID]
	if !ok {
		current = &entry{session: newSession(chatID)}
		s.sessions[chatID] = current
	}
	return current
}

// GetOrCreate returns a copy of the chat's session, creating an idle one if needed.
func (s *Store) GetOrCreate(chatID int64) Session {
	current := s.entryFor(chatID)
	current.mu.Lock()
	defer current.mu.Unlock()
	return current.session
}

// Update applies fn to the chat's session under its lock and returns the result.
func (s *Store) Update(chatID int64, fn func(*Session)) Session {
	current := s.entryFor(chatID)
	current.mu.Lock()
	defer current.mu.Unlock()
	fn(&current.session)
	current.session.ChatID = chatID
	return current.session
}

// End removes the chat's session. It returns the removed session, if any.
func (s *Store) End(chatID int64) (Session, bool) {
	s.mu.Lock()
	current, ok := s.sessions[chatID]
	delete(s.sessions, chatID)
	s.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	current.mu.Lock()
	defer current.mu.Unlock()
	return current.session, true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
