package api

import (
	"sync"
	"time"

	"github.com/easthma/mainpro/internal/services"
)

// memoryStore keeps every session in process memory behind one RWMutex.
// It backs handler tests and local development without sqlite.
type memoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]*services.Session
}

func NewMemoryStore() Store {
	return &memoryStore{byEmail: map[string]*services.Session{}}
}

func cloneSession(s *services.Session) *services.Session {
	c := *s
	c.IDHistory = append([]int(nil), s.IDHistory...)
	if s.PreTestAnswers != nil {
		c.PreTestAnswers = services.Answers{}
		for k, v := range s.PreTestAnswers {
			c.PreTestAnswers[k] = v
		}
	}
	if s.PostTestAnswers != nil {
		c.PostTestAnswers = services.Answers{}
		for k, v := range s.PostTestAnswers {
			c.PostTestAnswers[k] = v
		}
	}
	return &c
}

func (s *memoryStore) FindSessionByEmail(email string) (*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.byEmail[email]; ok {
		return cloneSession(sess), nil
	}
	return nil, nil
}

func (s *memoryStore) FindSessionByID(sessionID int) (*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.byEmail {
		if sess.SessionID == sessionID {
			return cloneSession(sess), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CreateSession(sess *services.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[sess.Email]; ok {
		return services.NewConflictError("session already exists for this email")
	}
	s.byEmail[sess.Email] = cloneSession(sess)
	return nil
}

func (s *memoryStore) AllSessionIDs() (map[int]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[int]bool, len(s.byEmail))
	for _, sess := range s.byEmail {
		ids[sess.SessionID] = true
	}
	return ids, nil
}

func (s *memoryStore) ResetCycle(email string, newID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byEmail[email]
	if !ok || !sess.Completed {
		return false, nil
	}
	sess.Completed = false
	sess.PreTestDone = false
	sess.PostTestDone = false
	sess.SessionID = newID
	sess.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *memoryStore) MarkVerified(email string) (*services.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	sess.Verified = true
	sess.UpdatedAt = time.Now().UTC()
	return cloneSession(sess), nil
}

func (s *memoryStore) CompletePreTest(sessionID int, name, email string, answers services.Answers) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.byEmail {
		if sess.SessionID != sessionID {
			continue
		}
		if sess.PreTestDone {
			return false, nil
		}
		sess.PreTestDone = true
		sess.Name = name
		sess.PreTestAnswers = answers
		sess.UpdatedAt = time.Now().UTC()
		if email != "" && email != key {
			sess.Email = email
			delete(s.byEmail, key)
			s.byEmail[email] = sess
		}
		return true, nil
	}
	return false, nil
}

func (s *memoryStore) CompletePostTest(sessionID int, answers services.Answers) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byEmail {
		if sess.SessionID != sessionID {
			continue
		}
		sess.PostTestDone = true
		sess.Completed = true
		sess.PostTestAnswers = answers
		if !sess.HasHistoricalID(sessionID) {
			sess.IDHistory = append(sess.IDHistory, sessionID)
		}
		sess.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

func (s *memoryStore) ListSessions() ([]*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Session, 0, len(s.byEmail))
	for _, sess := range s.byEmail {
		out = append(out, cloneSession(sess))
	}
	return out, nil
}

func (s *memoryStore) ClearSessions() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.byEmail)
	s.byEmail = map[string]*services.Session{}
	return n, nil
}

var _ Store = (*memoryStore)(nil)
