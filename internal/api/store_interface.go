package api

import "github.com/easthma/mainpro/internal/services"

// Store is the full persistence contract for session records. It is the
// union of the narrow per-service interfaces in the services package;
// both the in-memory store and the sqlite store satisfy all of them.
//
// The mutation methods returning bool are conditional: they apply only
// while the record is still in the expected prior state and report
// whether anything changed. That single-statement gating is the only
// concurrency primitive the system relies on.
type Store interface {
	FindSessionByEmail(email string) (*services.Session, error)
	FindSessionByID(sessionID int) (*services.Session, error)

	// CreateSession inserts a new record. A record with the same email
	// already existing is a conflict.
	CreateSession(s *services.Session) error

	AllSessionIDs() (map[int]bool, error)
	ResetCycle(email string, newID int) (bool, error)
	MarkVerified(email string) (*services.Session, error)

	CompletePreTest(sessionID int, name, email string, answers services.Answers) (bool, error)
	CompletePostTest(sessionID int, answers services.Answers) (bool, error)

	ListSessions() ([]*services.Session, error)
	ClearSessions() (int, error)
}

var (
	_ services.VerificationStore = (Store)(nil)
	_ services.ProgressStore     = (Store)(nil)
	_ services.AdminStore        = (Store)(nil)
)
