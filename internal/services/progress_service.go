package services

import "strings"

// ProgressStore is the slice of the session store the pre/post-test flow
// needs. The two Complete mutations are conditional: they only apply
// while the record is still in the expected prior state, so a concurrent
// duplicate submission loses cleanly instead of overwriting.
type ProgressStore interface {
	FindSessionByID(sessionID int) (*Session, error)
	FindSessionByEmail(email string) (*Session, error)
	// CompletePreTest stores name and answers and sets preTest=true,
	// gated on preTest still being false. email overwrites the stored
	// address when non-empty.
	CompletePreTest(sessionID int, name, email string, answers Answers) (bool, error)
	// CompletePostTest stores answers, sets postTest and completed, and
	// adds the current session id to the history set.
	CompletePostTest(sessionID int, answers Answers) (bool, error)
}

type ProgressService struct {
	store ProgressStore
}

func NewProgressService(store ProgressStore) *ProgressService {
	return &ProgressService{store: store}
}

func (s *ProgressService) SubmitPreTest(sessionID int, name, email string, answers Answers) error {
	if sessionID == 0 || strings.TrimSpace(name) == "" {
		return NewInvalidError("Session ID and Name are required")
	}
	session, err := s.store.FindSessionByID(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return NewNotFoundError("Session not found")
	}
	if session.PreTestDone {
		return NewAlreadySubmittedError("Pre-Test has already been submitted.")
	}
	ok, err := s.store.CompletePreTest(sessionID, name, strings.TrimSpace(email), answers)
	if err != nil {
		return err
	}
	if !ok {
		return NewAlreadySubmittedError("Pre-Test has already been submitted.")
	}
	return nil
}

func (s *ProgressService) PreTestAnswers(sessionID int) (Answers, error) {
	if sessionID == 0 {
		return nil, NewInvalidError("Session ID is required")
	}
	session, err := s.store.FindSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewNotFoundError("Session not found")
	}
	if !session.PreTestDone {
		return nil, NewNotCompletedError("Pre-test not completed")
	}
	return session.PreTestAnswers, nil
}

type PreTestStatus struct {
	SessionID int
	Completed bool
}

func (s *ProgressService) PreTestStatus(email string) (*PreTestStatus, error) {
	if strings.TrimSpace(email) == "" {
		return nil, NewInvalidError("Email is required")
	}
	session, err := s.store.FindSessionByEmail(email)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewNotFoundError("No session found for this email. Please complete the pre-test first.")
	}
	return &PreTestStatus{SessionID: session.SessionID, Completed: session.PreTestDone}, nil
}

// SubmitPostTest completes the cycle. There is no duplicate guard here;
// resubmitting overwrites the answers, as the activity allows retaking
// the evaluation while the page stays open.
func (s *ProgressService) SubmitPostTest(sessionID int, answers Answers) error {
	if sessionID == 0 {
		return NewInvalidError("Session ID is required.")
	}
	if len(answers) == 0 {
		return NewInvalidError("Answers are required.")
	}
	session, err := s.store.FindSessionByID(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return NewNotFoundError("Session not found.")
	}
	ok, err := s.store.CompletePostTest(sessionID, answers)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("Session not found.")
	}
	return nil
}

func (s *ProgressService) PostTestAnswers(sessionID int) (Answers, error) {
	if sessionID == 0 {
		return nil, NewInvalidError("Session ID is required.")
	}
	session, err := s.store.FindSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewNotFoundError("Session not found.")
	}
	if !session.PostTestDone {
		return nil, NewNotCompletedError("Post-test not completed")
	}
	return session.PostTestAnswers, nil
}

// PostTestEligibility gates the post-test behind a finished pre-test.
func (s *ProgressService) PostTestEligibility(email string) (int, error) {
	if strings.TrimSpace(email) == "" {
		return 0, NewInvalidError("Email is required")
	}
	session, err := s.store.FindSessionByEmail(email)
	if err != nil {
		return 0, err
	}
	if session == nil {
		return 0, NewNotFoundError("No session found for this email. Please complete the pretest first.")
	}
	if !session.PreTestDone {
		return 0, NewNotCompletedError("Pretest not completed. Please complete the pretest before taking the post-test.")
	}
	return session.SessionID, nil
}
