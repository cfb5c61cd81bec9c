package services

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"
)

// VerificationStore is the slice of the session store the verification
// flow needs.
type VerificationStore interface {
	FindSessionByEmail(email string) (*Session, error)
	CreateSession(s *Session) error
	// AllSessionIDs returns every session id currently held by a record,
	// completed or not. Allocation excludes all of them.
	AllSessionIDs() (map[int]bool, error)
	// ResetCycle clears the progress flags and assigns newID, gated on
	// the record still being completed. Returns false when no completed
	// record exists for the email.
	ResetCycle(email string, newID int) (bool, error)
	// MarkVerified sets verified=true and returns the updated record,
	// or nil when no record exists for the email.
	MarkVerified(email string) (*Session, error)
}

// VerificationResult reports what RequestVerification did for an email.
type VerificationResult struct {
	SessionID int
	EmailSent bool
	Created   bool
}

type VerificationService struct {
	store   VerificationStore
	mailer  Mailer
	codec   *TokenCodec
	baseURL string
	now     func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewVerificationService wires the verification flow. baseURL is the
// public origin the verification link points back at.
func NewVerificationService(store VerificationStore, mailer Mailer, codec *TokenCodec, baseURL string) *VerificationService {
	return &VerificationService{
		store:   store,
		mailer:  mailer,
		codec:   codec,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *VerificationService) allocate(history []int) (int, error) {
	active, err := s.store.AllSessionIDs()
	if err != nil {
		return 0, err
	}
	hist := make(map[int]bool, len(history))
	for _, id := range history {
		hist[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return AllocateID(s.rnd, active, hist)
}

// RequestVerification drives the registration state machine for one email:
// a brand-new participant gets a session plus a verification mail, an
// in-progress participant gets their existing id back with no new mail,
// and a participant whose previous cycle completed gets a fresh id with
// the progress flags reset. The reset path deliberately sends no new
// mail; the participant stays verified from the prior cycle.
func (s *VerificationService) RequestVerification(ctx context.Context, email string) (*VerificationResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, NewInvalidError("Email is required")
	}

	session, err := s.store.FindSessionByEmail(email)
	if err != nil {
		return nil, err
	}
	if session != nil && !session.Completed {
		return &VerificationResult{SessionID: session.SessionID}, nil
	}

	if session != nil {
		id, err := s.allocate(session.IDHistory)
		if err != nil {
			return nil, err
		}
		ok, err := s.store.ResetCycle(email, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost a race with a concurrent request; the record is no
			// longer in the completed state, so its current id stands.
			fresh, err := s.store.FindSessionByEmail(email)
			if err != nil {
				return nil, err
			}
			if fresh == nil {
				return nil, NewNotFoundError("Session not found")
			}
			return &VerificationResult{SessionID: fresh.SessionID}, nil
		}
		return &VerificationResult{SessionID: id}, nil
	}

	id, err := s.allocate(nil)
	if err != nil {
		return nil, err
	}
	token, err := s.codec.Sign(email, VerificationTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign verification token: %w", err)
	}
	now := s.now()
	created := &Session{
		SessionID: id,
		Email:     email,
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(created); err != nil {
		return nil, err
	}
	link := s.baseURL + "/verify-email?token=" + url.QueryEscape(token)
	if err := s.mailer.SendVerification(ctx, email, link); err != nil {
		return nil, fmt.Errorf("send verification: %w", err)
	}
	return &VerificationResult{SessionID: id, EmailSent: true, Created: true}, nil
}

// ConfirmVerification validates the emailed token and flips the session
// to verified. Replays are harmless; the transition is idempotent.
func (s *VerificationService) ConfirmVerification(token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewInvalidError("Token is required")
	}
	email, err := s.codec.VerifyEmail(token)
	if err != nil {
		return nil, NewUnauthorizedError("Invalid or expired token")
	}
	session, err := s.store.MarkVerified(email)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewNotFoundError("Session not found or already verified")
	}
	return session, nil
}

// ActiveSession returns the session id for an email that is verified and
// mid-cycle. Anything else is refused.
func (s *VerificationService) ActiveSession(email string) (int, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, NewInvalidError("Email is required")
	}
	session, err := s.store.FindSessionByEmail(email)
	if err != nil {
		return 0, err
	}
	if session == nil || !session.Verified || session.Completed {
		return 0, NewForbiddenError("Email not verified. Please verify your email to continue.")
	}
	return session.SessionID, nil
}
