package services

import "time"

// Answers is an opaque key-value payload submitted with a test. The
// schema is owned by the frontend questionnaire and never validated here.
type Answers map[string]any

// Session is one participant's attempt cycle through verification,
// pre-test and post-test. There is exactly one record per email; a
// returning participant reuses the record with reset progress flags.
type Session struct {
	SessionID       int       `json:"sessionId"`
	IDHistory       []int     `json:"sessionIdList"`
	Name            string    `json:"name,omitempty"`
	Email           string    `json:"email"`
	Token           string    `json:"token,omitempty"`
	Verified        bool      `json:"verified"`
	PreTestDone     bool      `json:"preTest"`
	PostTestDone    bool      `json:"postTest"`
	Completed       bool      `json:"completed"`
	PreTestAnswers  Answers   `json:"preTestAnswers,omitempty"`
	PostTestAnswers Answers   `json:"postTestAnswers,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// HasHistoricalID reports whether id was ever assigned to this session.
func (s *Session) HasHistoricalID(id int) bool {
	for _, v := range s.IDHistory {
		if v == id {
			return true
		}
	}
	return false
}
