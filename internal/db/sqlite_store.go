package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/easthma/mainpro/internal/api"
	"github.com/easthma/mainpro/internal/services"
)

// SQLiteStore persists sessions in a single sqlite table. Multi-field
// transitions are single UPDATE statements gated on the expected prior
// state, so concurrent requests cannot interleave a lost update.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeAnswers(ns sql.NullString) services.Answers {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out services.Answers
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode answers: %v", err)
		return nil
	}
	return out
}

func decodeHistory(ns sql.NullString) []int {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []int
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode id history: %v", err)
		return nil
	}
	return out
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const sessionColumns = `email, session_id, id_history, name, token, verified,
	pre_test, post_test, completed, pre_test_answers, post_test_answers,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*services.Session, error) {
	var (
		sess                      services.Session
		history, name, token      sql.NullString
		preAnswers, postAnswers   sql.NullString
		verified, pre, post, done int64
		createdAt, updatedAt      string
	)
	err := row.Scan(&sess.Email, &sess.SessionID, &history, &name, &token, &verified,
		&pre, &post, &done, &preAnswers, &postAnswers, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.IDHistory = decodeHistory(history)
	sess.Name = name.String
	sess.Token = token.String
	sess.Verified = int64ToBool(verified)
	sess.PreTestDone = int64ToBool(pre)
	sess.PostTestDone = int64ToBool(post)
	sess.Completed = int64ToBool(done)
	sess.PreTestAnswers = decodeAnswers(preAnswers)
	sess.PostTestAnswers = decodeAnswers(postAnswers)
	sess.CreatedAt = decodeTime(createdAt)
	sess.UpdatedAt = decodeTime(updatedAt)
	return &sess, nil
}

func (s *SQLiteStore) FindSessionByEmail(email string) (*services.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE email = ?`, email)
	return scanSession(row)
}

func (s *SQLiteStore) FindSessionByID(sessionID int) (*services.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

func (s *SQLiteStore) CreateSession(sess *services.Session) error {
	history, err := encodeJSON(sess.IDHistory)
	if err != nil {
		return fmt.Errorf("encode id history: %w", err)
	}
	preAnswers, err := encodeJSON(sess.PreTestAnswers)
	if err != nil {
		return fmt.Errorf("encode pre-test answers: %w", err)
	}
	postAnswers, err := encodeJSON(sess.PostTestAnswers)
	if err != nil {
		return fmt.Errorf("encode post-test answers: %w", err)
	}
	now := time.Now().UTC()
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = s.db.Exec(`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.Email, sess.SessionID, history, toNullString(sess.Name), toNullString(sess.Token),
		boolToInt64(sess.Verified), boolToInt64(sess.PreTestDone), boolToInt64(sess.PostTestDone),
		boolToInt64(sess.Completed), preAnswers, postAnswers,
		createdAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if isConstraintErr(err) {
		return services.NewConflictError("session already exists for this email")
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AllSessionIDs() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT session_id FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()
	ids := map[int]bool{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ResetCycle(email string, newID int) (bool, error) {
	res, err := s.db.Exec(`UPDATE sessions
		SET session_id = ?, completed = 0, pre_test = 0, post_test = 0, updated_at = ?
		WHERE email = ? AND completed = 1`,
		newID, time.Now().UTC().Format(time.RFC3339Nano), email)
	if err != nil {
		return false, fmt.Errorf("reset cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkVerified(email string) (*services.Session, error) {
	res, err := s.db.Exec(`UPDATE sessions SET verified = 1, updated_at = ? WHERE email = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), email)
	if err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return s.FindSessionByEmail(email)
}

func (s *SQLiteStore) CompletePreTest(sessionID int, name, email string, answers services.Answers) (bool, error) {
	encoded, err := encodeJSON(answers)
	if err != nil {
		return false, fmt.Errorf("encode pre-test answers: %w", err)
	}
	res, err := s.db.Exec(`UPDATE sessions
		SET pre_test = 1, name = ?, pre_test_answers = ?,
		    email = COALESCE(NULLIF(?, ''), email), updated_at = ?
		WHERE session_id = ? AND pre_test = 0`,
		name, encoded, email, time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if isConstraintErr(err) {
		return false, services.NewConflictError("another session already uses this email")
	}
	if err != nil {
		return false, fmt.Errorf("complete pre-test: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) CompletePostTest(sessionID int, answers services.Answers) (bool, error) {
	encoded, err := encodeJSON(answers)
	if err != nil {
		return false, fmt.Errorf("encode post-test answers: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var history sql.NullString
	err = tx.QueryRow(`SELECT id_history FROM sessions WHERE session_id = ?`, sessionID).Scan(&history)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read id history: %w", err)
	}
	ids := decodeHistory(history)
	present := false
	for _, id := range ids {
		if id == sessionID {
			present = true
			break
		}
	}
	if !present {
		ids = append(ids, sessionID)
	}
	updated, err := encodeJSON(ids)
	if err != nil {
		return false, fmt.Errorf("encode id history: %w", err)
	}

	res, err := tx.Exec(`UPDATE sessions
		SET post_test = 1, completed = 1, post_test_answers = ?, id_history = ?, updated_at = ?
		WHERE session_id = ?`,
		encoded, updated, time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return false, fmt.Errorf("complete post-test: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSessions() ([]*services.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*services.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearSessions() (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

var _ api.Store = (*SQLiteStore)(nil)
