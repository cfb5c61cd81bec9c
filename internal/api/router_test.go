package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/easthma/mainpro/internal/services"
)

type recordingMailer struct {
	links map[string]string // email -> last link
}

func (m *recordingMailer) SendVerification(_ context.Context, to, link string) error {
	if m.links == nil {
		m.links = map[string]string{}
	}
	m.links[to] = link
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, Store, *recordingMailer) {
	t.Helper()
	store := NewMemoryStore()
	mailer := &recordingMailer{}
	mux := http.NewServeMux()
	NewRouter(store, RouterConfig{
		Mailer:  mailer,
		Codec:   services.NewTokenCodec([]byte("test-secret")),
		BaseURL: "http://api.test",
	}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store, mailer
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func getStatus(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func verifyLink(t *testing.T, srv *httptest.Server, link string) {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	resp, err := http.Get(srv.URL + "/verify-email?token=" + url.QueryEscape(u.Query().Get("token")))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("verify content type %q", ct)
	}
}

func TestFullLifecycle(t *testing.T) {
	srv, store, mailer := newTestServer(t)

	var sendResp struct {
		Message string `json:"message"`
	}
	if code := postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "a@x.com"}, &sendResp); code != http.StatusOK {
		t.Fatalf("send-verification status %d", code)
	}
	link := mailer.links["a@x.com"]
	if link == "" {
		t.Fatalf("no verification mail sent")
	}

	sess, err := store.FindSessionByEmail("a@x.com")
	if err != nil || sess == nil {
		t.Fatalf("session not created: %v", err)
	}
	if sess.Verified || sess.SessionID < 100 || sess.SessionID > 999 {
		t.Fatalf("unexpected new session %+v", sess)
	}
	n1 := sess.SessionID

	verifyLink(t, srv, link)
	sess, _ = store.FindSessionByEmail("a@x.com")
	if !sess.Verified {
		t.Fatalf("session not verified after link")
	}

	var sidResp struct {
		SessionID int `json:"sessionId"`
	}
	if code := postJSON(t, srv.URL+"/get-session", map[string]string{"email": "a@x.com"}, &sidResp); code != http.StatusOK {
		t.Fatalf("get-session status %d", code)
	}
	if sidResp.SessionID != n1 {
		t.Fatalf("get-session returned %d, want %d", sidResp.SessionID, n1)
	}

	if code := postJSON(t, srv.URL+"/submit-pretest", map[string]any{
		"sessionId": n1, "userName": "Alice", "answers": map[string]string{"q1": "b"},
	}, nil); code != http.StatusOK {
		t.Fatalf("submit-pretest status %d", code)
	}

	var preResp struct {
		PreTestAnswers map[string]any `json:"preTestAnswers"`
	}
	if code := getStatus(t, srv.URL+"/get-pretest-answers?sessionId="+strconv.Itoa(n1), &preResp); code != http.StatusOK {
		t.Fatalf("get-pretest-answers status %d", code)
	}
	if preResp.PreTestAnswers["q1"] != "b" {
		t.Fatalf("unexpected answers %v", preResp.PreTestAnswers)
	}

	if code := postJSON(t, srv.URL+"/verify-posttest", map[string]string{"email": "a@x.com"}, &sidResp); code != http.StatusOK {
		t.Fatalf("verify-posttest status %d", code)
	}

	if code := postJSON(t, srv.URL+"/submit-posttest", map[string]any{
		"sessionId": n1, "answers": map[string]string{"q2": "c"},
	}, nil); code != http.StatusOK {
		t.Fatalf("submit-posttest status %d", code)
	}
	sess, _ = store.FindSessionByEmail("a@x.com")
	if !sess.Completed || !sess.PostTestDone {
		t.Fatalf("cycle not completed: %+v", sess)
	}
	if !sess.HasHistoricalID(n1) {
		t.Fatalf("id %d missing from history %v", n1, sess.IDHistory)
	}

	// Re-registration after completion gets a fresh id outside history
	// and no second mail.
	var againResp struct {
		SessionID int    `json:"sessionId"`
		Message   string `json:"message"`
	}
	if code := postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "a@x.com"}, &againResp); code != http.StatusOK {
		t.Fatalf("re-send-verification status %d", code)
	}
	if againResp.SessionID == n1 {
		t.Fatalf("historical id %d reallocated", n1)
	}
	if mailer.links["a@x.com"] != link {
		t.Fatalf("reset path sent a new mail")
	}
	sess, _ = store.FindSessionByEmail("a@x.com")
	if sess.Completed || sess.PreTestDone || sess.PostTestDone {
		t.Fatalf("flags not reset: %+v", sess)
	}
}

func TestSendVerificationActiveSessionIdempotent(t *testing.T) {
	srv, store, mailer := newTestServer(t)

	postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "b@x.com"}, nil)
	sess, _ := store.FindSessionByEmail("b@x.com")

	var resp struct {
		SessionID int    `json:"sessionId"`
		Message   string `json:"message"`
	}
	if code := postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "b@x.com"}, &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if resp.SessionID != sess.SessionID {
		t.Fatalf("expected stable id %d, got %d", sess.SessionID, resp.SessionID)
	}
	if resp.Message != "Session already exists" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if len(mailer.links) != 1 {
		t.Fatalf("expected a single mail")
	}
}

func TestVerifyEmailBadToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var resp struct {
		Message string `json:"message"`
	}
	if code := getStatus(t, srv.URL+"/verify-email?token=garbage", &resp); code != http.StatusBadRequest {
		t.Fatalf("status %d", code)
	}
	if resp.Message != "Invalid or expired token" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestSubmitPreTestDuplicateHTTP(t *testing.T) {
	srv, store, _ := newTestServer(t)
	postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "c@x.com"}, nil)
	sess, _ := store.FindSessionByEmail("c@x.com")

	body := map[string]any{"sessionId": sess.SessionID, "userName": "Carol", "answers": map[string]string{"q1": "a"}}
	if code := postJSON(t, srv.URL+"/submit-pretest", body, nil); code != http.StatusOK {
		t.Fatalf("first submit status %d", code)
	}
	var resp struct {
		Message string `json:"message"`
	}
	if code := postJSON(t, srv.URL+"/submit-pretest", body, &resp); code != http.StatusBadRequest {
		t.Fatalf("duplicate submit status %d", code)
	}
	if resp.Message != "Pre-Test has already been submitted." {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestCheckPreTestCompletion(t *testing.T) {
	srv, store, _ := newTestServer(t)
	postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "d@x.com"}, nil)
	sess, _ := store.FindSessionByEmail("d@x.com")

	var resp struct {
		SessionID int  `json:"sessionId"`
		Completed bool `json:"completed"`
	}
	if code := postJSON(t, srv.URL+"/check-pretest-completion", map[string]string{"email": "d@x.com"}, &resp); code != http.StatusBadRequest {
		t.Fatalf("incomplete status %d", code)
	}

	postJSON(t, srv.URL+"/submit-pretest", map[string]any{"sessionId": sess.SessionID, "userName": "Dana"}, nil)
	if code := postJSON(t, srv.URL+"/check-pretest-completion", map[string]string{"email": "d@x.com"}, &resp); code != http.StatusOK {
		t.Fatalf("complete status %d", code)
	}
	if !resp.Completed || resp.SessionID != sess.SessionID {
		t.Fatalf("unexpected response %+v", resp)
	}

	if code := postJSON(t, srv.URL+"/check-pretest-completion", map[string]string{"email": "nobody@x.com"}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown email status %d", code)
	}
}

func TestGetPostTestAnswersGated(t *testing.T) {
	srv, store, _ := newTestServer(t)
	postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "e@x.com"}, nil)
	sess, _ := store.FindSessionByEmail("e@x.com")

	if code := getStatus(t, srv.URL+"/get-posttest-answers?sessionId="+strconv.Itoa(sess.SessionID), nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 before post-test, got %d", code)
	}
	if code := getStatus(t, srv.URL+"/get-posttest-answers?sessionId=99", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", code)
	}
}

func TestGenerateCertificate(t *testing.T) {
	srv, store, _ := newTestServer(t)
	postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "f@x.com"}, nil)
	sess, _ := store.FindSessionByEmail("f@x.com")

	resp, err := http.Get(srv.URL + "/generate-certificate?sessionId=" + strconv.Itoa(sess.SessionID))
	if err != nil {
		t.Fatalf("GET certificate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("certificate status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "certificate_") {
		t.Fatalf("content disposition %q", cd)
	}

	if code := getStatus(t, srv.URL+"/generate-certificate?sessionId=99", nil); code != http.StatusNotFound {
		t.Fatalf("unknown session certificate status %d", code)
	}
}

func TestClearDatabaseAndAllSessions(t *testing.T) {
	srv, _, _ := newTestServer(t)
	postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "g@x.com"}, nil)
	postJSON(t, srv.URL+"/send-verification", map[string]string{"email": "h@x.com"}, nil)

	var list []json.RawMessage
	if code := getStatus(t, srv.URL+"/all-sessions", &list); code != http.StatusOK {
		t.Fatalf("all-sessions status %d", code)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/clear-database", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	var clearResp struct {
		DeletedCount int `json:"deletedCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&clearResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if clearResp.DeletedCount != 2 {
		t.Fatalf("deletedCount %d", clearResp.DeletedCount)
	}

	list = nil
	if code := getStatus(t, srv.URL+"/all-sessions", &list); code != http.StatusOK {
		t.Fatalf("all-sessions status %d", code)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after clear, got %d", len(list))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/send-verification")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
