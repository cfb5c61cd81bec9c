//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/easthma/mainpro/internal/api"
	"github.com/easthma/mainpro/internal/db"
	"github.com/easthma/mainpro/internal/services"
)

type captureMailer struct {
	links []string
}

func (m *captureMailer) SendVerification(_ context.Context, to, link string) error {
	m.links = append(m.links, link)
	return nil
}

func startServer(t *testing.T) (*httptest.Server, *captureMailer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	sqliteDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(path)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqliteDB.Close() })
	if err := db.RunMigrations(sqliteDB, ""); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	store, err := db.NewStore(sqliteDB)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	mailer := &captureMailer{}
	mux := http.NewServeMux()
	api.NewRouter(store, api.RouterConfig{
		Mailer:  mailer,
		Codec:   services.NewTokenCodec([]byte("integration-secret")),
		BaseURL: "http://api.test",
	}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mailer
}

func postJSON(t *testing.T, client *http.Client, url string, body, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
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

func TestSessionLifecycleIntegration(t *testing.T) {
	srv, mailer := startServer(t)
	client := &http.Client{Timeout: 5 * time.Second}
	email := fmt.Sprintf("integration_%d@example.com", time.Now().UnixNano())

	// Register and capture the mailed link.
	if code := postJSON(t, client, srv.URL+"/send-verification", map[string]string{"email": email}, nil); code != http.StatusOK {
		t.Fatalf("send-verification status %d", code)
	}
	if len(mailer.links) != 1 {
		t.Fatalf("expected one verification mail, got %d", len(mailer.links))
	}
	link, err := url.Parse(mailer.links[0])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	token := link.Query().Get("token")
	if token == "" {
		t.Fatalf("link carries no token: %s", mailer.links[0])
	}

	// Verify the email through the link.
	resp, err := client.Get(srv.URL + "/verify-email?token=" + url.QueryEscape(token))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.Contains(page, []byte("Email Verified")) {
		t.Fatalf("verify failed: %d %s", resp.StatusCode, page)
	}

	// The verified session is now retrievable.
	var sid struct {
		SessionID int `json:"sessionId"`
	}
	if code := postJSON(t, client, srv.URL+"/get-session", map[string]string{"email": email}, &sid); code != http.StatusOK {
		t.Fatalf("get-session status %d", code)
	}
	n1 := sid.SessionID
	if n1 < 100 || n1 > 999 {
		t.Fatalf("session id %d outside range", n1)
	}

	// Pre-test, then post-test.
	if code := postJSON(t, client, srv.URL+"/submit-pretest", map[string]any{
		"sessionId": n1, "userName": "Integration Tester", "answers": map[string]string{"q1": "b"},
	}, nil); code != http.StatusOK {
		t.Fatalf("submit-pretest status %d", code)
	}
	if code := postJSON(t, client, srv.URL+"/verify-posttest", map[string]string{"email": email}, &sid); code != http.StatusOK {
		t.Fatalf("verify-posttest status %d", code)
	}
	if code := postJSON(t, client, srv.URL+"/submit-posttest", map[string]any{
		"sessionId": n1, "answers": map[string]string{"q2": "c"},
	}, nil); code != http.StatusOK {
		t.Fatalf("submit-posttest status %d", code)
	}

	// Certificate streams as PDF.
	resp, err = client.Get(srv.URL + fmt.Sprintf("/generate-certificate?sessionId=%d", n1))
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	pdf, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("certificate not a PDF: %d", resp.StatusCode)
	}

	// Re-registration after completion: fresh id, no second mail.
	var again struct {
		SessionID int `json:"sessionId"`
	}
	if code := postJSON(t, client, srv.URL+"/send-verification", map[string]string{"email": email}, &again); code != http.StatusOK {
		t.Fatalf("re-registration status %d", code)
	}
	if again.SessionID == n1 {
		t.Fatalf("historical id %d reallocated", n1)
	}
	if len(mailer.links) != 1 {
		t.Fatalf("reset path sent mail: %d", len(mailer.links))
	}
}
