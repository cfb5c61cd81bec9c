package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/easthma/mainpro/internal/services"
)

type Router struct {
	store        Store
	verification *services.VerificationService
	progress     *services.ProgressService
	admin        *services.AdminService
	certificates *services.CertificateRenderer
}

// RouterConfig carries everything the endpoints need beyond the store.
type RouterConfig struct {
	Mailer   services.Mailer
	Codec    *services.TokenCodec
	BaseURL  string
	LogoPath string
}

func NewRouter(store Store, cfg RouterConfig) *Router {
	return &Router{
		store:        store,
		verification: services.NewVerificationService(store, cfg.Mailer, cfg.Codec, cfg.BaseURL),
		progress:     services.NewProgressService(store),
		admin:        services.NewAdminService(store),
		certificates: services.NewCertificateRenderer(cfg.LogoPath),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/send-verification", rt.handleSendVerification)         // POST
	mux.HandleFunc("/verify-email", rt.handleVerifyEmail)                   // GET
	mux.HandleFunc("/check-pretest-completion", rt.handleCheckPreTest)      // POST
	mux.HandleFunc("/submit-pretest", rt.handleSubmitPreTest)               // POST
	mux.HandleFunc("/get-pretest-answers", rt.handleGetPreTestAnswers)      // GET
	mux.HandleFunc("/verify-posttest", rt.handleVerifyPostTest)             // POST
	mux.HandleFunc("/submit-posttest", rt.handleSubmitPostTest)             // POST
	mux.HandleFunc("/get-posttest-answers", rt.handleGetPostTestAnswers)    // GET
	mux.HandleFunc("/get-session", rt.handleGetSession)                     // POST
	mux.HandleFunc("/generate-certificate", rt.handleGenerateCertificate)   // GET
	mux.HandleFunc("/clear-database", rt.handleClearDatabase)               // DELETE
	mux.HandleFunc("/all-sessions", rt.handleAllSessions)                   // GET
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"message": msg})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Callers get a human-readable {message} body; anything outside the
// taxonomy is logged and reported as a 500 with the fallback message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusBadRequest
		switch se.Code {
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorForbidden:
			status = http.StatusForbidden
		}
		writeMessage(w, status, se.Message)
		return
	}
	log.Printf("api: %s: %v", fallback, err)
	writeMessage(w, http.StatusInternalServerError, fallback)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// POST /send-verification {email}
func (rt *Router) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	res, err := rt.verification.RequestVerification(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err, "Failed to send verification email")
		return
	}
	if res.Created {
		writeMessage(w, http.StatusOK, "Verification email sent. Please verify your email before proceeding.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Session already exists",
		"sessionId": res.SessionID,
	})
}

const verifiedPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Email Verified</title>
</head>
<body style="display: flex; align-items: center; justify-content: center; height: 100vh; font-family: Arial, sans-serif;">
    <div style="text-align: center;">
        <h1 style="color: #58B4E5;">Email Verified</h1>
        <p>Your email has been successfully verified. Please close this window and complete your pre-test in your original window.</p>
    </div>
</body>
</html>
`

// GET /verify-email?token=
func (rt *Router) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		writeMessage(w, http.StatusBadRequest, "Token is required")
		return
	}
	if _, err := rt.verification.ConfirmVerification(token); err != nil {
		writeServiceError(w, err, "Failed to verify email")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(verifiedPage))
}

// POST /check-pretest-completion {email}
func (rt *Router) handleCheckPreTest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	status, err := rt.progress.PreTestStatus(req.Email)
	if err != nil {
		writeServiceError(w, err, "Failed to verify pre-test completion")
		return
	}
	if !status.Completed {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":   "Pre-test not completed. Please complete the pre-test before proceeding.",
			"completed": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": status.SessionID,
		"message":   "Pre-test has been completed.",
		"completed": true,
	})
}

// POST /submit-pretest {sessionId, userName, email?, answers}
func (rt *Router) handleSubmitPreTest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		SessionID int              `json:"sessionId"`
		UserName  string           `json:"userName"`
		Email     string           `json:"email"`
		Answers   services.Answers `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Session ID and Name are required")
		return
	}
	if err := rt.progress.SubmitPreTest(req.SessionID, req.UserName, req.Email, req.Answers); err != nil {
		writeServiceError(w, err, "Failed to update pretest status")
		return
	}
	writeMessage(w, http.StatusOK, "Pre-Test marked as complete")
}

func sessionIDQuery(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("sessionId")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// GET /get-pretest-answers?sessionId=
func (rt *Router) handleGetPreTestAnswers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := sessionIDQuery(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Session ID is required")
		return
	}
	answers, err := rt.progress.PreTestAnswers(id)
	if err != nil {
		writeServiceError(w, err, "Failed to fetch pretest answers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preTestAnswers": answers})
}

// POST /verify-posttest {email}
func (rt *Router) handleVerifyPostTest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	id, err := rt.progress.PostTestEligibility(req.Email)
	if err != nil {
		writeServiceError(w, err, "Failed to verify post-test eligibility")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id})
}

// POST /submit-posttest {sessionId, answers}
func (rt *Router) handleSubmitPostTest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		SessionID int              `json:"sessionId"`
		Answers   services.Answers `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Session ID is required.")
		return
	}
	if err := rt.progress.SubmitPostTest(req.SessionID, req.Answers); err != nil {
		writeServiceError(w, err, "Failed to submit post-test.")
		return
	}
	writeMessage(w, http.StatusOK, "Post-test marked as complete")
}

// GET /get-posttest-answers?sessionId=
func (rt *Router) handleGetPostTestAnswers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := sessionIDQuery(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Session ID is required.")
		return
	}
	answers, err := rt.progress.PostTestAnswers(id)
	if err != nil {
		writeServiceError(w, err, "Failed to fetch post-test answers.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"postTestAnswers": answers})
}

// POST /get-session {email}
func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	id, err := rt.verification.ActiveSession(req.Email)
	if err != nil {
		writeServiceError(w, err, "Failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id})
}

// GET /generate-certificate?sessionId=
func (rt *Router) handleGenerateCertificate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := sessionIDQuery(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Session ID is required.")
		return
	}
	session, err := rt.store.FindSessionByID(id)
	if err != nil {
		writeServiceError(w, err, "Failed to generate certificate.")
		return
	}
	if session == nil {
		writeMessage(w, http.StatusNotFound, "Session not found.")
		return
	}
	pdf, err := rt.certificates.Render(session)
	if err != nil {
		writeServiceError(w, err, "Failed to generate certificate.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=certificate_%d.pdf", id))
	_, _ = w.Write(pdf)
}

// DELETE /clear-database
func (rt *Router) handleClearDatabase(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	log.Printf("api: clearing session database")
	n, err := rt.admin.ClearSessions()
	if err != nil {
		writeServiceError(w, err, "Failed to clear the database")
		return
	}
	log.Printf("api: deleted %d sessions", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Database cleared successfully",
		"deletedCount": n,
	})
}

// GET /all-sessions
func (rt *Router) handleAllSessions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sessions, err := rt.admin.ListSessions()
	if err != nil {
		writeServiceError(w, err, "Failed to fetch sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}
