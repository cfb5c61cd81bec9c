package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/easthma/mainpro/internal/api"
	"github.com/easthma/mainpro/internal/config"
	"github.com/easthma/mainpro/internal/db"
	"github.com/easthma/mainpro/internal/middleware"
	"github.com/easthma/mainpro/internal/services"
)

// logMailer stands in for SMTP when no mail host is configured, so a
// dev instance can run the full flow with the link readable in the log.
type logMailer struct{}

func (logMailer) SendVerification(_ context.Context, to, link string) error {
	log.Printf("mailer disabled, verification link for %s: %s", to, link)
	return nil
}

func openStore(cfg *config.Config) (api.Store, func(), error) {
	if cfg.SQLitePath == "" {
		log.Printf("no sqlite path configured, using in-memory store")
		return api.NewMemoryStore(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(cfg.SQLitePath))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.RunMigrations(sqliteDB, cfg.MigrationsDir); err != nil {
		_ = sqliteDB.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	store, err := db.NewStore(sqliteDB)
	if err != nil {
		_ = sqliteDB.Close()
		return nil, nil, fmt.Errorf("init sqlite store: %w", err)
	}
	closer := func() {
		if cerr := sqliteDB.Close(); cerr != nil {
			log.Printf("warning: failed to close sqlite db: %v", cerr)
		}
	}
	return store, closer, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	var mailer services.Mailer = logMailer{}
	if cfg.SMTPHost != "" {
		mailer = services.NewSMTPMailer(services.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
		})
	}

	mux := http.NewServeMux()
	api.NewRouter(store, api.RouterConfig{
		Mailer:   mailer,
		Codec:    services.NewTokenCodec([]byte(cfg.JWTSecret)),
		BaseURL:  cfg.BaseURL,
		LogoPath: cfg.LogoPath,
	}).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "eAMS Mainpro API",
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})

	handler := middleware.RequestLog(
		middleware.CORS(cfg.CORSOrigin,
			middleware.SecureHeaders(
				middleware.NoStore(mux))))

	log.Printf("eAMS Mainpro server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
