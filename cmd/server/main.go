package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/cqmail/internal/api"
	"github.com/vdavid/cqmail/internal/auth"
	"github.com/vdavid/cqmail/internal/config"
	"github.com/vdavid/cqmail/internal/crypto"
	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/mailbox"
	"github.com/vdavid/cqmail/internal/smtp"
	"github.com/vdavid/cqmail/internal/threading"
	ws "github.com/vdavid/cqmail/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	server, err := NewServer(cfg, pool)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	address := ":" + cfg.Port
	log.Printf("cqmail backend server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates and returns a new HTTP handler for the cqmail API server.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) (http.Handler, error) {
	cipher, err := crypto.NewCredentialCipher(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential cipher: %w", err)
	}

	store := db.NewMailStore(dbPool)
	wsHub := ws.NewHub(cfg.WSMaxConnectionsPerUser)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	mailService := mailbox.NewService(
		imap.NewDialer(cfg),
		smtp.NewTransport(cfg),
		store,
		db.NewAccountStore(dbPool),
		cipher,
		wsHub,
		mailbox.OptionsFromConfig(cfg),
	)

	mailHandler := api.NewMailHandler(mailService)
	accountHandler := api.NewAccountHandler(db.NewAccountManager(dbPool), cipher)
	threadHandler := api.NewThreadHandler(threading.NewAssembler(store))
	wsHandler := api.NewWebSocketHandler(verifier, wsHub)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)

	protected := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, verifier.RequireAuth(handler))
	}

	protected("POST /api/v1/accounts", accountHandler.Create)
	protected("GET /api/v1/accounts", accountHandler.List)
	protected("POST /api/v1/mail/send", mailHandler.Send)
	protected("GET /api/v1/mail/inbox", mailHandler.Inbox)
	protected("POST /api/v1/mail/reply/{messageId}", mailHandler.Reply)
	protected("POST /api/v1/mail/forward/{messageId}", mailHandler.Forward)
	protected("DELETE /api/v1/mail/trash/{messageId}", mailHandler.Trash)
	protected("GET /api/v1/mail/sent", mailHandler.Sent)
	protected("GET /api/v1/mail/trash", mailHandler.TrashList)
	protected("GET /api/v1/mail/thread/{messageId}", threadHandler.GetThread)

	// WebSocket handler handles its own authentication via query parameter
	// (since browsers can't set headers on WebSocket connections).
	mux.HandleFunc("GET /api/v1/ws", wsHandler.Handle)

	return mux, nil
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "cqmail API is running")
}
