package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/auth"
	"github.com/hongminglow/expense-be/internal/config"
	"github.com/hongminglow/expense-be/internal/expenses"
	"github.com/hongminglow/expense-be/internal/http/handlers"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/mail"
	"github.com/hongminglow/expense-be/internal/media"
	"github.com/hongminglow/expense-be/internal/middleware"
	"github.com/hongminglow/expense-be/internal/storage"
)

// UploadsPath is where the disk object store is served.
const UploadsPath = "/uploads"

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// Deps are the infrastructure pieces built by main.
type Deps struct {
	Store   storage.Store
	Mailer  mail.Mailer
	Limiter middleware.Limiter
	Objects media.ObjectStore
	// Ping checks the database for /health. Optional.
	Ping func(context.Context) error
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           Handler(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// Handler builds the full middleware chain around the API routes.
func Handler(cfg config.Config, deps Deps) http.Handler {
	debug := !cfg.IsProduction()

	authSvc := auth.NewService(auth.Deps{
		Users:     deps.Store,
		Roles:     deps.Store,
		Hasher:    auth.NewHasher(auth.DefaultCost),
		Access:    auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTIssuer, cfg.AccessTTL),
		Refresh:   auth.NewTokenManager(cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.RefreshTTL),
		Mailer:    deps.Mailer,
		PublicURL: cfg.PublicURL,
	})
	engine := expenses.NewEngine(deps.Store, deps.Store, cfg.Location, nil)

	guards := handlers.Guards{Auth: authSvc, Debug: debug}
	if deps.Limiter != nil {
		guards.RateLimit = middleware.RateLimit(deps.Limiter, debug)
	}
	cookie := handlers.CookieConfig{SameSite: cfg.CookieSameSite, Secure: cfg.CookieSecure}

	var ping func(*http.Request) error
	if deps.Ping != nil {
		ping = func(r *http.Request) error { return deps.Ping(r.Context()) }
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), ping).Register(mux)
	handlers.NewAuthHandler(authSvc, cookie, guards).Register(mux)
	handlers.NewUserHandler(deps.Store, deps.Store, authSvc, guards).Register(mux)
	handlers.NewRoleHandler(deps.Store, guards).Register(mux)
	handlers.NewCategoryHandler(deps.Store, guards).Register(mux)
	handlers.NewExpenseHandler(engine, cfg.Location, guards).Register(mux)
	if deps.Objects != nil {
		handlers.NewMediaHandler(media.NewUploader(deps.Objects, deps.Store), guards).Register(mux)
	}
	if cfg.UploadDir != "" {
		files := http.FileServer(noListing{http.Dir(cfg.UploadDir)})
		mux.Handle("GET "+UploadsPath+"/", http.StripPrefix(UploadsPath, files))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respond.Failure(w, r, apperr.NotFound(fmt.Sprintf("The route %s not found.", r.URL.Path)), debug)
	})

	var handler http.Handler = otelhttp.NewHandler(mux, "http.server")
	handler = middleware.Recover(debug, handler)
	handler = middleware.Logging(handler)
	return middleware.CORS(cfg.CORSOrigins, handler)
}

// noListing hides directory indexes from the uploads file server.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	if strings.HasSuffix(name, "/") {
		return nil, os.ErrNotExist
	}
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
