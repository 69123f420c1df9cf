package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shortclaim/internal/auth"
	"shortclaim/internal/config"
	"shortclaim/internal/database"
	"shortclaim/internal/dnsproof"
	"shortclaim/internal/handler"
	"shortclaim/internal/indexer"
	"shortclaim/internal/ledger"
	"shortclaim/internal/service"
	"shortclaim/web"
)

// Templates holds one parsed set per page; each set is the layout plus
// the page's "content" block.
type Templates struct {
	Login, Setup                           *template.Template
	Check, Claims, Zones, Users, AuditLog *template.Template
}

func funcMap(version string) template.FuncMap {
	return template.FuncMap{
		"add":         func(a, b int) int { return a + b },
		"subtract":    func(a, b int) int { return a - b },
		"version":     func() string { return version },
		"formatDate":  func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
		"formatEther": func(wei *big.Int) string { return ledger.FormatEther(wei) },
		"shortHex": func(s string) string {
			if len(s) <= 12 {
				return s
			}
			return s[:8] + "…" + s[len(s)-4:]
		},
	}
}

func ParseTemplates(fsys fs.FS, version string) (*Templates, error) {
	fm := funcMap(version)
	parse := func(files ...string) (*template.Template, error) {
		t, err := template.New("").Funcs(fm).ParseFS(fsys, files...)
		if err != nil {
			return nil, fmt.Errorf("parse templates %v: %w", files, err)
		}
		return t, nil
	}
	withLayout := func(file string) (*template.Template, error) {
		return parse("templates/layout.html", "templates/"+file)
	}

	var t Templates
	var err error
	for _, step := range []struct {
		dst  **template.Template
		load func() (*template.Template, error)
	}{
		{&t.Login, func() (*template.Template, error) { return parse("templates/login.html") }},
		{&t.Setup, func() (*template.Template, error) { return parse("templates/setup.html") }},
		{&t.Check, func() (*template.Template, error) { return withLayout("check.html") }},
		{&t.Claims, func() (*template.Template, error) { return withLayout("claims.html") }},
		{&t.Zones, func() (*template.Template, error) { return withLayout("zones.html") }},
		{&t.Users, func() (*template.Template, error) { return withLayout("admin_users.html") }},
		{&t.AuditLog, func() (*template.Template, error) { return withLayout("admin_audit.html") }},
	} {
		if *step.dst, err = step.load(); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// Start wires the ledger, DNS, indexer and database together and serves the
// operator console until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, version string, log *zap.Logger) error {
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	db, err := database.Open(cfg.Database.DSN, web.MigrationsFS(), cfg.Database.MigrationsDir, log.Named("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessionMgr, err := auth.NewSessionManager(db)
	if err != nil {
		return fmt.Errorf("failed to init session manager: %w", err)
	}
	if n, err := db.PurgeExpiredSessions(); err == nil && n > 0 {
		log.Info("purged expired sessions", zap.Int64("count", n))
	}

	stack, err := Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Provider.Close()

	claimSvc := service.NewClaimService(service.Options{
		DNS:        stack.DNS,
		Prover:     stack.Prover,
		Ledger:     stack.Registry,
		Store:      db,
		WithProofs: cfg.Ledger.WithProofs,
		Logger:     log.Named("claims"),
	})

	zoneSvc, err := service.NewZoneService(ctx, cfg, db, log.Named("route53"))
	if err != nil {
		return fmt.Errorf("failed to init zone service: %w", err)
	}

	var source handler.ClaimSource
	if stack.Network.GraphQLURL != "" {
		source = indexer.NewClient(stack.Network.GraphQLURL, cfg.DNS.Timeout)
	} else {
		log.Warn("no indexer configured for network; claim listing disabled", zap.Int64("chain_id", stack.Network.ChainID))
	}

	tmpl, err := ParseTemplates(web.TemplateFS(), version)
	if err != nil {
		return err
	}

	var ldapClient *auth.LDAPClient
	if cfg.LDAP.Enabled {
		ldapClient = auth.NewLDAPClient(cfg.LDAP)
		log.Info("LDAP authentication enabled",
			zap.String("url", cfg.LDAP.URL),
			zap.Int("mapped_roles", len(cfg.LDAP.GroupMapping)))
	}

	hlog := log.Named("http")
	setupH := handler.NewSetupHandler(db, tmpl.Setup, hlog)
	authH := handler.NewAuthHandler(db, sessionMgr, ldapClient, tmpl.Login, hlog)
	checkH := handler.NewCheckHandler(claimSvc, sessionMgr, tmpl.Check, hlog)
	claimH := handler.NewClaimHandler(claimSvc, source, db, sessionMgr, tmpl.Claims, hlog)
	zoneH := handler.NewZoneHandler(zoneSvc, db, db, sessionMgr, tmpl.Zones, hlog)
	adminH := handler.NewAdminHandler(db, sessionMgr, tmpl.Users, tmpl.AuditLog, hlog)

	sm := sessionMgr
	mux := http.NewServeMux()
	mux.HandleFunc("GET /setup", setupH.SetupPage)
	mux.HandleFunc("POST /setup", setupH.SetupSubmit)
	mux.Handle("GET /static/", web.StaticHandler())

	app := http.NewServeMux()
	app.HandleFunc("GET /login", authH.LoginPage)
	app.HandleFunc("POST /login", authH.LoginSubmit)
	app.HandleFunc("POST /logout", authH.Logout)

	app.HandleFunc("GET /check", sm.RequireAuth(checkH.Check))
	app.HandleFunc("POST /claims/submit", sm.RequireAuth(sm.ValidateCSRF(checkH.Submit)))
	app.HandleFunc("GET /claims", sm.RequireAuth(claimH.List))
	app.HandleFunc("POST /claims/{id}/approve", sm.RequireReviewer(sm.ValidateCSRF(claimH.Approve)))
	app.HandleFunc("POST /claims/{id}/reject", sm.RequireReviewer(sm.ValidateCSRF(claimH.Reject)))
	app.HandleFunc("POST /claims/{id}/withdraw", sm.RequireAuth(sm.ValidateCSRF(claimH.Withdraw)))

	app.HandleFunc("GET /zones", sm.RequireAdmin(zoneH.List))
	app.HandleFunc("POST /zones/refresh", sm.RequireAdmin(sm.ValidateCSRF(zoneH.Refresh)))
	app.HandleFunc("POST /zones/{zoneID}/publish", sm.RequireAdmin(sm.ValidateCSRF(zoneH.Publish)))

	app.HandleFunc("GET /admin/users", sm.RequireAdmin(adminH.ListUsers))
	app.HandleFunc("POST /admin/users/create", sm.RequireAdmin(sm.ValidateCSRF(adminH.CreateUser)))
	app.HandleFunc("POST /admin/users/role", sm.RequireAdmin(sm.ValidateCSRF(adminH.SetRole)))
	app.HandleFunc("POST /admin/users/active", sm.RequireAdmin(sm.ValidateCSRF(adminH.ToggleActive)))
	app.HandleFunc("POST /admin/users/delete", sm.RequireAdmin(sm.ValidateCSRF(adminH.DeleteUser)))
	app.HandleFunc("GET /admin/audit", sm.RequireAdmin(adminH.AuditLog))

	app.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/check", http.StatusSeeOther)
	})

	mux.Handle("/", handler.RequireSetupComplete(db, app))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           requestLogger(hlog, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Stack is the chain and DNS side of the application, shared by the web
// server and the CLI.
type Stack struct {
	Provider *ledger.Provider
	Registry *ledger.Registry
	Network  config.NetworkConfig
	DNS      dnsproof.Resolver
	Prover   service.Prover
}

// Connect dials the ledger, selects the network by chain id and checks that
// claim ids are computed the same way the registry does.
func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stack, error) {
	provider, err := ledger.Dial(ctx, cfg.Ledger.RPCURL, cfg.Ledger.PrivateKey)
	if err != nil {
		return nil, err
	}
	network, err := cfg.Network(provider.ChainID.Int64())
	if err != nil {
		provider.Close()
		return nil, err
	}
	registry, err := ledger.NewRegistry(provider, common.HexToAddress(network.ClaimAddress))
	if err != nil {
		provider.Close()
		return nil, err
	}
	if err := registry.Claimer().VerifyClaimIDScheme(ctx); err != nil {
		provider.Close()
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("chain_id", network.ChainID),
		zap.String("network", network.Name),
		zap.String("claim_address", network.ClaimAddress),
	}
	if account, ok := provider.Account(); ok {
		fields = append(fields, zap.String("account", account.Hex()))
	} else {
		fields = append(fields, zap.Bool("read_only", true))
	}
	log.Info("ledger connected", fields...)

	doh := dnsproof.NewDoHClient(cfg.DNS.DoHURL, cfg.DNS.Timeout)
	stack := &Stack{Provider: provider, Registry: registry, Network: network, DNS: doh}
	if cfg.DNS.Prove {
		stack.Prover = dnsproof.NewProver(doh)
	}
	return stack, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogger tags each request with an id and logs it on completion.
func requestLogger(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Debug("request",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
