// Package server is the browser surface: login, fetch/analyze controls,
// the collected data, and the chat.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"hash/fnv"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/chat"
	"github.com/TobiSchelling/friendscout/internal/database"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/pipeline"
	"github.com/TobiSchelling/friendscout/internal/session"
	"github.com/TobiSchelling/friendscout/internal/social"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const (
	cookieName = "friendscout_session"
	sessionKey = "session"

	sessionStripes = 64
)

var (
	md        = goldmark.New()
	sanitizer = bluemonday.UGCPolicy()
)

// Pipeline is the subset of *pipeline.Pipeline the server drives.
type Pipeline interface {
	Fetch(ctx context.Context, s *social.SessionContext) *pipeline.Result
	Analyze(ctx context.Context, s *social.SessionContext) *pipeline.Result
	Load(ctx context.Context, s *social.SessionContext) error
}

// Server is the HTTP server.
type Server struct {
	echo     *echo.Echo
	store    database.Store
	sessions session.Store
	pipe     Pipeline
	router   *chat.Router
	logger   *zap.Logger

	// Requests on one session run one at a time.
	locks [sessionStripes]sync.Mutex
}

// New creates a new Server.
func New(store database.Store, sessions session.Store, pipe Pipeline, router *chat.Router, logger *zap.Logger) (*Server, error) {
	renderer, err := newRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	s := &Server{
		echo:     e,
		store:    store,
		sessions: sessions,
		pipe:     pipe,
		router:   router,
		logger:   logging.OrNop(logger),
	}
	s.middleware()
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) middleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/healthz" || path == "/metrics" || strings.HasPrefix(path, "/static/")
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("HTTP request completed",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error))
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.echo.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServer(http.FS(staticSub)))))

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/login", s.handleLoginPage)
	s.echo.POST("/login", s.handleLogin)
	s.echo.GET("/register", s.handleRegisterPage)
	s.echo.POST("/register", s.handleRegister)

	app := s.echo.Group("", s.requireSession)
	app.GET("/", s.handleDashboard)
	app.POST("/logout", s.handleLogout)
	app.GET("/following", s.handleFollowing)
	app.GET("/communities", s.handleCommunities)
	app.POST("/credentials", s.handleCredentials)
	app.POST("/fetch", s.handleFetch)
	app.POST("/analyze", s.handleAnalyze)
	app.GET("/recommendations", s.handleRecommendations)
	app.GET("/chat", s.handleChatPage)
	app.POST("/chat", s.handleChat)
}

// requireSession loads the SessionContext named by the cookie, or sends
// the browser to the login page.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return c.Redirect(http.StatusSeeOther, "/login")
		}
		mu := s.lockFor(cookie.Value)
		mu.Lock()
		defer mu.Unlock()

		sess, err := s.sessions.Get(c.Request().Context(), cookie.Value)
		if errors.Is(err, session.ErrNotFound) {
			clearCookie(c)
			return c.Redirect(http.StatusSeeOther, "/login")
		}
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		c.Set(sessionKey, sess)
		return next(c)
	}
}

func (s *Server) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%sessionStripes]
}

func current(c echo.Context) *social.SessionContext {
	return c.Get(sessionKey).(*social.SessionContext)
}

func (s *Server) save(c echo.Context, sess *social.SessionContext) error {
	if err := s.sessions.Save(c.Request().Context(), sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *Server) handleLoginPage(c echo.Context) error {
	return c.Render(http.StatusOK, "login.html", map[string]any{"Username": ""})
}

func (s *Server) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")

	ok, err := s.store.VerifyUser(ctx, username, password)
	if err != nil {
		return fmt.Errorf("verifying user: %w", err)
	}
	if !ok {
		return c.Render(http.StatusUnauthorized, "login.html", map[string]any{
			"Error":    "Invalid username or password",
			"Username": username,
		})
	}

	sess, err := s.sessions.Create(ctx, username)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if err := s.pipe.Load(ctx, sess); err != nil {
		s.logger.Warn("Loading stored data failed", zap.String("user", username), zap.Error(err))
	}
	if err := s.save(c, sess); err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleRegisterPage(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", map[string]any{"Username": ""})
}

func (s *Server) handleRegister(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")

	err := s.store.RegisterUser(c.Request().Context(), username, password)
	switch {
	case errors.Is(err, database.ErrUserExists), errors.Is(err, database.ErrInvalidAccount):
		return c.Render(http.StatusBadRequest, "register.html", map[string]any{
			"Error":    err.Error(),
			"Username": username,
		})
	case err != nil:
		return fmt.Errorf("registering user: %w", err)
	}
	return c.Render(http.StatusOK, "login.html", map[string]any{
		"Notice":   "Registration successful! Please log in.",
		"Username": username,
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	sess := current(c)
	sess.ClearTranscript()
	if err := s.sessions.Delete(c.Request().Context(), sess.ID); err != nil {
		s.logger.Warn("Deleting session failed", zap.Error(err))
	}
	clearCookie(c)
	return c.Redirect(http.StatusSeeOther, "/login")
}

func clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
}

func (s *Server) dashboard(c echo.Context, status int, banner, notice string) error {
	sess := current(c)
	configured := map[social.Platform]bool{}
	for _, p := range social.Platforms {
		creds, err := s.store.GetCredentials(c.Request().Context(), sess.LocalUser, p)
		if err != nil {
			s.logger.Warn("Reading credentials failed", zap.String("platform", string(p)), zap.Error(err))
		}
		configured[p] = creds != nil
	}

	return c.Render(status, "dashboard.html", map[string]any{
		"Session":    sess,
		"Platforms":  social.Platforms,
		"Configured": configured,
		"Following":  len(social.Flatten(sess.Following)),
		"Candidates": sess.CandidateCount(),
		"Banner":     banner,
		"Notice":     notice,
	})
}

func (s *Server) handleDashboard(c echo.Context) error {
	return s.dashboard(c, http.StatusOK, "", "")
}

func (s *Server) handleCredentials(c echo.Context) error {
	sess := current(c)
	platform, err := social.ParsePlatform(c.FormValue("platform"))
	if err != nil {
		return s.dashboard(c, http.StatusBadRequest, err.Error(), "")
	}
	creds := social.Credentials{
		Username: strings.TrimSpace(c.FormValue("username")),
		Password: c.FormValue("password"),
	}
	if creds.Username == "" || creds.Password == "" {
		return s.dashboard(c, http.StatusBadRequest, "Username and password are required", "")
	}
	if err := s.store.PutCredentials(c.Request().Context(), sess.LocalUser, platform, creds); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	return s.dashboard(c, http.StatusOK, "", fmt.Sprintf("%s credentials saved", platform.Title()))
}

func (s *Server) handleFetch(c echo.Context) error {
	sess := current(c)
	result := s.pipe.Fetch(c.Request().Context(), sess)
	if err := s.save(c, sess); err != nil {
		return err
	}
	if result.Failed() {
		return s.dashboard(c, http.StatusOK, result.Banner(), "")
	}
	return s.dashboard(c, http.StatusOK, "", fmt.Sprintf("Fetched %d candidates", sess.CandidateCount()))
}

func (s *Server) handleAnalyze(c echo.Context) error {
	sess := current(c)
	result := s.pipe.Analyze(c.Request().Context(), sess)
	if err := s.save(c, sess); err != nil {
		return err
	}
	if result.Failed() {
		return s.dashboard(c, http.StatusOK, result.Banner(), "")
	}
	return c.Redirect(http.StatusSeeOther, "/chat")
}

func (s *Server) handleFollowing(c echo.Context) error {
	sess := current(c)
	return c.Render(http.StatusOK, "following.html", map[string]any{
		"Session":   sess,
		"Platforms": social.Platforms,
	})
}

func (s *Server) handleCommunities(c echo.Context) error {
	return c.Render(http.StatusOK, "communities.html", map[string]any{
		"Session": current(c),
	})
}

func (s *Server) handleRecommendations(c echo.Context) error {
	return c.Render(http.StatusOK, "recommendations.html", map[string]any{
		"Session":   current(c),
		"Platforms": social.Platforms,
	})
}

func (s *Server) handleChatPage(c echo.Context) error {
	return c.Render(http.StatusOK, "chat.html", map[string]any{
		"Session": current(c),
	})
}

func (s *Server) handleChat(c echo.Context) error {
	sess := current(c)
	s.router.HandleQuery(c.Request().Context(), c.FormValue("query"), sess)
	if err := s.save(c, sess); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/chat")
}

// renderer serves one cloned base template per page.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"title":    func(p social.Platform) string { return p.Title() },
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{
		"login.html", "register.html", "dashboard.html", "following.html",
		"communities.html", "recommendations.html", "chat.html",
	}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}
	return &renderer{pages: pages}, nil
}

func (r *renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	return tmpl.ExecuteTemplate(w, "base.html", data)
}

// renderMarkdown converts model text to sanitized HTML.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(sanitizer.SanitizeBytes(buf.Bytes())) //nolint: gosec
}

// Serve runs the server on port until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("Server listening", zap.String("addr", "http://"+addr))
		errCh <- srv.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.echo.Shutdown(shutdownCtx)
	}
}
