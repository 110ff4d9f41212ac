package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"rollbook-server-go/auth"
	"rollbook-server-go/directory"
)

const (
	sessionCookie     = "rollbook_session"
	contextSessionKey = "session"
)

// Handler holds the dependencies of every route
type Handler struct {
	Directory    *directory.Service
	Accounts     *auth.Accounts
	Sessions     auth.SessionStore
	Tokens       *auth.Tokens
	SessionTTL   time.Duration
	SecureCookie bool
}

// NewHandler creates a new Handler
func NewHandler(dir *directory.Service, accounts *auth.Accounts, sessions auth.SessionStore, tokens *auth.Tokens, ttl time.Duration) *Handler {
	return &Handler{
		Directory:  dir,
		Accounts:   accounts,
		Sessions:   sessions,
		Tokens:     tokens,
		SessionTTL: ttl,
	}
}

// --- Sessions ---

// LoadSession resolves the session cookie into a server-side session. Missing,
// invalid or expired cookies get a fresh anonymous session that is only
// persisted once something is written to it.
func (h *Handler) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextSessionKey, h.lookupSession(c))
		c.Next()
	}
}

func (h *Handler) lookupSession(c *gin.Context) *auth.Session {
	token, err := c.Cookie(sessionCookie)
	if err != nil || token == "" {
		return auth.NewSession()
	}
	id, err := h.Tokens.Parse(token)
	if err != nil {
		return auth.NewSession()
	}
	sess, err := h.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		if err != auth.ErrSessionNotFound {
			slog.Error("failed to load session", "error", err)
		}
		return auth.NewSession()
	}
	return sess
}

func currentSession(c *gin.Context) *auth.Session {
	if v, ok := c.Get(contextSessionKey); ok {
		if sess, ok := v.(*auth.Session); ok {
			return sess
		}
	}
	sess := auth.NewSession()
	c.Set(contextSessionKey, sess)
	return sess
}

// saveSession persists sess and (re)issues the cookie naming it
func (h *Handler) saveSession(c *gin.Context, sess *auth.Session) {
	if err := h.Sessions.Save(c.Request.Context(), sess); err != nil {
		slog.Error("failed to save session", "session", sess.ID, "error", err)
		return
	}
	token, err := h.Tokens.Sign(sess.ID)
	if err != nil {
		slog.Error("failed to sign session", "session", sess.ID, "error", err)
		return
	}
	c.Set(contextSessionKey, sess)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(h.SessionTTL.Seconds()), "/", "", h.SecureCookie, true)
}

// RequireAuth redirects to the login page unless a user is logged in
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)
		if sess.Authenticated() {
			c.Next()
			return
		}
		h.flash(c, auth.FlashError, "You need to log in first!")
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
	}
}

// --- Responses ---

func (h *Handler) flash(c *gin.Context, category, message string) {
	sess := currentSession(c)
	sess.AddFlash(category, message)
	h.saveSession(c, sess)
}

// redirectFlash stores a flash then redirects to location
func (h *Handler) redirectFlash(c *gin.Context, location, category, message string) {
	h.flash(c, category, message)
	c.Redirect(http.StatusFound, location)
}

// render executes a page template with the pending flashes, followed by any
// flashes meant only for this response, and the current user
func (h *Handler) render(c *gin.Context, status int, page string, data gin.H, now ...auth.Flash) {
	sess := currentSession(c)
	flashes := sess.PopFlashes()
	if len(flashes) > 0 {
		h.saveSession(c, sess)
	}
	flashes = append(flashes, now...)
	if data == nil {
		data = gin.H{}
	}
	data["flashes"] = flashes
	data["username"] = sess.Username
	c.HTML(status, page, data)
}

func (h *Handler) serverError(c *gin.Context, msg string, err error) {
	slog.Error(msg, "path", c.Request.URL.Path, "error", err)
	c.HTML(http.StatusInternalServerError, "error.html", gin.H{
		"message": http.StatusText(http.StatusInternalServerError),
	})
}

func pathSegment(s string) string {
	return url.PathEscape(s)
}

func divisionPath(division string) string {
	return "/choose_division/" + pathSegment(division)
}

// --- Ping Handler ---
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
