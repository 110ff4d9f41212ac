package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollbook-server-go/auth"
)

type credentialsForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// RegisterForm handles GET /register
func (h *Handler) RegisterForm(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", nil)
}

// Register handles POST /register
func (h *Handler) Register(c *gin.Context) {
	var form credentialsForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusOK, "register.html", nil, errorFlash("Username and password are required!"))
		return
	}

	err := h.Accounts.Register(c.Request.Context(), form.Username, form.Password)
	switch {
	case errors.Is(err, auth.ErrUsernameExists):
		h.render(c, http.StatusOK, "register.html", gin.H{"form_username": form.Username}, errorFlash("Username already exists!"))
	case err != nil:
		h.serverError(c, "Error registering account", err)
	default:
		slog.Info("account registered", "username", form.Username)
		h.redirectFlash(c, "/login", auth.FlashSuccess, "Registration successful! You can now log in.")
	}
}

// LoginForm handles GET /login
func (h *Handler) LoginForm(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", nil)
}

// Login handles POST /login. A successful login replaces the session so the
// pre-login id is never reused.
func (h *Handler) Login(c *gin.Context) {
	var form credentialsForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusOK, "login.html", nil, errorFlash("Username and password are required!"))
		return
	}

	err := h.Accounts.Authenticate(c.Request.Context(), form.Username, form.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.render(c, http.StatusOK, "login.html", gin.H{"form_username": form.Username}, errorFlash("Invalid username or password!"))
		return
	case err != nil:
		h.serverError(c, "Error authenticating", err)
		return
	}

	h.dropSession(c)
	sess := auth.NewSession()
	sess.Username = form.Username
	c.Set(contextSessionKey, sess)
	h.redirectFlash(c, "/", auth.FlashSuccess, "Login successful!")
}

// Logout handles GET /logout
func (h *Handler) Logout(c *gin.Context) {
	h.dropSession(c)
	c.Set(contextSessionKey, auth.NewSession())
	h.redirectFlash(c, "/", auth.FlashSuccess, "You have been logged out.")
}

func (h *Handler) dropSession(c *gin.Context) {
	sess := currentSession(c)
	if err := h.Sessions.Delete(c.Request.Context(), sess.ID); err != nil {
		slog.Error("failed to delete session", "session", sess.ID, "error", err)
	}
}

func errorFlash(message string) auth.Flash {
	return auth.Flash{Category: auth.FlashError, Message: message}
}
