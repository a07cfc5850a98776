package controllers

import (
	"errors"
	"net/http"

	"github.com/shaurya/tradeledger/auth"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/framework/i18n"
	"github.com/shaurya/tradeledger/ledger"
	"go.uber.org/zap"
)

// SessionsController handles login, registration and logout.
type SessionsController struct {
	Deps
}

type loginForm struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

type registerForm struct {
	Username string `json:"username" validate:"required"`
}

// Login reports the messages left in the session by the last login or
// registration attempt.
func (c *SessionsController) Login(ctx *framework.Context) error {
	return ctx.JSON(http.StatusOK, framework.H{
		auth.SessionError:        ctx.SessionString(auth.SessionError),
		auth.SessionRegError:     ctx.SessionString(auth.SessionRegError),
		auth.SessionRegistration: ctx.SessionString(auth.SessionRegistration),
	})
}

// ProcessLogin checks the credentials, stores the user in the session and
// answers with the LC list.
func (c *SessionsController) ProcessLogin(ctx *framework.Context) error {
	var form loginForm
	if err := ctx.Bind(&form); err != nil {
		return err
	}

	user, err := c.Ops.Login(ctx.Context(), form.Username, form.Password)
	if err != nil {
		if !errors.Is(err, ledger.ErrInvalidCredentials) {
			return err
		}
		ctx.Log().Info("Login failed", zap.String("username", form.Username))
		msg := ctx.T("auth.invalid_login", nil)
		if sess := ctx.Session(); sess != nil {
			sess.Values[auth.SessionError] = msg
			delete(sess.Values, auth.SessionRegError)
			_ = ctx.SaveSession()
		}
		return ctx.Unauthorized(msg)
	}

	if err := auth.Login(ctx, user.UserName, user.Role); err != nil {
		return err
	}
	view, err := c.lcList(ctx, user.UserName, user.Role)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

// Register enrolls a new id through the mutation queue.
func (c *SessionsController) Register(ctx *framework.Context) error {
	var form registerForm
	if err := ctx.Bind(&form); err != nil {
		return err
	}

	sess := ctx.Session()
	creds, err := c.Ops.RegisterUser(ctx.Context(), form.Username)
	if err != nil {
		msg := ctx.T("auth.registration_failed", i18n.Vars{"error": err.Error()})
		ctx.Log().Warn("Registration failed", zap.String("username", form.Username), zap.Error(err))
		if sess != nil {
			sess.Values[auth.SessionRegError] = msg
			delete(sess.Values, auth.SessionRegistration)
			_ = ctx.SaveSession()
		}
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ledger.ErrUserExists):
			status = http.StatusConflict
		case errors.Is(err, ledger.ErrInvalidCredentials):
			status = http.StatusUnprocessableEntity
		}
		return &framework.HTTPError{Code: status, Message: msg, Err: err}
	}

	msg := ctx.T("auth.registered", i18n.Vars{"id": creds.ID, "secret": creds.Secret})
	if sess != nil {
		sess.Values[auth.SessionRegistration] = msg
		delete(sess.Values, auth.SessionRegError)
		delete(sess.Values, auth.SessionError)
		if err := ctx.SaveSession(); err != nil {
			return err
		}
	}
	return ctx.JSON(http.StatusCreated, framework.H{
		"registration": msg,
		"id":           creds.ID,
		"secret":       creds.Secret,
		"role":         creds.Role,
	})
}

// Logout clears the session and sends the client to the login page.
func (c *SessionsController) Logout(ctx *framework.Context) error {
	if err := auth.Logout(ctx); err != nil {
		return err
	}
	return ctx.Redirect("/login")
}

// Token issues an API token for a ledger user.
func (c *SessionsController) Token(ctx *framework.Context) error {
	var form loginForm
	if err := ctx.Bind(&form); err != nil {
		return err
	}
	user, err := c.Ops.Login(ctx.Context(), form.Username, form.Password)
	if err != nil {
		return err
	}
	token, err := auth.GenerateToken(user.UserName, user.Role)
	if err != nil {
		return ctx.InternalError(err)
	}
	return ctx.JSON(http.StatusOK, framework.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(auth.TokenTTL.Seconds()),
	})
}
