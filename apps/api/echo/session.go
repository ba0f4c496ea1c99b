package echoapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/marquesl99/chamada-visual/core"
)

const (
	sessionName     = "session"
	sessionEmailKey = "userEmail"
	sessionNameKey  = "userName"
	sessionStateKey = "oauthState"

	contextIdentityKey = "identity"
)

// flash categories, rendered as CSS classes on the login page.
const (
	flashWarning = "warning"
	flashDanger  = "danger"
	flashSuccess = "success"
)

type flashMessage struct {
	Category string
	Message  string
}

func getSession(ctx echo.Context) (*sessions.Session, error) {
	sess, err := session.Get(sessionName, ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting session")
	}
	return sess, nil
}

func saveSession(ctx echo.Context, sess *sessions.Session) error {
	return errors.Wrap(sess.Save(ctx.Request(), ctx.Response()), "saving session")
}

// sessionIdentity reads the signed-in identity from the session cookie.
func sessionIdentity(ctx echo.Context) (core.Identity, bool) {
	sess, err := getSession(ctx)
	if err != nil {
		return core.Identity{}, false
	}
	email, ok := sess.Values[sessionEmailKey].(string)
	if !ok || email == "" {
		return core.Identity{}, false
	}
	name, _ := sess.Values[sessionNameKey].(string)
	return core.Identity{Email: email, Name: name}, true
}

func setSessionIdentity(ctx echo.Context, id core.Identity) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	sess.Values[sessionEmailKey] = id.Email
	sess.Values[sessionNameKey] = id.Name
	return saveSession(ctx, sess)
}

// clearSessionIdentity drops the identity but keeps the session alive so a
// flash can still be delivered.
func clearSessionIdentity(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	delete(sess.Values, sessionEmailKey)
	delete(sess.Values, sessionNameKey)
	return saveSession(ctx, sess)
}

// addFlash queues a one-shot message for the next rendered page.
func addFlash(ctx echo.Context, category, message string) {
	sess, err := getSession(ctx)
	if err != nil {
		return
	}
	sess.AddFlash(category + "|" + message)
	_ = saveSession(ctx, sess)
}

func popFlashes(ctx echo.Context) []flashMessage {
	sess, err := getSession(ctx)
	if err != nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) > 0 {
		_ = saveSession(ctx, sess)
	}
	flashes := make([]flashMessage, 0, len(raw))
	for _, f := range raw {
		s, ok := f.(string)
		if !ok {
			continue
		}
		category, message, found := strings.Cut(s, "|")
		if !found {
			category, message = flashWarning, s
		}
		flashes = append(flashes, flashMessage{Category: category, Message: message})
	}
	return flashes
}

// loginRequired gates protected routes: pages redirect to the login page,
// API calls get a 401. The identity ends up in the request context only,
// never in process-wide state.
func loginRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, ok := sessionIdentity(ctx)
		if !ok {
			if strings.HasPrefix(ctx.Path(), "/api") {
				return errUnauthorized
			}
			addFlash(ctx, flashWarning, "Por favor, faça login para acessar esta página.")
			return ctx.Redirect(http.StatusFound, "/login")
		}
		ctx.Set(contextIdentityKey, id)
		return next(ctx)
	}
}

func contextIdentity(ctx echo.Context) (core.Identity, bool) {
	id, ok := ctx.Get(contextIdentityKey).(core.Identity)
	return id, ok
}
