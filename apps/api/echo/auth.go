package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/marquesl99/chamada-visual/core"
)

const googleIssuer = "https://accounts.google.com"

type (
	// IdentityExchanger runs the provider side of the authorization-code flow.
	// The google implementation is the only real one; tests stub it.
	IdentityExchanger interface {
		AuthCodeURL(state string) string
		Exchange(ctx context.Context, code string) (core.Identity, error)
	}

	googleExchanger struct {
		oauth    *oauth2.Config
		verifier *oidc.IDTokenVerifier
	}

	authAPI struct {
		conf      *core.Config
		exchanger IdentityExchanger
		logger    core.Logger
	}
)

// NewGoogleExchanger discovers Google's OIDC endpoints and builds the OAuth
// client used for staff sign-in.
func NewGoogleExchanger(ctx context.Context, conf *core.Config) (IdentityExchanger, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, errors.Wrap(err, "discovering google oidc provider")
	}
	return &googleExchanger{
		oauth: &oauth2.Config{
			ClientID:     conf.Google.ClientID,
			ClientSecret: conf.Google.ClientSecret,
			RedirectURL:  conf.Google.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: conf.Google.ClientID}),
	}, nil
}

func (g *googleExchanger) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

func (g *googleExchanger) Exchange(ctx context.Context, code string) (core.Identity, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return core.Identity{}, errors.Wrap(err, "exchanging authorization code")
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return core.Identity{}, errors.New("token response missing id_token")
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return core.Identity{}, errors.Wrap(err, "verifying id token")
	}
	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err = idToken.Claims(&claims); err != nil {
		return core.Identity{}, errors.Wrap(err, "decoding id token claims")
	}
	return core.Identity{Email: claims.Email, Name: claims.Name}, nil
}

func registerAuthRoutes(e *echo.Echo, api *authAPI) {
	e.GET("/login", api.loginPage)
	e.GET("/entrar-google", api.loginGoogle)
	e.GET("/google-auth", api.googleAuth)
	e.GET("/logout", api.logout)
}

func (api *authAPI) loginPage(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "login.html", echo.Map{
		"AppName": api.conf.AppName,
		"Flashes": popFlashes(ctx),
	})
}

func (api *authAPI) loginGoogle(ctx echo.Context) error {
	state := uuid.NewString()
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	sess.Values[sessionStateKey] = state
	if err = saveSession(ctx, sess); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, api.exchanger.AuthCodeURL(state))
}

// googleAuth is the OAuth callback: validate state, exchange the code, check
// the email domain, establish the session.
func (api *authAPI) googleAuth(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	wantState, _ := sess.Values[sessionStateKey].(string)
	delete(sess.Values, sessionStateKey)
	if err = saveSession(ctx, sess); err != nil {
		return err
	}

	if state := ctx.QueryParam("state"); wantState == "" || state != wantState {
		api.logger.Warn("oauth callback with mismatched state")
		return api.loginFailed(ctx)
	}

	id, err := api.exchanger.Exchange(ctx.Request().Context(), ctx.QueryParam("code"))
	if err != nil {
		api.logger.Error(fmt.Sprintf("oauth exchange failed: %v", err), err)
		return api.loginFailed(ctx)
	}

	if id.EmailDomain() != strings.ToLower(api.conf.AllowedDomain) {
		api.logger.Warn(fmt.Sprintf("sign-in rejected for %s: domain not allowed", id.Email), id)
		addFlash(ctx, flashDanger, "Acesso negado. Utilize uma conta do Colégio Carbonell.")
		return ctx.Redirect(http.StatusFound, "/login")
	}

	if err = setSessionIdentity(ctx, id); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, "/terminal")
}

func (api *authAPI) loginFailed(ctx echo.Context) error {
	addFlash(ctx, flashDanger, "Falha na autenticação. Tente novamente.")
	return ctx.Redirect(http.StatusFound, "/login")
}

func (api *authAPI) logout(ctx echo.Context) error {
	if err := clearSessionIdentity(ctx); err != nil {
		return err
	}
	addFlash(ctx, flashSuccess, "Você saiu da sua conta.")
	return ctx.Redirect(http.StatusFound, "/login")
}
