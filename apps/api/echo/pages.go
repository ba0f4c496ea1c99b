package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func registerPageRoutes(e *echo.Echo) {
	e.GET("/", index)
	e.GET("/terminal", terminal, loginRequired)
	// panels are shared displays and carry no session, as in the hallway TVs.
	e.GET("/painel", panel("todos", "Painel de Chamada"))
	e.GET("/painel-infantil", panel("infantil", "Painel — Educação Infantil"))
	e.GET("/painel-fundamental", panel("fundamental", "Painel — Ensino Fundamental"))
}

func index(ctx echo.Context) error {
	if _, ok := sessionIdentity(ctx); ok {
		return ctx.Redirect(http.StatusFound, "/terminal")
	}
	return ctx.Redirect(http.StatusFound, "/login")
}

func terminal(ctx echo.Context) error {
	id, _ := contextIdentity(ctx)
	return ctx.Render(http.StatusOK, "terminal.html", echo.Map{
		"UserName":  id.Name,
		"UserEmail": id.Email,
	})
}

func panel(group, title string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.Render(http.StatusOK, "painel.html", echo.Map{
			"Group": group,
			"Title": title,
		})
	}
}
