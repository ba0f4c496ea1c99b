package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/marquesl99/chamada-visual/core/call"
	"github.com/marquesl99/chamada-visual/core/student"
)

type (
	callAPI struct {
		svc      *call.Service
		validate *validator.Validate
	}

	// newCallRequest is what the terminal posts when staff selects a result.
	newCallRequest struct {
		ID       int    `json:"id" validate:"required"`
		FullName string `json:"nomeCompleto" validate:"required"`
		Class    string `json:"turma" validate:"required"`
		Photo    string `json:"fotoUrl"`
	}
)

func registerCallAPI(e *echo.Echo, api *callAPI) {
	e.POST("/api/chamadas", api.create, loginRequired)
	e.DELETE("/api/chamadas/:id", api.dismiss, loginRequired)
	// the stream feeds the panels, which carry no session.
	e.GET("/api/chamadas/stream", api.stream)
}

func (api *callAPI) create(ctx echo.Context) error {
	var data newCallRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to newCallRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	c, err := api.svc.Call(ctx.Request().Context(), student.Student{
		ID:       data.ID,
		FullName: data.FullName,
		Class:    data.Class,
		Photo:    data.Photo,
	})
	if err != nil {
		return errCallWriteFailed
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *callAPI) dismiss(ctx echo.Context) error {
	if err := api.svc.Dismiss(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if errors.Cause(err) == call.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "dismissing call")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// stream pushes the visible call list to a panel over server-sent events:
// the full list right away, then again after every change, until the panel
// disconnects.
func (api *callAPI) stream(ctx echo.Context) error {
	sub, err := api.svc.Subscribe(ctx.Request().Context(), filterForGroup(ctx.QueryParam("grupo")))
	if err != nil {
		return errors.Wrap(err, "subscribing panel")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for list := range sub {
		data, err := json.Marshal(list)
		if err != nil {
			return errors.Wrap(err, "encoding call list")
		}
		if _, err = fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
			// panel went away; the subscription dies with the request context.
			return nil
		}
		res.Flush()
	}
	return nil
}

func filterForGroup(group string) call.Filter {
	switch strings.ToLower(strings.TrimSpace(group)) {
	case "ei", "infantil":
		return call.Infantil
	case "ef", "fundamental":
		return call.Fundamental
	case "ai":
		return call.BySegment(student.SegmentAI)
	case "af":
		return call.BySegment(student.SegmentAF)
	default:
		return call.All
	}
}
