package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/marquesl99/chamada-visual/core"
	"github.com/marquesl99/chamada-visual/core/student"
)

type studentAPI struct {
	svc *student.Service
}

func registerStudentAPI(e *echo.Echo, api *studentAPI) {
	e.GET("/api/buscar-aluno", api.search, loginRequired)
}

// search backs the terminal's live search box.
func (api *studentAPI) search(ctx echo.Context) error {
	seg, ok := student.ParseSegment(ctx.QueryParam("grupo"))
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: "grupo", Error: "segmento desconhecido"})
	}

	students, err := api.svc.Search(ctx.Request().Context(), ctx.QueryParam("parteNome"), seg)
	if err != nil {
		if errors.Cause(err) == student.ErrSearchUnavailable {
			return errSearchUnavailable
		}
		return errors.Wrap(err, "searching students")
	}
	return ctx.JSON(http.StatusOK, students)
}
