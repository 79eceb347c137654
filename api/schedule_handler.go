package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// listSchedule returns the registered recurring workflow entries.
func (a *API) listSchedule(c echo.Context) error {
	return c.JSON(http.StatusOK, a.eng.Scheduler().Entries())
}
