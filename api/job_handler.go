package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thelittleladyinc/empire-system/id"
)

func (a *API) getJob(c echo.Context) error {
	jobID, err := id.ParseJobID(c.Param("jobId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := a.eng.Store().GetJob(c.Request().Context(), jobID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, j)
}
