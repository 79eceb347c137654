package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// health serves the latest monitor report. Before the first background
// sample it probes on demand. Responds 503 while the store or queue is
// unreachable; memory pressure alone does not fail the check.
func (a *API) health(c echo.Context) error {
	mon := a.eng.Monitor()
	report := mon.LastReport()
	if report == nil {
		report = mon.Sample(c.Request().Context())
	}

	code := http.StatusOK
	if !report.StoreUp || !report.QueueUp {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}

func (a *API) listAlerts(c echo.Context) error {
	alerts, err := a.eng.Store().ListAlerts(c.Request().Context(), defaultLimit(intQuery(c, "limit")))
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	return c.JSON(http.StatusOK, alerts)
}
