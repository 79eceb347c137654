package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// listFailed serves the queue's failure channel: messages whose handler
// returned an error, newest first. These were never redelivered; the
// listing is the operator's window into what fail-fast halted.
func (a *API) listFailed(c echo.Context) error {
	failed, err := a.eng.Queue().Failed(c.Request().Context(), defaultLimit(intQuery(c, "limit")))
	if err != nil {
		return fmt.Errorf("list failed messages: %w", err)
	}
	return c.JSON(http.StatusOK, failed)
}
