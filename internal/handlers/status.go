package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/echogram/echogram/internal/runtime"
)

// StatusHandler exposes the runtime's current sync state for local
// debugging.
type StatusHandler struct {
	runtime *runtime.Runtime
}

func NewStatusHandler(rt *runtime.Runtime) *StatusHandler {
	return &StatusHandler{runtime: rt}
}

// Status reports whether a session is active and, if so, the badge and
// conversation snapshots.
func (h *StatusHandler) Status(c echo.Context) error {
	scope := h.runtime.Active()
	if scope == nil {
		return c.JSON(http.StatusOK, echo.Map{"signed_in": false})
	}

	badges := scope.Badges.Snapshot()
	conversations := scope.Conversations.Snapshot()
	return c.JSON(http.StatusOK, echo.Map{
		"signed_in":     true,
		"user_id":       scope.UserID,
		"badges":        badges,
		"conversations": len(conversations),
	})
}
