package router

import (
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/echogram/echogram/internal/handlers"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/runtime"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
}

// AutoMigrate runs the PostgreSQL schema migrations for every
// relational model.
func AutoMigrate(pgdb *gorm.DB) error {
	return pgdb.AutoMigrate(
		&models.Profile{},
		&models.Message{},
		&models.Notification{},
		&models.Connection{},
		&models.Reaction{},
		&models.Comment{},
		&models.EchoSeen{},
		&models.EchoReaction{},
		&models.PresenceRecord{},
	)
}

// SetupRoutes wires the local debug surface to the runtime.
func SetupRoutes(e *echo.Echo, rt *runtime.Runtime) {
	e.GET("/health", handlers.HealthCheck)

	statusHandler := handlers.NewStatusHandler(rt)
	e.GET("/status", statusHandler.Status)

	log.Info().Msg("routes configured")
}
