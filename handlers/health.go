package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/database"
)

// HandleCheckHealth reports service liveness plus database reachability
func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	status := "ok"
	dbStatus := "ok"
	httpStatus := fiber.StatusOK

	if err := store.HealthCheck(); err != nil {
		status = "degraded"
		dbStatus = "unreachable"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
	})
}
