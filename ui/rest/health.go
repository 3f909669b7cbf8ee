package rest

import (
	"github.com/AzielCF/az-track/infrastructure/valkey"
	"github.com/AzielCF/az-track/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Health struct {
	db     *gorm.DB
	valkey *valkey.Client
}

// InitRestHealth registers the liveness endpoint. valkeyClient may be nil
// when the cache runs in memory.
func InitRestHealth(app fiber.Router, db *gorm.DB, valkeyClient *valkey.Client) Health {
	handler := Health{db: db, valkey: valkeyClient}
	app.Get("/health", handler.GetStatus)
	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	checks := fiber.Map{}
	healthy := true

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.UserContext())
	}
	if err != nil {
		dbStatus = err.Error()
		healthy = false
	}
	checks["database"] = dbStatus

	if h.valkey != nil {
		valkeyStatus := "ok"
		if !h.valkey.IsConnected() {
			valkeyStatus = "unreachable"
			healthy = false
		}
		checks["valkey"] = valkeyStatus
	}

	status := 200
	code := "SUCCESS"
	message := "Service healthy"
	if !healthy {
		status = 503
		code = "SERVICE_UNAVAILABLE"
		message = "One or more dependencies are failing"
	}

	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: message,
		Results: checks,
	})
}
