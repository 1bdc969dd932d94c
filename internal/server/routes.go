package server

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	api := e.Group("/api")
	api.POST("/ingest", h.IngestHandler)
	api.POST("/retrieve", h.RetrieveHandler)
	api.POST("/chains", h.ChainsHandler)
	api.POST("/verify", h.VerifyHandler)
}
