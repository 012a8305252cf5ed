package handler

import "github.com/gofiber/fiber/v2"

// RegisterImportRoutes mounts the import API under router. Static segments
// are registered before the :run_id routes.
func RegisterImportRoutes(router fiber.Router, h *ImportHandler) {
	imports := router.Group("/imports")
	imports.Get("/", h.ListRuns)
	imports.Get("/fields", h.GetFields)
	imports.Get("/template", h.DownloadTemplate)

	imports.Post("/selective/preview", h.PreviewSelective)
	imports.Post("/selective/:run_id/execute", h.ExecuteSelective)
	imports.Post("/full/preview", h.PreviewFull)
	imports.Post("/full/:run_id/execute", h.ExecuteFull)

	imports.Get("/:run_id", h.GetRun)
	imports.Get("/:run_id/report", h.DownloadReport)
}
