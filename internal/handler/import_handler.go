package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
	"github.com/amai2222/shipment-data-view-sub002/internal/middleware"
	"github.com/amai2222/shipment-data-view-sub002/internal/models"
	"github.com/amai2222/shipment-data-view-sub002/internal/service"
	"github.com/amai2222/shipment-data-view-sub002/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ImportAPI is the part of service.ImportService the handler calls.
type ImportAPI interface {
	Fields() []service.FieldInfo
	Template(mode importer.ImportMode) ([]byte, error)
	PreviewSelective(ctx context.Context, upload service.Upload, fieldNames []string, project string) (*models.ImportRun, error)
	PreviewFull(ctx context.Context, upload service.Upload) (*models.ImportRun, error)
	ExecuteSelective(ctx context.Context, runID string, rows []int) (*models.ImportRun, error)
	ExecuteFull(ctx context.Context, runID string, approved []int) (*models.ImportRun, error)
	GetRun(ctx context.Context, runID string) (*models.ImportRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.ImportRunSummary, error)
	Report(ctx context.Context, runID string) ([]byte, error)
}

type ImportHandler struct {
	imports       ImportAPI
	uploadPath    string
	uploadMaxSize int
}

// NewImportHandler creates the handler. When uploadPath is set a copy of
// every upload is kept there.
func NewImportHandler(imports ImportAPI, uploadPath string, uploadMaxSize int) *ImportHandler {
	return &ImportHandler{imports: imports, uploadPath: uploadPath, uploadMaxSize: uploadMaxSize}
}

type executeSelectiveRequest struct {
	Rows []int `json:"rows"`
}

type executeFullRequest struct {
	Approved []int `json:"approved"`
}

func (h *ImportHandler) GetFields(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, "Fields retrieved successfully", h.imports.Fields())
}

func (h *ImportHandler) DownloadTemplate(c *fiber.Ctx) error {
	mode := importer.ImportMode(c.Query("mode", string(importer.ModeSelective)))
	data, err := h.imports.Template(mode)
	if err != nil {
		return h.fail(c, "Failed to generate template", err)
	}
	return sendWorkbook(c, fmt.Sprintf("waybill_%s_template.xlsx", mode), data)
}

func (h *ImportHandler) PreviewSelective(c *fiber.Ctx) error {
	upload, err := h.readUpload(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid upload", err)
	}
	defer closeUpload(upload)

	run, err := h.imports.PreviewSelective(c.UserContext(), upload, splitFields(c.FormValue("fields")), strings.TrimSpace(c.FormValue("project")))
	if err != nil {
		return h.fail(c, "Failed to preview selective update", err)
	}
	return utils.SuccessResponse(c, "Preview generated successfully", run)
}

func (h *ImportHandler) PreviewFull(c *fiber.Ctx) error {
	upload, err := h.readUpload(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid upload", err)
	}
	defer closeUpload(upload)

	run, err := h.imports.PreviewFull(c.UserContext(), upload)
	if err != nil {
		return h.fail(c, "Failed to preview import", err)
	}
	return utils.SuccessResponse(c, "Preview generated successfully", run)
}

func (h *ImportHandler) ExecuteSelective(c *fiber.Ctx) error {
	var req executeSelectiveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}

	run, err := h.imports.ExecuteSelective(c.UserContext(), c.Params("run_id"), req.Rows)
	if err != nil {
		return h.fail(c, "Failed to execute selective update", err)
	}
	return h.executed(c, run)
}

func (h *ImportHandler) ExecuteFull(c *fiber.Ctx) error {
	var req executeFullRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}

	run, err := h.imports.ExecuteFull(c.UserContext(), c.Params("run_id"), req.Approved)
	if err != nil {
		return h.fail(c, "Failed to execute import", err)
	}
	return h.executed(c, run)
}

func (h *ImportHandler) executed(c *fiber.Ctx, run *models.ImportRun) error {
	if run.Status == models.RunQueued {
		c.Status(fiber.StatusAccepted)
		return utils.SuccessResponse(c, "Import queued", run)
	}
	return utils.SuccessResponse(c, "Import executed", run)
}

func (h *ImportHandler) GetRun(c *fiber.Ctx) error {
	run, err := h.imports.GetRun(c.UserContext(), c.Params("run_id"))
	if err != nil {
		return h.fail(c, "Failed to get import run", err)
	}
	return utils.SuccessResponse(c, "Import run retrieved successfully", run)
}

func (h *ImportHandler) ListRuns(c *fiber.Ctx) error {
	runs, err := h.imports.ListRuns(c.UserContext(), utils.GetLimit(c))
	if err != nil {
		return h.fail(c, "Failed to list import runs", err)
	}
	return utils.SuccessResponse(c, "Import runs retrieved successfully", runs)
}

func (h *ImportHandler) DownloadReport(c *fiber.Ctx) error {
	runID := c.Params("run_id")
	data, err := h.imports.Report(c.UserContext(), runID)
	if err != nil {
		return h.fail(c, "Failed to generate report", err)
	}
	return sendWorkbook(c, fmt.Sprintf("import_report_%s.xlsx", runID), data)
}

// readUpload opens the multipart "file" field, keeping a copy under
// uploadPath when configured.
func (h *ImportHandler) readUpload(c *fiber.Ctx) (service.Upload, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return service.Upload{}, errors.New("file is required")
	}
	if h.uploadMaxSize > 0 && file.Size > int64(h.uploadMaxSize) {
		return service.Upload{}, errors.New("file size exceeds maximum limit")
	}
	if h.uploadPath != "" {
		dst := filepath.Join(h.uploadPath, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
		if err := c.SaveFile(file, dst); err != nil {
			return service.Upload{}, fmt.Errorf("failed to save file: %w", err)
		}
	}

	f, err := file.Open()
	if err != nil {
		return service.Upload{}, fmt.Errorf("failed to read file: %w", err)
	}
	return service.Upload{File: f, Filename: file.Filename, CreatedBy: middleware.Username(c)}, nil
}

func closeUpload(u service.Upload) {
	if f, ok := u.File.(multipart.File); ok {
		f.Close()
	}
}

// fail maps service errors onto status codes.
func (h *ImportHandler) fail(c *fiber.Ctx, message string, err error) error {
	var matchErr *importer.MatchError
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Import run not found", err)
	case errors.Is(err, service.ErrRunAlreadyApplied),
		errors.Is(err, service.ErrModeMismatch),
		errors.Is(err, service.ErrRunNotFinished):
		return utils.ErrorResponse(c, fiber.StatusConflict, message, err)
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnsupportedFile),
		errors.Is(err, importer.ErrNoRows),
		errors.Is(err, importer.ErrNoFieldsSelected),
		errors.Is(err, importer.ErrInvalidApproval):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, message, err)
	case errors.As(err, &matchErr):
		return utils.ErrorResponse(c, fiber.StatusBadGateway, message, err)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, message, err)
}

func sendWorkbook(c *fiber.Ctx, filename string, data []byte) error {
	c.Set("Content-Type", xlsxContentType)
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// splitFields splits the comma separated "fields" form value.
func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
