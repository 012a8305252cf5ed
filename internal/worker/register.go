package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amai2222/shipment-data-view-sub002/internal/models"
	"github.com/amai2222/shipment-data-view-sub002/internal/service"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// RunApplier executes a locked import run.
type RunApplier interface {
	ApplyRun(ctx context.Context, runID string) (*models.ImportRun, error)
}

type ApplyTaskHandler struct {
	runs   RunApplier
	logger *logrus.Logger
}

func NewApplyTaskHandler(runs RunApplier, logger *logrus.Logger) *ApplyTaskHandler {
	return &ApplyTaskHandler{runs: runs, logger: logger}
}

func (h *ApplyTaskHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload ApplyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RunID == "" {
		return fmt.Errorf("payload without run_id: %w", asynq.SkipRetry)
	}

	log := h.logger.WithFields(logrus.Fields{"run_id": payload.RunID, "mode": payload.Mode})
	log.Info("Starting import run")

	run, err := h.runs.ApplyRun(ctx, payload.RunID)
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		log.Warn("Import run expired before it was applied")
		return fmt.Errorf("run %s: %v: %w", payload.RunID, err, asynq.SkipRetry)
	case errors.Is(err, service.ErrRunAlreadyApplied):
		log.Info("Import run is already being applied, skipping")
		return nil
	case err != nil:
		return fmt.Errorf("failed to apply run %s: %w", payload.RunID, err)
	}

	log.WithField("status", run.Status).Info("Import run finished")
	return nil
}

// RegisterHandlers binds every task type to its handler.
func RegisterHandlers(mux *asynq.ServeMux, runs RunApplier, logger *logrus.Logger) {
	applyHandler := NewApplyTaskHandler(runs, logger)
	mux.HandleFunc(TypeImportApply, applyHandler.Handle)
}
