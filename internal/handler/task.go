package handler

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/promptline/api/internal/model"
	"github.com/promptline/api/pkg/response"
)

// TaskProcessor is the service surface the HTTP layer consumes.
type TaskProcessor interface {
	Submit(ctx context.Context, prompt string) (*model.ProcessResponse, error)
	GetStatus(ctx context.Context, taskID string) (*model.StatusResponse, error)
}

type TaskHandler struct {
	service   TaskProcessor
	validator *validator.Validate
	mode      string
}

// NewTaskHandler creates the handler. mode is the human-readable backend
// description reported by the root endpoint.
func NewTaskHandler(svc TaskProcessor, v *validator.Validate, mode string) *TaskHandler {
	return &TaskHandler{
		service:   svc,
		validator: v,
		mode:      mode,
	}
}

// Process handles POST /process
func (h *TaskHandler) Process(c *fiber.Ctx) error {
	var req model.ProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Task prompt cannot be empty", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), req.Task)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /status/:taskId
func (h *TaskHandler) Status(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), taskID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Root handles GET /
func (h *TaskHandler) Root(c *fiber.Ctx) error {
	return response.OK(c, model.RootResponse{
		Message: fmt.Sprintf("LLM task processor running. Using %s.", h.mode),
	})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
