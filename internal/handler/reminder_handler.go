package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// ReminderDirectory is the read surface the query endpoints need.
type ReminderDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error)
}

// AttemptDirectory lists the dispatch audit trail of a reminder.
type AttemptDirectory interface {
	GetByReminderID(ctx context.Context, reminderID string) ([]domain.DispatchAttempt, error)
}

type ReminderHandler struct {
	reminders ReminderDirectory
	attempts  AttemptDirectory
}

func NewReminderHandler(reminders ReminderDirectory, attempts AttemptDirectory) (*ReminderHandler, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder directory is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt directory is required")
	}
	return &ReminderHandler{reminders: reminders, attempts: attempts}, nil
}

func RegisterReminderRoutes(router fiber.Router, reminders ReminderDirectory, attempts AttemptDirectory) error {
	h, err := NewReminderHandler(reminders, attempts)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/reminders/:id", h.GetReminder)
	v1.Get("/reminders", h.ListReminders)

	return nil
}

type outcomeResponse struct {
	Connected        bool    `json:"connected"`
	DurationSeconds  int     `json:"durationSeconds"`
	CustomerResponse string  `json:"customerResponse,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	ProviderID       *string `json:"providerId,omitempty"`
}

type attemptResponse struct {
	ID            string    `json:"id"`
	AttemptNumber int       `json:"attemptNumber"`
	Channel       string    `json:"channel"`
	ProviderID    *string   `json:"providerId,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type reminderResponse struct {
	ID            string           `json:"id"`
	InvoiceID     string           `json:"invoiceId"`
	UserID        string           `json:"userId"`
	ReminderType  string           `json:"reminderType"`
	OffsetDays    int              `json:"offsetDays"`
	Channel       string           `json:"channel"`
	ScheduledDate time.Time        `json:"scheduledDate"`
	Status        string           `json:"status"`
	AttemptCount  int              `json:"attemptCount"`
	LastAttemptAt *time.Time       `json:"lastAttemptAt,omitempty"`
	ExternalID    *string          `json:"externalId,omitempty"`
	Outcome       *outcomeResponse `json:"outcome,omitempty"`
	SkipReason    *string          `json:"skipReason,omitempty"`
	CreatedAt     time.Time        `json:"createdAt,omitempty"`
	UpdatedAt     time.Time        `json:"updatedAt,omitempty"`
}

type reminderDetailResponse struct {
	reminderResponse
	Attempts []attemptResponse `json:"attempts"`
}

type listRemindersResponse struct {
	Data []reminderResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *ReminderHandler) GetReminder(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	reminder, err := h.reminders.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	attempts, err := h.attempts.GetByReminderID(c.Context(), reminder.ID)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, attemptResponse{
			ID:            attempt.ID,
			AttemptNumber: attempt.AttemptNumber,
			Channel:       attempt.Channel.String(),
			ProviderID:    attempt.ProviderID,
			Error:         attempt.Error,
			CreatedAt:     attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(reminderDetailResponse{
		reminderResponse: toReminderResponse(reminder),
		Attempts:         items,
	})
}

func (h *ReminderHandler) ListReminders(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	reminders, total, err := h.reminders.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]reminderResponse, 0, len(reminders))
	for i := range reminders {
		data = append(data, toReminderResponse(&reminders[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listRemindersResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	if invoiceID := strings.TrimSpace(c.Query("invoiceId")); invoiceID != "" {
		params.InvoiceID = &invoiceID
	}

	return params, nil
}

func toReminderResponse(r *domain.Reminder) reminderResponse {
	if r == nil {
		return reminderResponse{}
	}

	response := reminderResponse{
		ID:            r.ID,
		InvoiceID:     r.InvoiceID,
		UserID:        r.UserID,
		ReminderType:  r.ReminderType.String(),
		OffsetDays:    r.OffsetDays,
		Channel:       r.Channel.String(),
		ScheduledDate: r.ScheduledDate,
		Status:        r.Status.String(),
		AttemptCount:  r.AttemptCount,
		LastAttemptAt: r.LastAttemptAt,
		ExternalID:    r.ExternalID,
		SkipReason:    r.SkipReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}

	if r.CallOutcome != nil {
		response.Outcome = &outcomeResponse{
			Connected:        r.CallOutcome.Connected,
			DurationSeconds:  r.CallOutcome.DurationSeconds,
			CustomerResponse: r.CallOutcome.CustomerResponse.String(),
			Notes:            r.CallOutcome.Notes,
			ProviderID:       r.CallOutcome.ProviderID,
		}
	}

	return response
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
