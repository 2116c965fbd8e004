package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/repository"
	"github.com/paydue/reminder-engine/internal/transport"
)

type stubReminderDirectory struct {
	reminders  []domain.Reminder
	lastParams repository.ListParams
}

func (s *stubReminderDirectory) GetByID(_ context.Context, id string) (*domain.Reminder, error) {
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			copied := s.reminders[i]
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubReminderDirectory) List(_ context.Context, params repository.ListParams) ([]domain.Reminder, int64, error) {
	s.lastParams = params

	var out []domain.Reminder
	for _, r := range s.reminders {
		if params.Status != nil && r.Status != *params.Status {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

type stubAttemptDirectory struct {
	attempts []domain.DispatchAttempt
}

func (s *stubAttemptDirectory) GetByReminderID(_ context.Context, reminderID string) ([]domain.DispatchAttempt, error) {
	var out []domain.DispatchAttempt
	for _, a := range s.attempts {
		if a.ReminderID == reminderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func newReminderTestApp(t *testing.T, reminders ReminderDirectory, attempts AttemptDirectory) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterReminderRoutes(app, reminders, attempts); err != nil {
		t.Fatalf("RegisterReminderRoutes() error = %v", err)
	}
	return app
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, body
}

func TestGetReminderIncludesAttempts(t *testing.T) {
	t.Parallel()

	reminder := *inProgressReminder()
	reminder.Status = domain.StatusCompleted
	notes := "promised payment"
	reminder.CallOutcome = &domain.CallOutcome{
		Connected:        true,
		DurationSeconds:  80,
		CustomerResponse: domain.ResponseWillPayToday,
		Notes:            &notes,
	}

	providerID := "call-42"
	attempts := &stubAttemptDirectory{attempts: []domain.DispatchAttempt{
		{
			ID:            "att-1",
			ReminderID:    reminder.ID,
			AttemptNumber: 1,
			Channel:       domain.ChannelVoice,
			ProviderID:    &providerID,
			CreatedAt:     time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC),
		},
		{ID: "att-other", ReminderID: "rem-other", AttemptNumber: 1, Channel: domain.ChannelSMS},
	}}

	app := newReminderTestApp(t, &stubReminderDirectory{reminders: []domain.Reminder{reminder}}, attempts)

	resp, body := getJSON(t, app, "/v1/reminders/rem-1")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Outcome  *struct {
			CustomerResponse string `json:"customerResponse"`
		} `json:"outcome"`
		Attempts []struct {
			ID         string  `json:"id"`
			ProviderID *string `json:"providerId"`
		} `json:"attempts"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}

	if parsed.ID != "rem-1" || parsed.Status != domain.StatusCompleted.String() {
		t.Fatalf("parsed = %+v, want rem-1 COMPLETED", parsed)
	}
	if parsed.Outcome == nil || parsed.Outcome.CustomerResponse != domain.ResponseWillPayToday.String() {
		t.Fatalf("outcome = %+v, want WILL_PAY_TODAY", parsed.Outcome)
	}
	if len(parsed.Attempts) != 1 || parsed.Attempts[0].ID != "att-1" {
		t.Fatalf("attempts = %+v, want only att-1", parsed.Attempts)
	}
}

func TestGetReminderNotFound(t *testing.T) {
	t.Parallel()

	app := newReminderTestApp(t, &stubReminderDirectory{}, &stubAttemptDirectory{})

	resp, _ := getJSON(t, app, "/v1/reminders/missing")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListRemindersFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	pending := *inProgressReminder()
	pending.ID = "rem-pending"
	pending.Status = domain.StatusPending
	completed := *inProgressReminder()
	completed.ID = "rem-completed"
	completed.Status = domain.StatusCompleted

	directory := &stubReminderDirectory{reminders: []domain.Reminder{pending, completed}}
	app := newReminderTestApp(t, directory, &stubAttemptDirectory{})

	resp, body := getJSON(t, app, "/v1/reminders?status=pending&page=2&pageSize=10")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Meta struct {
			Page     int   `json:"page"`
			PageSize int   `json:"pageSize"`
			Total    int64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}

	if len(parsed.Data) != 1 || parsed.Data[0].ID != "rem-pending" {
		t.Fatalf("data = %+v, want only rem-pending", parsed.Data)
	}
	if parsed.Meta.Page != 2 || parsed.Meta.PageSize != 10 {
		t.Fatalf("meta = %+v, want page 2 size 10", parsed.Meta)
	}
	if directory.lastParams.Status == nil || *directory.lastParams.Status != domain.StatusPending {
		t.Fatalf("lastParams.Status = %v, want PENDING", directory.lastParams.Status)
	}
}

func TestListRemindersRejectsBadParams(t *testing.T) {
	t.Parallel()

	app := newReminderTestApp(t, &stubReminderDirectory{}, &stubAttemptDirectory{})

	resp, _ := getJSON(t, app, "/v1/reminders?status=bogus")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a bad status", resp.StatusCode)
	}

	resp, _ = getJSON(t, app, "/v1/reminders?pageSize=1000")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an oversized page", resp.StatusCode)
	}
}
