package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
	Now         func() time.Time
}

func New(store StoreAPI, mailer Mailer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: from, Now: time.Now}
}

// Create stores the in-app notification and mails a copy when a mailer is
// configured. Mail failures are logged, never returned.
func (s *Service) Create(ctx context.Context, employeeID, ntype, title, body string) error {
	if err := s.store.CreateNotification(ctx, Notification{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Type:       ntype,
		Title:      title,
		Body:       body,
		CreatedAt:  s.Now().UTC(),
	}); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}
	email, err := s.store.EmployeeEmail(ctx, employeeID)
	if err != nil {
		slog.Warn("notification email lookup failed", "employeeId", employeeID, "err", err)
		return nil
	}
	if email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, s.DefaultFrom, email, title, body); err != nil {
		slog.Warn("notification email send failed", "employeeId", employeeID, "err", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, employeeID string, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, employeeID, limit, offset)
}

func (s *Service) Count(ctx context.Context, employeeID string) (int, error) {
	return s.store.CountNotifications(ctx, employeeID)
}

func (s *Service) MarkRead(ctx context.Context, employeeID, notificationID string) error {
	return s.store.MarkRead(ctx, employeeID, notificationID, s.Now().UTC())
}
