package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/pagination"
)

// Service persists and reads in-app notifications.
type Service interface {
	Notify(ctx context.Context, input NotifyInput) (*models.Notification, error)
	NotifyOrderStatus(ctx context.Context, input OrderStatusInput) (*models.Notification, error)
	List(ctx context.Context, input ListInput) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// NotifyInput carries a generic notification payload.
type NotifyInput struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	OrderID *uuid.UUID
}

// OrderStatusInput describes an order lifecycle notification.
type OrderStatusInput struct {
	UserID         uuid.UUID
	OrderID        uuid.UUID
	OrderNumber    int64
	Status         enums.OrderStatus
	PreviousStatus *enums.OrderStatus
	Detail         string
}

// ListInput filters a user's notification feed.
type ListInput struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a notifications service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Notify(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", input.Type))
	}
	if input.Title == "" || input.Message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification title and message required")
	}

	notification := &models.Notification{
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
		OrderID: input.OrderID,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return notification, nil
}

func (s *service) NotifyOrderStatus(ctx context.Context, input OrderStatusInput) (*models.Notification, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Status))
	}

	message := fmt.Sprintf("Order #%d is now %s.", input.OrderNumber, input.Status)
	if input.PreviousStatus != nil {
		message = fmt.Sprintf("Order #%d moved from %s to %s.", input.OrderNumber, *input.PreviousStatus, input.Status)
	}
	if input.Detail != "" {
		message = fmt.Sprintf("%s %s", message, input.Detail)
	}

	orderID := input.OrderID
	return s.Notify(ctx, NotifyInput{
		UserID:  input.UserID,
		Type:    enums.NotificationTypeOrderStatus,
		Title:   fmt.Sprintf("Order #%d update", input.OrderNumber),
		Message: message,
		OrderID: &orderID,
	})
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.Notification, *pagination.Cursor, error) {
	if input.UserID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	notifications, next, err := s.repo.List(ctx, listNotificationsParams{
		UserID:     input.UserID,
		Limit:      input.Limit,
		Cursor:     cursor,
		UnreadOnly: input.UnreadOnly,
	})
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return notifications, next, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	mark, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !mark.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	updated, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return updated, nil
}
