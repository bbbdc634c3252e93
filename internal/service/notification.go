package service

import (
	"context"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/realtime"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/sirupsen/logrus"
)

const EventReceived = "received"

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID uint, coin models.Coin) ([]*models.Notification, error)
}

// NotificationSink persists fund-movement notifications and pushes the new
// ones to the user's live sessions.
type NotificationSink struct {
	repo   NotificationRepository
	hub    *realtime.Hub
	logger *utils.Logger
}

func NewNotificationSink(repo NotificationRepository, hub *realtime.Hub, logger *utils.Logger) *NotificationSink {
	return &NotificationSink{repo: repo, hub: hub, logger: logger}
}

// Record appends n. It reports false when a notification with the same
// transaction hash already exists for the user.
func (s *NotificationSink) Record(ctx context.Context, n *models.Notification) (bool, error) {
	return s.repo.CreateNotification(ctx, n)
}

// Notify records n and, when it is new, pushes message to the user.
func (s *NotificationSink) Notify(ctx context.Context, n *models.Notification, message string) (bool, error) {
	created, err := s.Record(ctx, n)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	delivered := s.hub.Push(n.UserID, realtime.Event{
		Type:    EventReceived,
		Message: message,
		Data:    n,
	})
	s.logger.WithFields(logrus.Fields{
		"user": n.UserID,
		"coin": n.Coin,
		"hash": n.TransactionHash,
	}).Debugf("Notification pushed to %d sessions", delivered)
	return true, nil
}

// List returns the user's notifications newest first. An empty coin means all.
func (s *NotificationSink) List(ctx context.Context, userID uint, coin models.Coin) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, userID, coin)
}
