package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// StuckOrder is a pending buy order whose settlement send was started but
// never recorded as finished.
type StuckOrder struct {
	Order    *models.Order    `json:"order"`
	Transfer *models.Transfer `json:"transfer"`
}

// Reconcile lists pending orders whose settlement transfer is initiated
// (outcome unknown) or sent (funds moved, order not yet completed).
func (s *Service) Reconcile(ctx context.Context) ([]StuckOrder, error) {
	orders, err := s.repo.ListPendingSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending settlements: %w", err)
	}

	var stuck []StuckOrder
	for _, order := range orders {
		t, err := s.repo.GetTransfer(ctx, order.SettlementKey)
		if err != nil {
			return nil, fmt.Errorf("failed to get transfer of order %d: %w", order.ID, err)
		}
		if t == nil {
			continue
		}
		if t.Status == models.TransferInitiated || t.Status == models.TransferSent {
			stuck = append(stuck, StuckOrder{Order: order, Transfer: t})
		}
	}
	return stuck, nil
}

// ResolveStuck records the admin's finding for a stuck settlement. "sent"
// completes the order with txRef (or the journaled ref) and runs the
// post-settlement steps without sending again. "failed" marks the transfer
// failed so a later approve retries the same key.
func (s *Service) ResolveStuck(ctx context.Context, orderID uint, outcome, txRef string) (*models.Order, error) {
	if outcome != OutcomeSent && outcome != OutcomeFailed {
		return nil, apperr.New(apperr.KindValidation, "outcome must be sent or failed")
	}

	unlock := s.locks.Lock(orderLockKey(orderID))
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending || order.SettlementKey == "" {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d has no settlement to resolve", order.ID)
	}

	t, err := s.repo.GetTransfer(ctx, order.SettlementKey)
	if err != nil {
		return nil, err
	}
	if t == nil || (t.Status != models.TransferInitiated && t.Status != models.TransferSent) {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d has no settlement to resolve", order.ID)
	}

	log := s.logger.WithFields(logrus.Fields{
		"order":   order.ID,
		"key":     t.IdempotencyKey,
		"outcome": outcome,
	})

	if outcome == OutcomeFailed {
		if t.Status == models.TransferSent {
			return nil, apperr.Newf(apperr.KindInvalidState, "transfer of order %d is recorded as sent", order.ID)
		}
		t.Status = models.TransferFailed
		t.Error = "resolved as failed by admin"
		if err := s.repo.SaveTransfer(ctx, t); err != nil {
			return nil, err
		}
		log.Infof("Stuck settlement marked failed, approve can retry")
		return order, nil
	}

	if txRef == "" {
		txRef = t.TxRef
	}
	if txRef == "" {
		return nil, apperr.New(apperr.KindValidation, "tx_ref is required to resolve as sent")
	}
	if t.Status != models.TransferSent || t.TxRef != txRef {
		t.Status = models.TransferSent
		t.TxRef = txRef
		t.Error = ""
		if err := s.repo.SaveTransfer(ctx, t); err != nil {
			return nil, err
		}
	}

	if _, err := s.engine.Complete(ctx, order, t.OwnerID, txRef); err != nil {
		log.Errorf("Post-settlement steps failed: %v", err)
	}

	log.Infof("Stuck settlement resolved as %s", txRef)
	return s.complete(ctx, order, txRef)
}

// ReconcileSweep logs and alerts the stuck settlements. It is run by the
// scheduler.
func (s *Service) ReconcileSweep(ctx context.Context) error {
	stuck, err := s.Reconcile(ctx)
	if err != nil {
		s.logger.Errorf("Reconcile sweep failed: %v", err)
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	for _, st := range stuck {
		s.logger.WithFields(logrus.Fields{
			"order":    st.Order.ID,
			"transfer": st.Transfer.Status,
			"key":      st.Transfer.IdempotencyKey,
		}).Warnf("⚠️ Settlement stuck since %s", st.Transfer.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	s.alerter.NotifyStuckOrders(ctx, stuck)
	return nil
}
