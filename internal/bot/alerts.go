package bot

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/service"
)

func (b *Bot) NotifyNewOrder(_ context.Context, order *models.Order) {
	b.logger.Debugf("Alerting admin chat about order #%d", order.ID)
	b.enqueueAlert("🆕 New order\n\n" + orderSummary(order))
}

func (b *Bot) NotifySettlementFailed(_ context.Context, order *models.Order, err error) {
	text := fmt.Sprintf(
		"‼️ Settlement of order #%d failed\n\n%s\n❗ %s: %s",
		order.ID, orderSummary(order), apperr.KindOf(err), esc(apperr.MessageOf(err)),
	)
	if apperr.KindOf(err) == apperr.KindTimeout {
		text += "\n\nThe outcome is unknown. Check /stuck before approving again."
	}
	b.enqueueAlert(text)
}

func (b *Bot) NotifyStuckOrders(_ context.Context, stuck []service.StuckOrder) {
	b.enqueueAlert(renderStuck(stuck))
}
