package order

import (
	"context"
	"log"
	"time"

	"perp-trader/internal/events"
	"perp-trader/pkg/exchanges/common"
)

// CheckPending runs one maintenance pass over tracked resting orders:
// filled and cancelled orders are dropped, orders resting longer than
// pendingTimeout are cancelled, and orders whose status cannot be examined
// past hardDropAfter are abandoned.
func (m *Manager) CheckPending(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]*PendingOrder, 0, len(m.pending))
	for _, p := range m.pending {
		snapshot = append(snapshot, p)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, p := range snapshot {
		status, err := m.client.GetOrderStatus(ctx, p.Symbol, p.OrderID)
		if err != nil {
			m.mu.Lock()
			p.statusFailures++
			m.mu.Unlock()
			log.Printf("[order] status check for %s %s failed (%d): %v", p.Symbol, p.OrderID, p.statusFailures, err)
			if now.Sub(p.CreatedAt) > hardDropAfter {
				log.Printf("[order] abandoning untrackable order %s %s after %s", p.Symbol, p.OrderID, now.Sub(p.CreatedAt).Round(time.Second))
				m.remove(p.OrderID)
			}
			continue
		}

		m.mu.Lock()
		p.statusFailures = 0
		m.mu.Unlock()

		switch status {
		case common.StatusFilled:
			m.settlePendingFill(ctx, p)
			m.remove(p.OrderID)
		case common.StatusCanceled, common.StatusRejected, common.StatusExpired:
			if m.db != nil {
				_ = m.db.UpdateOrderStatus(ctx, p.ClientID, string(status))
			}
			m.publish(events.EventOrderCancelled, events.TradeRecord{
				Symbol: p.Symbol, Side: string(p.Side), Size: p.Size, Price: p.Price,
			})
			m.remove(p.OrderID)
		default:
			if now.Sub(p.CreatedAt) > pendingTimeout {
				m.cancelStale(ctx, p, now)
			}
		}
	}
}

func (m *Manager) settlePendingFill(ctx context.Context, p *PendingOrder) {
	log.Printf("[order] resting order %s %s filled", p.Symbol, p.OrderID)
	m.recordFill(ctx, p.ClientID, Request{
		Symbol: p.Symbol,
		Side:   p.Side,
		Size:   p.Size,
		Price:  p.Price,
	}, common.OrderResult{AvgPrice: p.Price, Status: common.StatusFilled})
}

func (m *Manager) cancelStale(ctx context.Context, p *PendingOrder, now time.Time) {
	age := now.Sub(p.CreatedAt).Round(time.Second)
	log.Printf("[order] cancelling stale order %s %s after %s", p.Symbol, p.OrderID, age)
	if err := m.client.CancelOrder(ctx, p.Symbol, p.OrderID); err != nil {
		log.Printf("[order] cancel %s %s: %v", p.Symbol, p.OrderID, err)
		if now.Sub(p.CreatedAt) <= hardDropAfter {
			return
		}
	}
	if m.db != nil {
		_ = m.db.UpdateOrderStatus(ctx, p.ClientID, string(common.StatusCanceled))
	}
	m.publish(events.EventOrderCancelled, events.TradeRecord{
		Symbol: p.Symbol, Side: string(p.Side), Size: p.Size, Price: p.Price,
	})
	m.remove(p.OrderID)
}

func (m *Manager) remove(orderID string) {
	m.mu.Lock()
	delete(m.pending, orderID)
	m.mu.Unlock()
}
