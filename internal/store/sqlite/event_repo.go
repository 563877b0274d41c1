package sqlite

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rudder/internal/store/model"
	"rudder/internal/trade"
)

// eventRepository implements the append-only ledger. No update or delete
// methods exist on purpose.
type eventRepository struct {
	db *gorm.DB
}

func newEventRepo(db *gorm.DB) *eventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Append(ctx context.Context, ev *trade.Event) error {
	if ev == nil {
		return errors.New("event cannot be nil")
	}
	if ev.TradeID == 0 {
		return errors.New("event requires a trade id")
	}
	m := &model.GuidedTradeEventModel{
		TradeID:   ev.TradeID,
		EventType: string(ev.Type),
		Price:     ev.Price,
		Quantity:  ev.Quantity,
		Timestamp: ev.Timestamp,
	}
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		m.Metadata = datatypes.JSON(raw)
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	ev.ID = m.ID
	return nil
}

func (r *eventRepository) ListByTrade(ctx context.Context, tradeID int64) ([]trade.Event, error) {
	var ms []model.GuidedTradeEventModel
	if err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("timestamp ASC, id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]trade.Event, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		ev := trade.Event{
			ID:        m.ID,
			TradeID:   m.TradeID,
			Type:      trade.EventType(m.EventType),
			Price:     m.Price,
			Quantity:  m.Quantity,
			Timestamp: m.Timestamp,
		}
		if len(m.Metadata) > 0 {
			meta := make(map[string]string)
			if err := json.Unmarshal(m.Metadata, &meta); err == nil {
				ev.Metadata = meta
			}
		}
		out = append(out, ev)
	}
	return out, nil
}
