package sqlite

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	sqlite3 "modernc.org/sqlite"

	"rudder/internal/store/model"
	"rudder/internal/trade"
)

// SQLite extended result codes for uniqueness violations. The modernc
// driver surfaces these as *sqlite3.Error, which gorm's sqlite error
// translator (built for the cgo driver) does not recognize.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var se *sqlite3.Error
	if errors.As(err, &se) {
		return se.Code() == sqliteConstraintUnique || se.Code() == sqliteConstraintPrimaryKey
	}
	return false
}

// tradeRepository implements trade.TradeRepository inside one transaction.
type tradeRepository struct {
	db *gorm.DB
}

func newTradeRepo(db *gorm.DB) *tradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) Insert(ctx context.Context, t *trade.GuidedTrade) error {
	if t == nil {
		return errors.New("trade cannot be nil")
	}
	m := toTradeModel(t)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return trade.ErrDuplicateOpenTrade
		}
		return err
	}
	t.ID = m.ID
	return nil
}

func (r *tradeRepository) Update(ctx context.Context, t *trade.GuidedTrade) error {
	if t == nil || t.ID == 0 {
		return errors.New("trade must be persisted before update")
	}
	m := toTradeModel(t)
	// Save with all fields; OpenMarket flips to NULL when the trade closes,
	// releasing the unique slot for the market.
	return r.db.WithContext(ctx).Model(&model.GuidedTradeModel{}).
		Where("id = ?", t.ID).
		Select("*").Omit("id", "created_at").
		Updates(m).Error
}

func (r *tradeRepository) FindOpenByMarket(ctx context.Context, mkt string) (*trade.GuidedTrade, error) {
	var m model.GuidedTradeModel
	err := r.db.WithContext(ctx).
		Where("market = ? AND status = ?", mkt, string(trade.StatusOpen)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromTradeModel(&m), nil
}

func (r *tradeRepository) FindByID(ctx context.Context, id int64) (*trade.GuidedTrade, error) {
	var m model.GuidedTradeModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromTradeModel(&m), nil
}

func (r *tradeRepository) ListOpen(ctx context.Context) ([]trade.GuidedTrade, error) {
	var ms []model.GuidedTradeModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(trade.StatusOpen)).
		Order("opened_at ASC, id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]trade.GuidedTrade, 0, len(ms))
	for i := range ms {
		out = append(out, *fromTradeModel(&ms[i]))
	}
	return out, nil
}

func (r *tradeRepository) ListClosedSince(ctx context.Context, since time.Time, limit int) ([]trade.GuidedTrade, error) {
	if limit <= 0 {
		limit = 500
	}
	var ms []model.GuidedTradeModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND closed_at >= ?", string(trade.StatusClosed), since).
		Order("closed_at ASC, id ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]trade.GuidedTrade, 0, len(ms))
	for i := range ms {
		out = append(out, *fromTradeModel(&ms[i]))
	}
	return out, nil
}
