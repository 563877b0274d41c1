package sqlite

import (
	"github.com/shopspring/decimal"

	"rudder/internal/store/model"
	"rudder/internal/trade"
)

func toTradeModel(t *trade.GuidedTrade) *model.GuidedTradeModel {
	m := &model.GuidedTradeModel{
		ID:                     t.ID,
		Ref:                    t.Ref,
		Market:                 t.Market,
		Status:                 string(t.Status),
		AverageEntryPrice:      t.AverageEntryPrice,
		EntryQuantity:          t.EntryQuantity,
		RemainingQuantity:      t.RemainingQuantity,
		StopLossPrice:          t.StopLossPrice,
		TakeProfitPrice:        t.TakeProfitPrice,
		TrailingTriggerPercent: t.TrailingTriggerPercent,
		TrailingOffsetPercent:  t.TrailingOffsetPercent,
		DCAStepPercent:         t.DCAStepPercent,
		HalfTakeProfitRatio:    t.HalfTakeProfitRatio,
		CumulativeExitQuantity: t.CumulativeExitQuantity,
		AverageExitPrice:       t.AverageExitPrice,
		RealizedPnL:            t.RealizedPnL,
		RealizedPnLPercent:     t.RealizedPnLPercent,
		PnLConfidence:          string(t.PnLConfidence),
		PnLReconciledAt:        t.PnLReconciledAt,
		OpenedAt:               t.OpenedAt,
		ClosedAt:               t.ClosedAt,
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
	if t.Status == trade.StatusOpen {
		mkt := t.Market
		m.OpenMarket = &mkt
	}
	if t.TrailingPeakPrice != nil {
		m.TrailingPeakPrice = decimal.NewNullDecimal(*t.TrailingPeakPrice)
	}
	if t.TrailingStopPrice != nil {
		m.TrailingStopPrice = decimal.NewNullDecimal(*t.TrailingStopPrice)
	}
	return m
}

func fromTradeModel(m *model.GuidedTradeModel) *trade.GuidedTrade {
	t := &trade.GuidedTrade{
		ID:                     m.ID,
		Ref:                    m.Ref,
		Market:                 m.Market,
		Status:                 trade.Status(m.Status),
		AverageEntryPrice:      m.AverageEntryPrice,
		EntryQuantity:          m.EntryQuantity,
		RemainingQuantity:      m.RemainingQuantity,
		StopLossPrice:          m.StopLossPrice,
		TakeProfitPrice:        m.TakeProfitPrice,
		TrailingTriggerPercent: m.TrailingTriggerPercent,
		TrailingOffsetPercent:  m.TrailingOffsetPercent,
		DCAStepPercent:         m.DCAStepPercent,
		HalfTakeProfitRatio:    m.HalfTakeProfitRatio,
		CumulativeExitQuantity: m.CumulativeExitQuantity,
		AverageExitPrice:       m.AverageExitPrice,
		RealizedPnL:            m.RealizedPnL,
		RealizedPnLPercent:     m.RealizedPnLPercent,
		PnLConfidence:          trade.PnLConfidence(m.PnLConfidence),
		PnLReconciledAt:        m.PnLReconciledAt,
		OpenedAt:               m.OpenedAt,
		ClosedAt:               m.ClosedAt,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
	if m.TrailingPeakPrice.Valid {
		v := m.TrailingPeakPrice.Decimal
		t.TrailingPeakPrice = &v
	}
	if m.TrailingStopPrice.Valid {
		v := m.TrailingStopPrice.Decimal
		t.TrailingStopPrice = &v
	}
	return t
}
