package board

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Stage explains why a market did or did not receive win rates.
type Stage string

const (
	// StageComputed means win rates were simulated for this market.
	StageComputed Stage = "COMPUTED"
	// StageSkippedLiquidity means the market fell outside the top-turnover
	// candidate set and was never simulated.
	StageSkippedLiquidity Stage = "SKIPPED_LIQUIDITY"
	// StageUncomputed means the market was a candidate but its candle fetch
	// or simulation could not complete; it is reported, not raised.
	StageUncomputed Stage = "UNCOMPUTED"
)

// Entry is one market board row. Nil win rates mean "not computed".
type Entry struct {
	Market                  string           `json:"market"`
	KoreanName              string           `json:"korean_name"`
	RecommendedEntryWinRate *decimal.Decimal `json:"recommended_entry_win_rate"`
	MarketEntryWinRate      *decimal.Decimal `json:"market_entry_win_rate"`
	Turnover24h             decimal.Decimal  `json:"turnover_24h"`
	Stage                   Stage            `json:"stage"`
	Reason                  string           `json:"reason,omitempty"`
}

// SortKey selects the board ordering.
type SortKey string

const (
	SortByTurnover           SortKey = "turnover"
	SortByRecommendedWinRate SortKey = "recommended_win_rate"
	SortByMarketWinRate      SortKey = "market_win_rate"
	SortByMarket             SortKey = "market"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// IsWinRateKey reports whether the key requires win-rate simulation.
func (k SortKey) IsWinRateKey() bool {
	return k == SortByRecommendedWinRate || k == SortByMarketWinRate
}

// sortEntries orders the board. Entries with nil win rates sort after every
// computed entry regardless of direction; this is an explicit comparator
// rule, not a property of the underlying store. Ties break by market code
// ascending for determinism.
func sortEntries(entries []Entry, key SortKey, dir SortDirection) {
	desc := dir == SortDesc
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if key.IsWinRateKey() {
			av, bv := a.winRate(key), b.winRate(key)
			switch {
			case av == nil && bv == nil:
				// fall through to market tie-break
			case av == nil:
				return false
			case bv == nil:
				return true
			default:
				if c := av.Cmp(*bv); c != 0 {
					if desc {
						return c > 0
					}
					return c < 0
				}
			}
		} else if key == SortByTurnover {
			if c := a.Turnover24h.Cmp(b.Turnover24h); c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		} else if key == SortByMarket {
			if a.Market != b.Market {
				if desc {
					return a.Market > b.Market
				}
				return a.Market < b.Market
			}
		}
		return strings.Compare(a.Market, b.Market) < 0
	})
}

func (e Entry) winRate(key SortKey) *decimal.Decimal {
	if key == SortByMarketWinRate {
		return e.MarketEntryWinRate
	}
	return e.RecommendedEntryWinRate
}
