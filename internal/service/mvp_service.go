package service

import (
	"math"
	"sort"
	"time"

	"github.com/rl-arena/doubles-rating/internal/models"
)

const (
	EveningMinGames = 3
	MonthMinGames   = 6

	// MonthWindow is the length of the rolling month window.
	MonthWindow = 30 * 24 * time.Hour

	mvpWinRateBonus = 15
	mvpGameBonus    = 0.5
	scoreEpsilon    = 0.001
)

// MVPScore = eloGain + winRate*15 + games*0.5
func MVPScore(eloGain float64, wins, games int) float64 {
	return eloGain + WinRate(wins, games)*mvpWinRateBonus + float64(games)*mvpGameBonus
}

// WinRate is wins/games, or 0 for a player with no games.
func WinRate(wins, games int) float64 {
	if games <= 0 {
		return 0
	}
	return float64(wins) / float64(games)
}

// ClassifyEligibility reports the largest window a games-played count qualifies for.
func ClassifyEligibility(games int) models.MVPEligibility {
	switch {
	case games >= MonthMinGames:
		return models.MVPEligibleMonth
	case games >= EveningMinGames:
		return models.MVPEligibleEvening
	default:
		return models.MVPIneligible
	}
}

func IsEligible(window models.MVPWindow, games int) bool {
	if window == models.MVPWindowMonth {
		return games >= MonthMinGames
	}
	return games >= EveningMinGames
}

// ScoreWindow aggregates every player who played in [from, to). Ineligible
// players are included and flagged. Results are ordered by score, best first.
func ScoreWindow(records []models.MatchRecord, from, to time.Time, window models.MVPWindow, currentRating func(string) float64) []models.MVPResult {
	byPlayer := make(map[string]*models.MVPResult)
	var order []string

	for i := range records {
		rec := &records[i]
		if rec.PlayedAt.Before(from) || !rec.PlayedAt.Before(to) {
			continue
		}
		for _, p := range rec.Participants {
			delta, won, _ := rec.Credit(p.PlayerID)
			r, ok := byPlayer[p.PlayerID]
			if !ok {
				r = &models.MVPResult{PlayerID: p.PlayerID}
				byPlayer[p.PlayerID] = r
				order = append(order, p.PlayerID)
			}
			r.GamesPlayed++
			r.ELOGain += delta
			if won {
				r.Wins++
			}
		}
	}

	results := make([]models.MVPResult, 0, len(order))
	for _, id := range order {
		r := byPlayer[id]
		r.WinRate = WinRate(r.Wins, r.GamesPlayed)
		r.StandardScore = MVPScore(r.ELOGain, r.Wins, r.GamesPlayed)
		r.Eligibility = ClassifyEligibility(r.GamesPlayed)
		r.Eligible = IsEligible(window, r.GamesPlayed)
		if currentRating != nil {
			r.CurrentELO = currentRating(id)
		}
		results = append(results, *r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return mvpBetter(&results[i], &results[j])
	})
	return results
}

// Winner returns the best eligible result, or nil when nobody qualifies.
func Winner(results []models.MVPResult) *models.MVPResult {
	var best *models.MVPResult
	for i := range results {
		r := &results[i]
		if !r.Eligible {
			continue
		}
		if best == nil || mvpBetter(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// mvpBetter orders by score, Elo gain, current rating, wins, then player id.
func mvpBetter(a, b *models.MVPResult) bool {
	if math.Abs(a.StandardScore-b.StandardScore) > scoreEpsilon {
		return a.StandardScore > b.StandardScore
	}
	if math.Abs(a.ELOGain-b.ELOGain) > scoreEpsilon {
		return a.ELOGain > b.ELOGain
	}
	if a.CurrentELO != b.CurrentELO {
		return a.CurrentELO > b.CurrentELO
	}
	if a.Wins != b.Wins {
		return a.Wins > b.Wins
	}
	return a.PlayerID < b.PlayerID
}

// MVPService MVP 계산 서비스
type MVPService struct {
	ledger *LedgerService
}

func NewMVPService(ledger *LedgerService) *MVPService {
	return &MVPService{ledger: ledger}
}

// Evening scores the calendar day containing date, in date's location.
func (s *MVPService) Evening(date time.Time) models.MVPBoard {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return s.board(models.MVPWindowEvening, from, from.AddDate(0, 0, 1))
}

// Month scores the 30 days ending at at.
func (s *MVPService) Month(at time.Time) models.MVPBoard {
	return s.board(models.MVPWindowMonth, at.Add(-MonthWindow), at)
}

func (s *MVPService) board(window models.MVPWindow, from, to time.Time) models.MVPBoard {
	results := ScoreWindow(s.ledger.Snapshot(), from, to, window, s.ledger.CurrentRating)
	return models.MVPBoard{
		Window:  window,
		From:    from,
		To:      to,
		Results: results,
		Winner:  Winner(results),
	}
}
