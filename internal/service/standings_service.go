package service

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/rl-arena/doubles-rating/internal/models"
	"github.com/rl-arena/doubles-rating/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	recentResultsLen = 5
	minPartnerGames  = 2
)

// StandingsService 리더보드 계산 서비스
type StandingsService struct {
	ledger *LedgerService
	stale  chan struct{} // holds at most one pending rebuild
}

func NewStandingsService(ledger *LedgerService) *StandingsService {
	return &StandingsService{
		ledger: ledger,
		stale:  make(chan struct{}, 1),
	}
}

// MatchesAppended marks the published standings stale. It never blocks; any
// number of appends before the next rebuild collapse into one.
func (s *StandingsService) MatchesAppended(int) {
	select {
	case s.stale <- struct{}{}:
	default:
	}
}

// RunPublisher rebuilds and broadcasts the standings whenever they went
// stale, one rebuild at a time, until ctx ends.
func (s *StandingsService) RunPublisher(ctx context.Context, events EventPublisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stale:
			if err := s.Publish(ctx, events); err != nil && ctx.Err() == nil {
				logger.Warn("Failed to publish standings", "error", err)
			}
		}
	}
}

// Build computes the standings at the current head of the history.
func (s *StandingsService) Build(ctx context.Context) ([]models.StandingsRow, error) {
	start := time.Now()
	snap := s.ledger.Snapshot()

	rows, err := BuildStandings(ctx, snap, s.ledger.Baseline())
	if err != nil {
		return nil, err
	}

	logger.Debug("Standings built",
		"players", len(rows),
		"matches", len(snap),
		"elapsed", time.Since(start),
	)
	return rows, nil
}

// Publish rebuilds the standings and broadcasts them to websocket clients.
func (s *StandingsService) Publish(ctx context.Context, events EventPublisher) error {
	rows, err := s.Build(ctx)
	if err != nil {
		return err
	}
	events.Broadcast(EventStandingsUpdated, rows)
	return nil
}

// BuildStandings folds every player over records and ranks them by rating,
// ties broken by player id. Players are folded concurrently; records is only read.
func BuildStandings(ctx context.Context, records []models.MatchRecord, baseline float64) ([]models.StandingsRow, error) {
	ids := DiscoverPlayers(records)
	rows := make([]models.StandingsRow, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[i] = standingsRow(records, id, baseline)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FinalELO != rows[j].FinalELO {
			return rows[i].FinalELO > rows[j].FinalELO
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

func standingsRow(records []models.MatchRecord, playerID string, baseline float64) models.StandingsRow {
	f := newFold(baseline)
	partners := make(map[string]*models.PartnerStats)
	var results []string

	for i := range records {
		rec := &records[i]
		if !f.apply(rec, playerID) {
			continue
		}
		p, _ := rec.Participant(playerID)
		won := p.Team == rec.WinningTeam()
		if won {
			results = append(results, "W")
		} else {
			results = append(results, "L")
		}

		for _, mate := range rec.TeamIDs(p.Team) {
			if mate == playerID {
				continue
			}
			ps, ok := partners[mate]
			if !ok {
				ps = &models.PartnerStats{PartnerID: mate}
				partners[mate] = ps
			}
			ps.Games++
			if won {
				ps.Wins++
			}
		}
	}

	if len(results) > recentResultsLen {
		results = results[len(results)-recentResultsLen:]
	}
	if results == nil {
		results = []string{}
	}

	return models.StandingsRow{
		PlayerID:      playerID,
		FinalELO:      f.Rating,
		MatchesPlayed: f.Matches,
		Wins:          f.Wins,
		Losses:        f.Losses,
		BestPartner:   bestPartner(partners),
		RecentResults: results,
	}
}

// bestPartner picks the partner with the best win rate over at least two games.
func bestPartner(partners map[string]*models.PartnerStats) *models.PartnerStats {
	var best *models.PartnerStats
	for _, ps := range partners {
		if ps.Games < minPartnerGames {
			continue
		}
		ps.WinRate = WinRate(ps.Wins, ps.Games)
		if best == nil || partnerBetter(ps, best) {
			best = ps
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func partnerBetter(a, b *models.PartnerStats) bool {
	if a.WinRate != b.WinRate {
		return a.WinRate > b.WinRate
	}
	if a.Games != b.Games {
		return a.Games > b.Games
	}
	if a.Wins != b.Wins {
		return a.Wins > b.Wins
	}
	return a.PartnerID < b.PartnerID
}
