package service

import (
	"math"

	"github.com/rl-arena/doubles-rating/internal/models"
)

const (
	// A sets match counts fully once the winner reaches this many sets.
	longSetMin = 6
	// A points match counts fully only above this target.
	shortPointsMax = 21

	shortMatchWeight = 0.5
	fullMatchWeight  = 1.0
	singlesWeight    = 0.5
)

// ELOService ELO 레이팅 계산 서비스
// Every method is a pure function of its arguments and the rating config.
type ELOService struct {
	cfg models.RatingConfig
}

// NewELOService ELO 서비스 생성
func NewELOService(cfg models.RatingConfig) *ELOService {
	return &ELOService{cfg: cfg}
}

func (s *ELOService) Config() models.RatingConfig {
	return s.cfg
}

// KFactor returns the K-factor for a player with the given number of games played.
// With the default config:
// - New players (< 10 games): K=40
// - Intermediate players (10-29 games): K=30
// - Established players (30+ games): K=20
func (s *ELOService) KFactor(gamesPlayed int) float64 {
	for i, threshold := range s.cfg.KThresholds {
		if gamesPlayed < threshold {
			return s.cfg.KValues[i]
		}
	}
	return s.cfg.KValues[len(s.cfg.KThresholds)]
}

// ExpectedScore 팀 평균 ELO에 기반한 기대 승률 계산
func (s *ELOService) ExpectedScore(ownAvg, oppAvg float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (oppAvg-ownAvg)/s.cfg.RatingDivisor))
}

// MarginMultiplier scales a result by how decisive it was:
// margin 0 → 1.0, margin 1 → 1.1, margin 2 or more → 1.2 (capped).
func (s *ELOService) MarginMultiplier(scoreA, scoreB int) float64 {
	margin := math.Abs(float64(scoreA - scoreB))
	return 1 + clamp(margin*s.cfg.MarginStep, 0, s.cfg.MarginCap)
}

// MatchWeight halves the impact of short exhibition games.
// maxScore is the winning side's set or point count.
func (s *ELOService) MatchWeight(scoreType models.ScoreType, scoreTarget, maxScore int, isTournament bool) float64 {
	if isTournament {
		return fullMatchWeight
	}
	if scoreType == models.ScoreTypePoints {
		if scoreTarget > shortPointsMax {
			return fullMatchWeight
		}
		return shortMatchWeight
	}
	if maxScore >= longSetMin {
		return fullMatchWeight
	}
	return shortMatchWeight
}

// SinglesWeight is 0.5 for 1v1 matches when singles weighting is enabled.
func (s *ELOService) SinglesWeight(isSingles bool) float64 {
	if s.cfg.SinglesWeighting && isSingles {
		return singlesWeight
	}
	return 1.0
}

// PlayerWeight boosts players rated below their team average and dampens
// players rated above it.
func (s *ELOService) PlayerWeight(playerRating, teamAvg float64) float64 {
	return clamp(1+(teamAvg-playerRating)/s.cfg.PlayerWeightSpan, s.cfg.PlayerWeightMin, s.cfg.PlayerWeightMax)
}

// EffectiveWeight uses the player weight on a win and its reciprocal on a loss.
func EffectiveWeight(playerWeight float64, won bool) float64 {
	if won {
		return playerWeight
	}
	return 1 / playerWeight
}

// Delta is the rounded rating change of one player. The factors are multiplied
// in the order given; math.Round rounds halves away from zero.
func Delta(k, marginMult, matchWeight, singlesWeight, effectiveWeight, expected, actual float64) float64 {
	return math.Round(k * marginMult * matchWeight * singlesWeight * effectiveWeight * (actual - expected))
}

// EvaluateMatch computes every derived field of a match from the participants'
// pre-match states. Players missing from states start at the baseline with no
// games. The returned record has no Seq, ID or timestamps yet.
func (s *ELOService) EvaluateMatch(sub models.MatchSubmission, states map[string]models.PlayerState) (*models.MatchRecord, error) {
	sub, err := NormalizeSubmission(sub)
	if err != nil {
		return nil, err
	}

	state := func(id string) models.PlayerState {
		if st, ok := states[id]; ok {
			return st
		}
		return models.PlayerState{Rating: s.cfg.StartingELO}
	}
	teamAvg := func(ids []string) float64 {
		sum := 0.0
		for _, id := range ids {
			sum += state(id).Rating
		}
		return sum / float64(len(ids))
	}

	avg1 := teamAvg(sub.Team1IDs)
	avg2 := teamAvg(sub.Team2IDs)
	team1Won := sub.Team1Score > sub.Team2Score

	rec := &models.MatchRecord{
		Team1IDs:         sub.Team1IDs,
		Team2IDs:         sub.Team2IDs,
		Team1Score:       sub.Team1Score,
		Team2Score:       sub.Team2Score,
		ScoreType:        sub.ScoreType,
		ScoreTarget:      sub.ScoreTarget,
		IsTournament:     sub.IsTournament,
		IsSingles:        *sub.IsSingles,
		Granularity:      s.cfg.Granularity,
		Team1Expected:    s.ExpectedScore(avg1, avg2),
		Team2Expected:    s.ExpectedScore(avg2, avg1),
		MarginMultiplier: s.MarginMultiplier(sub.Team1Score, sub.Team2Score),
		MatchWeight:      s.MatchWeight(sub.ScoreType, sub.ScoreTarget, max(sub.Team1Score, sub.Team2Score), sub.IsTournament),
		SinglesWeight:    s.SinglesWeight(*sub.IsSingles),
		Participants:     make([]models.MatchParticipant, 0, len(sub.Team1IDs)+len(sub.Team2IDs)),
	}

	if rec.Granularity == models.GranularityTeam {
		// Event-log style: one unrounded team delta, each member credited half of it.
		rec.Team1Delta = s.cfg.TeamKFactor * (actualScore(team1Won) - rec.Team1Expected)
		rec.Team2Delta = s.cfg.TeamKFactor * (actualScore(!team1Won) - rec.Team2Expected)
	}

	addTeam := func(team int, ids []string, avg, expected float64, won bool) {
		for _, id := range ids {
			st := state(id)
			p := models.MatchParticipant{
				PlayerID:          id,
				Team:              team,
				StartingRating:    st.Rating,
				GamesPlayedBefore: st.GamesPlayed,
			}
			if rec.Granularity == models.GranularityTeam {
				teamDelta := rec.Team1Delta
				if team == 2 {
					teamDelta = rec.Team2Delta
				}
				p.KFactor = s.cfg.TeamKFactor
				p.PlayerWeight = 1
				p.EffectiveWeight = 1
				p.Delta = teamDelta / models.TeamDeltaShares
			} else {
				p.KFactor = s.KFactor(st.GamesPlayed)
				p.PlayerWeight = s.PlayerWeight(st.Rating, avg)
				p.EffectiveWeight = EffectiveWeight(p.PlayerWeight, won)
				p.Delta = Delta(p.KFactor, rec.MarginMultiplier, rec.MatchWeight, rec.SinglesWeight,
					p.EffectiveWeight, expected, actualScore(won))
			}
			p.ResultingRating = p.StartingRating + p.Delta
			rec.Participants = append(rec.Participants, p)
		}
	}
	addTeam(1, sub.Team1IDs, avg1, rec.Team1Expected, team1Won)
	addTeam(2, sub.Team2IDs, avg2, rec.Team2Expected, !team1Won)

	return rec, nil
}

func actualScore(won bool) float64 {
	if won {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
