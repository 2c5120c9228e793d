package models

import "time"

type ScoreType string

const (
	ScoreTypeSets   ScoreType = "sets"
	ScoreTypePoints ScoreType = "points"
)

// Granularity tells the ledger how a record's deltas are credited to players.
type Granularity string

const (
	// GranularityIndividual credits each participant with their own stored delta.
	GranularityIndividual Granularity = "individual"
	// GranularityTeam credits each participant with an equal share of the team delta.
	GranularityTeam Granularity = "team"
)

func (g Granularity) Valid() bool {
	return g == GranularityIndividual || g == GranularityTeam
}

// MatchSubmission is a match result as entered by a caller, before validation.
type MatchSubmission struct {
	ID           string     `json:"id,omitempty"`
	Team1IDs     []string   `json:"team1Ids" binding:"required"`
	Team2IDs     []string   `json:"team2Ids" binding:"required"`
	Team1Score   int        `json:"team1Score"`
	Team2Score   int        `json:"team2Score"`
	ScoreType    ScoreType  `json:"scoreType"`
	ScoreTarget  int        `json:"scoreTarget,omitempty"`
	IsTournament bool       `json:"isTournament"`
	IsSingles    *bool      `json:"isSingles,omitempty"` // nil: derived from team sizes
	PlayedAt     *time.Time `json:"playedAt,omitempty"`
}

// PlayerState is what the engine needs to know about a participant before a match.
type PlayerState struct {
	Rating      float64 `json:"rating"`
	GamesPlayed int     `json:"gamesPlayed"`
}

// MatchParticipant holds the frozen per-player inputs and outputs of one match.
type MatchParticipant struct {
	PlayerID          string  `json:"playerId" db:"player_id"`
	Team              int     `json:"team" db:"team"`
	StartingRating    float64 `json:"startingRating" db:"starting_rating"`
	GamesPlayedBefore int     `json:"gamesPlayedBefore" db:"games_played_before"`
	KFactor           float64 `json:"kFactor" db:"k_factor"`
	PlayerWeight      float64 `json:"playerWeight" db:"player_weight"`
	EffectiveWeight   float64 `json:"effectiveWeight" db:"effective_weight"`
	Delta             float64 `json:"delta" db:"delta"`
	ResultingRating   float64 `json:"resultingRating" db:"resulting_rating"`
}

// MatchRecord is one completed match as appended to the history.
// Records are never modified after they are appended.
type MatchRecord struct {
	Seq              int64              `json:"seq" db:"seq"`
	ID               string             `json:"id" db:"id"`
	Team1IDs         []string           `json:"team1Ids"`
	Team2IDs         []string           `json:"team2Ids"`
	Team1Score       int                `json:"team1Score" db:"team1_score"`
	Team2Score       int                `json:"team2Score" db:"team2_score"`
	ScoreType        ScoreType          `json:"scoreType" db:"score_type"`
	ScoreTarget      int                `json:"scoreTarget" db:"score_target"`
	IsTournament     bool               `json:"isTournament" db:"is_tournament"`
	IsSingles        bool               `json:"isSingles" db:"is_singles"`
	Granularity      Granularity        `json:"granularity" db:"granularity"`
	Team1Expected    float64            `json:"team1Expected" db:"team1_expected"`
	Team2Expected    float64            `json:"team2Expected" db:"team2_expected"`
	MarginMultiplier float64            `json:"marginMultiplier" db:"margin_multiplier"`
	MatchWeight      float64            `json:"matchWeight" db:"match_weight"`
	SinglesWeight    float64            `json:"singlesWeight" db:"singles_weight"`
	Team1Delta       float64            `json:"team1Delta" db:"team1_delta"`
	Team2Delta       float64            `json:"team2Delta" db:"team2_delta"`
	Participants     []MatchParticipant `json:"participants"`
	PlayedAt         time.Time          `json:"playedAt" db:"played_at"`
	CreatedAt        time.Time          `json:"createdAt" db:"created_at"`
}

// WinningTeam returns 1 or 2. Appended records never tie.
func (m *MatchRecord) WinningTeam() int {
	if m.Team1Score > m.Team2Score {
		return 1
	}
	return 2
}

func (m *MatchRecord) TeamIDs(team int) []string {
	if team == 1 {
		return m.Team1IDs
	}
	return m.Team2IDs
}

// Participant looks a player up by id. Membership is an exact id match.
func (m *MatchRecord) Participant(playerID string) (*MatchParticipant, bool) {
	for i := range m.Participants {
		if m.Participants[i].PlayerID == playerID {
			return &m.Participants[i], true
		}
	}
	return nil, false
}

// TeamDeltaShares is the divisor of a team delta in team granularity. Every
// player gets half of the team's delta, whatever the team size.
const TeamDeltaShares = 2

// Credit returns the rating change the ledger applies to playerID for this match
// and whether the player's team won. ok is false when the player did not take part.
func (m *MatchRecord) Credit(playerID string) (delta float64, won bool, ok bool) {
	p, found := m.Participant(playerID)
	if !found {
		return 0, false, false
	}
	won = p.Team == m.WinningTeam()

	if m.Granularity == GranularityTeam {
		teamDelta := m.Team1Delta
		if p.Team == 2 {
			teamDelta = m.Team2Delta
		}
		return teamDelta / TeamDeltaShares, won, true
	}
	return p.Delta, won, true
}

// SimulateRequest evaluates a hypothetical match. Players entries override the
// ratings and games played the ledger would otherwise supply.
type SimulateRequest struct {
	Match   MatchSubmission              `json:"match" binding:"required"`
	Players map[string]PlayerStateInput `json:"players,omitempty"`
}

type PlayerStateInput struct {
	Rating      *float64 `json:"rating,omitempty"`
	GamesPlayed *int     `json:"gamesPlayed,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m MatchRecord) Clone() MatchRecord {
	m.Team1IDs = append([]string(nil), m.Team1IDs...)
	m.Team2IDs = append([]string(nil), m.Team2IDs...)
	m.Participants = append([]MatchParticipant(nil), m.Participants...)
	return m
}
