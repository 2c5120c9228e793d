package models

import "time"

// StandingsRow is one leaderboard line, derived from the full match history.
type StandingsRow struct {
	Rank          int           `json:"rank"`
	PlayerID      string        `json:"playerId"`
	FinalELO      float64       `json:"finalElo"`
	MatchesPlayed int           `json:"matchesPlayed"`
	Wins          int           `json:"wins"`
	Losses        int           `json:"losses"`
	BestPartner   *PartnerStats `json:"bestPartner,omitempty"`
	RecentResults []string      `json:"recentResults"`
}

type PartnerStats struct {
	PartnerID string  `json:"partnerId"`
	Games     int     `json:"games"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"winRate"`
}

// RatingHistoryEntry is one step of a player's rating fold.
type RatingHistoryEntry struct {
	Seq         int64     `json:"seq"`
	MatchID     string    `json:"matchId"`
	Result      string    `json:"result"` // "W" or "L"
	Delta       float64   `json:"delta"`
	RatingAfter float64   `json:"ratingAfter"`
	PlayedAt    time.Time `json:"playedAt"`
}

// PlayerSummary is a player's derived state at the head of the history.
type PlayerSummary struct {
	PlayerID      string               `json:"playerId"`
	Rating        float64              `json:"rating"`
	MatchesPlayed int                  `json:"matchesPlayed"`
	Wins          int                  `json:"wins"`
	Losses        int                  `json:"losses"`
	Known         bool                 `json:"known"`
	History       []RatingHistoryEntry `json:"history,omitempty"`
}
