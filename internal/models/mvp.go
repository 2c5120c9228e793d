package models

import "time"

type MVPWindow string

const (
	MVPWindowEvening MVPWindow = "evening"
	MVPWindowMonth   MVPWindow = "month" // rolling 30 days
)

// MVPEligibility classifies a games-played count against both award thresholds.
type MVPEligibility string

const (
	MVPEligibleMonth   MVPEligibility = "month"
	MVPEligibleEvening MVPEligibility = "evening"
	MVPIneligible      MVPEligibility = "ineligible"
)

type MVPResult struct {
	PlayerID      string         `json:"playerId"`
	ELOGain       float64        `json:"eloGain"`
	Wins          int            `json:"wins"`
	GamesPlayed   int            `json:"gamesPlayed"`
	WinRate       float64        `json:"winRate"`
	StandardScore float64        `json:"standardScore"`
	Eligibility   MVPEligibility `json:"eligibility"`
	Eligible      bool           `json:"eligible"` // for the board's window
	CurrentELO    float64        `json:"currentElo"`
}

type MVPBoard struct {
	Window  MVPWindow   `json:"window"`
	From    time.Time   `json:"from"`
	To      time.Time   `json:"to"`
	Results []MVPResult `json:"results"`
	Winner  *MVPResult  `json:"winner,omitempty"`
}
