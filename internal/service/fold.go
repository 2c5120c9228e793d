package service

import "github.com/rl-arena/doubles-rating/internal/models"

// PlayerFold is a player's derived state after replaying some prefix of history.
type PlayerFold struct {
	Rating  float64
	Matches int
	Wins    int
	Losses  int
}

func newFold(baseline float64) PlayerFold {
	return PlayerFold{Rating: baseline}
}

// apply folds one record into f. It is the single place where a match
// changes a player's derived state.
func (f *PlayerFold) apply(rec *models.MatchRecord, playerID string) bool {
	delta, won, ok := rec.Credit(playerID)
	if !ok {
		return false
	}
	f.Rating += delta
	f.Matches++
	if won {
		f.Wins++
	} else {
		f.Losses++
	}
	return true
}

// FoldPlayer replays records in order from the baseline for one player.
func FoldPlayer(records []models.MatchRecord, playerID string, baseline float64) PlayerFold {
	f := newFold(baseline)
	for i := range records {
		f.apply(&records[i], playerID)
	}
	return f
}

// FoldAll replays records once and returns the state of every participant.
func FoldAll(records []models.MatchRecord, baseline float64) map[string]PlayerFold {
	folds := make(map[string]PlayerFold)
	for i := range records {
		rec := &records[i]
		for _, p := range rec.Participants {
			f, ok := folds[p.PlayerID]
			if !ok {
				f = newFold(baseline)
			}
			f.apply(rec, p.PlayerID)
			folds[p.PlayerID] = f
		}
	}
	return folds
}

// DiscoverPlayers returns every distinct player id in records, in order of
// first appearance.
func DiscoverPlayers(records []models.MatchRecord) []string {
	seen := make(map[string]struct{})
	var ids []string
	for i := range records {
		for _, id := range append(append([]string{}, records[i].Team1IDs...), records[i].Team2IDs...) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// Replay folds records from scratch into a summary per participant.
func Replay(records []models.MatchRecord, baseline float64) map[string]models.PlayerSummary {
	out := make(map[string]models.PlayerSummary)
	for id, f := range FoldAll(records, baseline) {
		out[id] = models.PlayerSummary{
			PlayerID:      id,
			Rating:        f.Rating,
			MatchesPlayed: f.Matches,
			Wins:          f.Wins,
			Losses:        f.Losses,
			Known:         true,
		}
	}
	return out
}
