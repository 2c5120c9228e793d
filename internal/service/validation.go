package service

import (
	"fmt"
	"strings"

	"github.com/rl-arena/doubles-rating/internal/models"
)

const maxTeamSize = 2

// NormalizeSubmission validates a submission and returns a cleaned copy with
// trimmed ids, a default score type and the singles flag resolved.
func NormalizeSubmission(sub models.MatchSubmission) (models.MatchSubmission, error) {
	out := sub
	out.ID = strings.TrimSpace(sub.ID)

	var err error
	if out.Team1IDs, err = normalizeTeam(1, sub.Team1IDs); err != nil {
		return models.MatchSubmission{}, err
	}
	if out.Team2IDs, err = normalizeTeam(2, sub.Team2IDs); err != nil {
		return models.MatchSubmission{}, err
	}

	seen := make(map[string]int, len(out.Team1IDs)+len(out.Team2IDs))
	for team, ids := range [][]string{out.Team1IDs, out.Team2IDs} {
		for _, id := range ids {
			if prev, ok := seen[id]; ok {
				if prev == team+1 {
					return models.MatchSubmission{}, fmt.Errorf("%w: %q listed twice on team %d", ErrDuplicatePlayer, id, team+1)
				}
				return models.MatchSubmission{}, fmt.Errorf("%w: %q is on both teams", ErrDuplicatePlayer, id)
			}
			seen[id] = team + 1
		}
	}

	if out.ScoreType == "" {
		out.ScoreType = models.ScoreTypeSets
	}
	switch out.ScoreType {
	case models.ScoreTypeSets:
	case models.ScoreTypePoints:
		if out.ScoreTarget <= 0 {
			return models.MatchSubmission{}, fmt.Errorf("%w: points match needs a positive score target", ErrInvalidScore)
		}
	default:
		return models.MatchSubmission{}, fmt.Errorf("%w: unknown score type %q", ErrInvalidScore, out.ScoreType)
	}

	if out.Team1Score < 0 || out.Team2Score < 0 {
		return models.MatchSubmission{}, fmt.Errorf("%w: scores must not be negative (%d-%d)",
			ErrInvalidScore, out.Team1Score, out.Team2Score)
	}
	if out.Team1Score == out.Team2Score {
		return models.MatchSubmission{}, fmt.Errorf("%w (%d-%d)", ErrInvalidMatch, out.Team1Score, out.Team2Score)
	}

	if out.IsSingles == nil {
		singles := len(out.Team1IDs) == 1 && len(out.Team2IDs) == 1
		out.IsSingles = &singles
	}

	return out, nil
}

func normalizeTeam(team int, ids []string) ([]string, error) {
	if len(ids) == 0 || len(ids) > maxTeamSize {
		return nil, fmt.Errorf("%w: team %d has %d players", ErrInvalidTeamSize, team, len(ids))
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.TrimSpace(id)
		if out[i] == "" {
			return nil, fmt.Errorf("%w: team %d has an empty player id", ErrInvalidPlayerID, team)
		}
	}
	return out, nil
}
