package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/rl-arena/doubles-rating/internal/models"
	"github.com/rl-arena/doubles-rating/pkg/database"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLMatchRepository stores the match history in PostgreSQL or SQLite.
type SQLMatchRepository struct {
	db *database.DB
}

func NewSQLMatchRepository(db *database.DB) *SQLMatchRepository {
	return &SQLMatchRepository{db: db}
}

// Migrate 테이블 생성
func (r *SQLMatchRepository) Migrate(ctx context.Context) error {
	timestampType := "TIMESTAMPTZ"
	if r.db.Dialect == database.DialectSQLite {
		timestampType = "TIMESTAMP"
	}

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS match_records (
			seq BIGINT PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			team1_score INTEGER NOT NULL,
			team2_score INTEGER NOT NULL,
			score_type TEXT NOT NULL,
			score_target INTEGER NOT NULL DEFAULT 0,
			is_tournament BOOLEAN NOT NULL,
			is_singles BOOLEAN NOT NULL,
			granularity TEXT NOT NULL,
			team1_expected DOUBLE PRECISION NOT NULL,
			team2_expected DOUBLE PRECISION NOT NULL,
			margin_multiplier DOUBLE PRECISION NOT NULL,
			match_weight DOUBLE PRECISION NOT NULL,
			singles_weight DOUBLE PRECISION NOT NULL,
			team1_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
			team2_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
			played_at %[1]s NOT NULL,
			created_at %[1]s NOT NULL
		)`, timestampType),
		`CREATE TABLE IF NOT EXISTS match_participants (
			match_seq BIGINT NOT NULL REFERENCES match_records(seq),
			position INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			team INTEGER NOT NULL,
			starting_rating DOUBLE PRECISION NOT NULL,
			games_played_before INTEGER NOT NULL,
			k_factor DOUBLE PRECISION NOT NULL,
			player_weight DOUBLE PRECISION NOT NULL,
			effective_weight DOUBLE PRECISION NOT NULL,
			delta DOUBLE PRECISION NOT NULL,
			resulting_rating DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (match_seq, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_participants_player ON match_participants(player_id)`,
	}

	for _, m := range migrations {
		if _, err := r.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// Append 매치 기록 추가 (compare-and-append)
func (r *SQLMatchRepository) Append(ctx context.Context, rec *models.MatchRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var head int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM match_records`).Scan(&head); err != nil {
		return fmt.Errorf("failed to read history head: %w", err)
	}
	if rec.Seq != head+1 {
		return ErrAppendConflict
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO match_records (
			seq, id, team1_score, team2_score, score_type, score_target,
			is_tournament, is_singles, granularity,
			team1_expected, team2_expected, margin_multiplier, match_weight, singles_weight,
			team1_delta, team2_delta, played_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`),
		rec.Seq, rec.ID, rec.Team1Score, rec.Team2Score, string(rec.ScoreType), rec.ScoreTarget,
		rec.IsTournament, rec.IsSingles, string(rec.Granularity),
		rec.Team1Expected, rec.Team2Expected, rec.MarginMultiplier, rec.MatchWeight, rec.SinglesWeight,
		rec.Team1Delta, rec.Team2Delta, rec.PlayedAt.UTC(), rec.CreatedAt.UTC(),
	)
	if err != nil {
		if r.isUniqueViolation(err) {
			return ErrAppendConflict
		}
		return fmt.Errorf("failed to insert match record: %w", err)
	}

	insertParticipant := r.rebind(`
		INSERT INTO match_participants (
			match_seq, position, player_id, team, starting_rating, games_played_before,
			k_factor, player_weight, effective_weight, delta, resulting_rating
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	for i, p := range rec.Participants {
		_, err := tx.ExecContext(ctx, insertParticipant,
			rec.Seq, i, p.PlayerID, p.Team, p.StartingRating, p.GamesPlayedBefore,
			p.KFactor, p.PlayerWeight, p.EffectiveWeight, p.Delta, p.ResultingRating,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant %s: %w", p.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if r.isUniqueViolation(err) {
			return ErrAppendConflict
		}
		return fmt.Errorf("failed to commit match record: %w", err)
	}
	return nil
}

func (r *SQLMatchRepository) List(ctx context.Context) ([]models.MatchRecord, error) {
	return r.ListSince(ctx, 0)
}

// ListSince 특정 시퀀스 이후의 매치 기록 조회
func (r *SQLMatchRepository) ListSince(ctx context.Context, afterSeq int64) ([]models.MatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT seq, id, team1_score, team2_score, score_type, score_target,
		       is_tournament, is_singles, granularity,
		       team1_expected, team2_expected, margin_multiplier, match_weight, singles_weight,
		       team1_delta, team2_delta, played_at, created_at
		FROM match_records
		WHERE seq > $1
		ORDER BY seq
	`), afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query match records: %w", err)
	}
	defer rows.Close()

	var records []models.MatchRecord
	index := make(map[int64]int)
	for rows.Next() {
		var rec models.MatchRecord
		var scoreType, granularity string
		err := rows.Scan(
			&rec.Seq, &rec.ID, &rec.Team1Score, &rec.Team2Score, &scoreType, &rec.ScoreTarget,
			&rec.IsTournament, &rec.IsSingles, &granularity,
			&rec.Team1Expected, &rec.Team2Expected, &rec.MarginMultiplier, &rec.MatchWeight, &rec.SinglesWeight,
			&rec.Team1Delta, &rec.Team2Delta, &rec.PlayedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match record: %w", err)
		}
		rec.ScoreType = models.ScoreType(scoreType)
		rec.Granularity = models.Granularity(granularity)
		rec.PlayedAt = rec.PlayedAt.UTC()
		rec.CreatedAt = rec.CreatedAt.UTC()
		index[rec.Seq] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate match records: %w", err)
	}
	rows.Close()
	if len(records) == 0 {
		return nil, nil
	}

	if err := r.loadParticipants(ctx, afterSeq, records, index); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *SQLMatchRepository) loadParticipants(ctx context.Context, afterSeq int64, records []models.MatchRecord, index map[int64]int) error {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT match_seq, player_id, team, starting_rating, games_played_before,
		       k_factor, player_weight, effective_weight, delta, resulting_rating
		FROM match_participants
		WHERE match_seq > $1
		ORDER BY match_seq, position
	`), afterSeq)
	if err != nil {
		return fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var p models.MatchParticipant
		err := rows.Scan(
			&seq, &p.PlayerID, &p.Team, &p.StartingRating, &p.GamesPlayedBefore,
			&p.KFactor, &p.PlayerWeight, &p.EffectiveWeight, &p.Delta, &p.ResultingRating,
		)
		if err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		i, ok := index[seq]
		if !ok {
			// appended after the records query ran; picked up next time
			continue
		}
		rec := &records[i]
		rec.Participants = append(rec.Participants, p)
		if p.Team == 1 {
			rec.Team1IDs = append(rec.Team1IDs, p.PlayerID)
		} else {
			rec.Team2IDs = append(rec.Team2IDs, p.PlayerID)
		}
	}
	return rows.Err()
}

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders for drivers that only understand ?.
// Every query here lists its placeholders in argument order.
func (r *SQLMatchRepository) rebind(query string) string {
	if r.db.Dialect == database.DialectSQLite {
		return placeholderPattern.ReplaceAllString(query, "?")
	}
	return query
}

func (r *SQLMatchRepository) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
