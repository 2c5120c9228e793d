package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rl-arena/doubles-rating/internal/models"
	"github.com/rl-arena/doubles-rating/internal/repository"
	"github.com/rl-arena/doubles-rating/pkg/logger"
)

const maxAppendAttempts = 3

// Event types published to the websocket hub.
const (
	EventMatchRecorded    = "match_recorded"
	EventStandingsUpdated = "standings_updated"
)

// AppendLocker serializes appends across server instances.
type AppendLocker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

type EventPublisher interface {
	Broadcast(msgType string, payload interface{})
}

// AppendObserver hears about every batch of records the ledger takes in,
// whether appended here or picked up from other writers.
type AppendObserver interface {
	MatchesAppended(n int)
}

// AppendNotifier tells other server instances that the history grew.
type AppendNotifier interface {
	NotifyAppended(ctx context.Context, seq int64) error
}

// LedgerService owns the append-only match history and derives ratings from it.
//
// A player's rating is never stored: it is the baseline plus the credits of
// every match the player took part in, in append order. The per-player fold
// cache is updated on each append and always equals a full replay.
type LedgerService struct {
	store    repository.MatchStore
	elo      *ELOService
	locker   AppendLocker
	events   EventPublisher
	notifier AppendNotifier
	observer AppendObserver
	now      func() time.Time

	writeMu sync.Mutex // one append at a time in this process

	mu      sync.RWMutex
	records []models.MatchRecord
	byID    map[string]int
	folds   map[string]PlayerFold
}

func NewLedgerService(store repository.MatchStore, elo *ELOService) *LedgerService {
	return &LedgerService{
		store: store,
		elo:   elo,
		now:   time.Now,
		byID:  make(map[string]int),
		folds: make(map[string]PlayerFold),
	}
}

// SetAppendLocker enables cross-process append serialization.
func (s *LedgerService) SetAppendLocker(locker AppendLocker) {
	s.locker = locker
}

func (s *LedgerService) SetEventPublisher(events EventPublisher) {
	s.events = events
}

func (s *LedgerService) SetAppendNotifier(notifier AppendNotifier) {
	s.notifier = notifier
}

func (s *LedgerService) SetAppendObserver(observer AppendObserver) {
	s.observer = observer
}

func (s *LedgerService) Baseline() float64 {
	return s.elo.Config().StartingELO
}

// Load replaces the in-memory history with the store's contents.
func (s *LedgerService) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load match history: %w", err)
	}

	s.mu.Lock()
	s.records = nil
	s.byID = make(map[string]int)
	s.folds = make(map[string]PlayerFold)
	s.mu.Unlock()

	for i := range records {
		if err := s.apply(records[i]); err != nil {
			return err
		}
	}

	s.mu.RLock()
	logger.Info("Match history loaded", "matches", len(s.records), "players", len(s.folds))
	s.mu.RUnlock()
	return nil
}

// Submit validates a match, evaluates it against the ratings at the head of the
// history and appends it. Validation errors are returned before anything is
// written.
func (s *LedgerService) Submit(ctx context.Context, sub models.MatchSubmission) (*models.MatchRecord, error) {
	norm, err := NormalizeSubmission(sub)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire append lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release append lock", "error", err)
			}
		}()
	}

	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		newer, err := s.catchUp(ctx)
		if err != nil {
			return nil, err
		}
		s.publish(newer)

		rec, err := s.prepare(norm)
		if err != nil {
			return nil, err
		}

		err = s.store.Append(ctx, rec)
		if errors.Is(err, repository.ErrAppendConflict) {
			logger.Warn("Append conflict, catching up with history",
				"seq", rec.Seq,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to append match: %w", err)
		}

		if err := s.apply(*rec); err != nil {
			return nil, err
		}

		logger.Info("Match recorded",
			"matchId", rec.ID,
			"seq", rec.Seq,
			"team1", rec.Team1IDs,
			"team2", rec.Team2IDs,
			"score", fmt.Sprintf("%d-%d", rec.Team1Score, rec.Team2Score),
		)
		s.publish([]models.MatchRecord{*rec})
		if s.notifier != nil {
			if err := s.notifier.NotifyAppended(context.WithoutCancel(ctx), rec.Seq); err != nil {
				logger.Warn("Failed to notify other instances", "seq", rec.Seq, "error", err)
			}
		}

		out := rec.Clone()
		return &out, nil
	}

	return nil, fmt.Errorf("failed to append match after %d attempts: %w", maxAppendAttempts, repository.ErrAppendConflict)
}

// Simulate evaluates a hypothetical match without appending it. Entries in
// overrides replace the rating or games played the history would supply.
func (s *LedgerService) Simulate(sub models.MatchSubmission, overrides map[string]models.PlayerStateInput) (*models.MatchRecord, error) {
	norm, err := NormalizeSubmission(sub)
	if err != nil {
		return nil, err
	}

	states := s.states(norm)
	for id, o := range overrides {
		st, ok := states[id]
		if !ok {
			continue
		}
		if o.Rating != nil {
			st.Rating = *o.Rating
		}
		if o.GamesPlayed != nil {
			if *o.GamesPlayed < 0 {
				return nil, fmt.Errorf("%w: games played for %q must not be negative", ErrInvalidInput, id)
			}
			st.GamesPlayed = *o.GamesPlayed
		}
		states[id] = st
	}

	return s.elo.EvaluateMatch(norm, states)
}

// prepare builds the record that would be appended at the current head.
func (s *LedgerService) prepare(norm models.MatchSubmission) (*models.MatchRecord, error) {
	s.mu.RLock()
	head := int64(len(s.records))
	_, taken := s.byID[norm.ID]
	s.mu.RUnlock()

	if norm.ID != "" && taken {
		return nil, fmt.Errorf("%w: %s", ErrMatchIDTaken, norm.ID)
	}

	rec, err := s.elo.EvaluateMatch(norm, s.states(norm))
	if err != nil {
		return nil, err
	}

	rec.Seq = head + 1
	rec.ID = norm.ID
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = s.now().UTC()
	rec.PlayedAt = rec.CreatedAt
	if norm.PlayedAt != nil {
		rec.PlayedAt = norm.PlayedAt.UTC()
	}
	return rec, nil
}

// states captures the participants' folded ratings and games played.
func (s *LedgerService) states(norm models.MatchSubmission) map[string]models.PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make(map[string]models.PlayerState, len(norm.Team1IDs)+len(norm.Team2IDs))
	for _, ids := range [][]string{norm.Team1IDs, norm.Team2IDs} {
		for _, id := range ids {
			f, ok := s.folds[id]
			if !ok {
				f = newFold(s.Baseline())
			}
			states[id] = models.PlayerState{Rating: f.Rating, GamesPlayed: f.Matches}
		}
	}
	return states
}

// Sync applies whatever other instances appended since the last read and
// returns how many records it picked up.
func (s *LedgerService) Sync(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	newer, err := s.catchUp(ctx)
	if err != nil {
		return 0, err
	}
	s.publish(newer)
	return len(newer), nil
}

// catchUp applies records other writers appended to the store.
func (s *LedgerService) catchUp(ctx context.Context) ([]models.MatchRecord, error) {
	newer, err := s.store.ListSince(ctx, s.Head())
	if err != nil {
		return nil, fmt.Errorf("failed to read new matches: %w", err)
	}
	for i := range newer {
		if err := s.apply(newer[i]); err != nil {
			return nil, err
		}
	}
	if len(newer) > 0 {
		logger.Info("Caught up with match history", "records", len(newer), "head", s.Head())
	}
	return newer, nil
}

func (s *LedgerService) publish(records []models.MatchRecord) {
	if len(records) == 0 {
		return
	}
	if s.events != nil {
		for i := range records {
			rec := records[i].Clone()
			s.events.Broadcast(EventMatchRecorded, &rec)
		}
	}
	if s.observer != nil {
		s.observer.MatchesAppended(len(records))
	}
}

func (s *LedgerService) apply(rec models.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want := int64(len(s.records)) + 1; rec.Seq != want {
		return fmt.Errorf("match history gap: got seq %d, want %d", rec.Seq, want)
	}

	rec = rec.Clone()
	s.records = append(s.records, rec)
	s.byID[rec.ID] = len(s.records) - 1

	for _, p := range rec.Participants {
		f, ok := s.folds[p.PlayerID]
		if !ok {
			f = newFold(s.Baseline())
		}
		f.apply(&rec, p.PlayerID)
		s.folds[p.PlayerID] = f
	}
	return nil
}

// Head is the number of records in the history.
func (s *LedgerService) Head() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records))
}

// Snapshot returns the history as of now. Records are immutable, so readers
// may use it concurrently with further appends.
func (s *LedgerService) Snapshot() []models.MatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[:len(s.records):len(s.records)]
}

// CurrentRating returns the player's rating at the head of the history, or the
// baseline for a player who has never played.
func (s *LedgerService) CurrentRating(playerID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.folds[playerID]; ok {
		return f.Rating
	}
	return s.Baseline()
}

// RatingAsOf folds the first upto records from scratch.
func (s *LedgerService) RatingAsOf(playerID string, upto int64) float64 {
	snap := s.Snapshot()
	if upto < 0 {
		upto = 0
	}
	if upto > int64(len(snap)) {
		upto = int64(len(snap))
	}
	return FoldPlayer(snap[:upto], playerID, s.Baseline()).Rating
}

// CachedFolds returns a copy of the incremental per-player cache.
func (s *LedgerService) CachedFolds() map[string]PlayerFold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]PlayerFold, len(s.folds))
	for id, f := range s.folds {
		out[id] = f
	}
	return out
}

// PlayerSummary 플레이어 레이팅 요약 및 히스토리
func (s *LedgerService) PlayerSummary(playerID string, withHistory bool) models.PlayerSummary {
	snap := s.Snapshot()
	summary := models.PlayerSummary{
		PlayerID: playerID,
		Rating:   s.Baseline(),
	}

	f := newFold(s.Baseline())
	for i := range snap {
		rec := &snap[i]
		delta, won, ok := rec.Credit(playerID)
		if !ok {
			continue
		}
		f.apply(rec, playerID)
		if withHistory {
			result := "L"
			if won {
				result = "W"
			}
			summary.History = append(summary.History, models.RatingHistoryEntry{
				Seq:         rec.Seq,
				MatchID:     rec.ID,
				Result:      result,
				Delta:       delta,
				RatingAfter: f.Rating,
				PlayedAt:    rec.PlayedAt,
			})
		}
	}

	summary.Rating = f.Rating
	summary.MatchesPlayed = f.Matches
	summary.Wins = f.Wins
	summary.Losses = f.Losses
	summary.Known = f.Matches > 0
	return summary
}

// MatchByID 매치 조회
func (s *LedgerService) MatchByID(id string) (*models.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	rec := s.records[i].Clone()
	return &rec, nil
}

// Recent returns matches newest first.
func (s *LedgerService) Recent(page, pageSize int) ([]models.MatchRecord, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	snap := s.Snapshot()
	total := len(snap)
	out := make([]models.MatchRecord, 0, pageSize)
	for i := total - 1 - (page-1)*pageSize; i >= 0 && len(out) < pageSize; i-- {
		out = append(out, snap[i])
	}
	return out, total
}

// PlayerIDs returns every player seen so far, sorted.
func (s *LedgerService) PlayerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.folds))
	for id := range s.folds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
