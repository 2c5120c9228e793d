package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rl-arena/doubles-rating/internal/models"
	"github.com/rl-arena/doubles-rating/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, cfg models.RatingConfig) (*LedgerService, *repository.MemoryMatchRepository) {
	t.Helper()
	store := repository.NewMemoryMatchRepository()
	ledger := NewLedgerService(store, NewELOService(cfg))
	require.NoError(t, ledger.Load(context.Background()))
	return ledger, store
}

func doubles(a, b, c, d string, s1, s2 int) models.MatchSubmission {
	return models.MatchSubmission{
		Team1IDs:   []string{a, b},
		Team2IDs:   []string{c, d},
		Team1Score: s1,
		Team2Score: s2,
	}
}

// leagueNight is a fixed sequence of matches over a small rotating group.
func leagueNight() []models.MatchSubmission {
	return []models.MatchSubmission{
		doubles("anna", "bo", "cleo", "dan", 6, 4),
		doubles("anna", "cleo", "bo", "dan", 2, 6),
		doubles("anna", "dan", "bo", "cleo", 6, 5),
		{Team1IDs: []string{"eve"}, Team2IDs: []string{"anna"}, Team1Score: 3, Team2Score: 6},
		doubles("eve", "bo", "anna", "dan", 21, 15),
		doubles("cleo", "eve", "anna", "bo", 1, 2),
		doubles("anna", "ann", "bo", "dan", 6, 0),
	}
}

type recordedEvent struct {
	msgType string
	payload interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Broadcast(msgType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{msgType, payload})
}

func TestLedgerService_SubmitAndFold(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	ctx := context.Background()

	rec, err := ledger.Submit(ctx, doubles("a", "b", "c", "d", 2, 0))
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.Seq)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, rec.CreatedAt, rec.PlayedAt)

	assert.Equal(t, 1012.0, ledger.CurrentRating("a"))
	assert.Equal(t, 1012.0, ledger.CurrentRating("b"))
	assert.Equal(t, 988.0, ledger.CurrentRating("c"))
	assert.Equal(t, 988.0, ledger.CurrentRating("d"))
	assert.Equal(t, 1000.0, ledger.CurrentRating("nobody"))

	got, err := ledger.MatchByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Seq, got.Seq)

	_, err = ledger.MatchByID("missing")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestLedgerService_CacheMatchesReplay(t *testing.T) {
	for _, granularity := range []models.Granularity{models.GranularityIndividual, models.GranularityTeam} {
		t.Run(string(granularity), func(t *testing.T) {
			cfg := models.DefaultRatingConfig()
			cfg.Granularity = granularity
			ledger, _ := newTestLedger(t, cfg)

			for i, sub := range leagueNight() {
				_, err := ledger.Submit(context.Background(), sub)
				require.NoError(t, err, "match %d", i)

				replay := FoldAll(ledger.Snapshot(), ledger.Baseline())
				assert.Equal(t, replay, ledger.CachedFolds(), "after match %d", i)
			}

			// "ann" is a prefix of "anna"; the two must never share credit.
			ann := ledger.PlayerSummary("ann", false)
			assert.Equal(t, 1, ann.MatchesPlayed)
			anna := ledger.PlayerSummary("anna", false)
			assert.Equal(t, 7, anna.MatchesPlayed)
		})
	}
}

func TestLedgerService_Deterministic(t *testing.T) {
	run := func() map[string]PlayerFold {
		ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
		for _, sub := range leagueNight() {
			_, err := ledger.Submit(context.Background(), sub)
			require.NoError(t, err)
		}
		return ledger.CachedFolds()
	}
	assert.Equal(t, run(), run())
}

func TestLedgerService_RatingAsOf(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	ctx := context.Background()

	var after []float64
	for _, sub := range leagueNight() {
		_, err := ledger.Submit(ctx, sub)
		require.NoError(t, err)
		after = append(after, ledger.CurrentRating("anna"))
	}

	assert.Equal(t, 1000.0, ledger.RatingAsOf("anna", 0))
	for i, want := range after {
		assert.Equal(t, want, ledger.RatingAsOf("anna", int64(i+1)), "as of %d", i+1)
	}
	assert.Equal(t, after[len(after)-1], ledger.RatingAsOf("anna", 1000))

	// Rating is the baseline plus the sum of credits.
	summary := ledger.PlayerSummary("anna", true)
	sum := ledger.Baseline()
	for _, h := range summary.History {
		sum += h.Delta
		assert.Equal(t, sum, h.RatingAfter)
	}
	assert.Equal(t, summary.Rating, sum)
	assert.Equal(t, summary.Wins+summary.Losses, summary.MatchesPlayed)
}

func TestLedgerService_RejectsInvalidWithoutAppending(t *testing.T) {
	ledger, store := newTestLedger(t, models.DefaultRatingConfig())
	ctx := context.Background()

	_, err := ledger.Submit(ctx, doubles("a", "b", "c", "a", 2, 1))
	assert.ErrorIs(t, err, ErrDuplicatePlayer)

	_, err = ledger.Submit(ctx, doubles("a", "b", "c", "d", 2, 2))
	assert.ErrorIs(t, err, ErrInvalidMatch)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int64(0), ledger.Head())
}

func TestLedgerService_DuplicateID(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	ctx := context.Background()

	sub := doubles("a", "b", "c", "d", 6, 1)
	sub.ID = "final"
	_, err := ledger.Submit(ctx, sub)
	require.NoError(t, err)

	_, err = ledger.Submit(ctx, sub)
	assert.ErrorIs(t, err, ErrMatchIDTaken)
}

func TestLedgerService_PlayedAtAndEvents(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	events := &fakePublisher{}
	ledger.SetEventPublisher(events)
	ledger.now = func() time.Time { return time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) }

	played := time.Date(2026, 2, 27, 19, 30, 0, 0, time.FixedZone("CET", 3600))
	sub := doubles("a", "b", "c", "d", 6, 1)
	sub.PlayedAt = &played

	rec, err := ledger.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, played.UTC(), rec.PlayedAt)
	assert.Equal(t, ledger.now(), rec.CreatedAt)

	require.Len(t, events.events, 1)
	assert.Equal(t, EventMatchRecorded, events.events[0].msgType)
}

// racingStore lets another writer append right before each of the ledger's
// first conflicts attempts.
type racingStore struct {
	*repository.MemoryMatchRepository
	other     *LedgerService
	conflicts int
	appends   int
}

func (s *racingStore) Append(ctx context.Context, rec *models.MatchRecord) error {
	s.appends++
	if s.conflicts > 0 {
		s.conflicts--
		if _, err := s.other.Submit(ctx, doubles("x", "y", "a", "z", 6, 0)); err != nil {
			return err
		}
	}
	return s.MemoryMatchRepository.Append(ctx, rec)
}

func TestLedgerService_AppendConflictCatchesUp(t *testing.T) {
	shared := repository.NewMemoryMatchRepository()
	eloService := NewELOService(models.DefaultRatingConfig())
	other := NewLedgerService(shared, eloService)

	store := &racingStore{MemoryMatchRepository: shared, other: other, conflicts: 1}
	ledger := NewLedgerService(store, eloService)

	rec, err := ledger.Submit(context.Background(), doubles("a", "b", "c", "d", 6, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, store.appends)
	assert.Equal(t, int64(2), rec.Seq)

	// The retried match was evaluated against the other writer's result.
	a, ok := rec.Participant("a")
	require.True(t, ok)
	assert.Equal(t, 1, a.GamesPlayedBefore)
	assert.Less(t, a.StartingRating, 1000.0)

	records, err := shared.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FoldAll(records, ledger.Baseline()), ledger.CachedFolds())
}

func TestLedgerService_AppendConflictGivesUp(t *testing.T) {
	shared := repository.NewMemoryMatchRepository()
	eloService := NewELOService(models.DefaultRatingConfig())
	other := NewLedgerService(shared, eloService)

	store := &racingStore{MemoryMatchRepository: shared, other: other, conflicts: maxAppendAttempts}
	ledger := NewLedgerService(store, eloService)

	_, err := ledger.Submit(context.Background(), doubles("a", "b", "c", "d", 6, 4))
	assert.ErrorIs(t, err, repository.ErrAppendConflict)
	assert.Equal(t, maxAppendAttempts, store.appends)
}

type countingLocker struct {
	acquired, released int
	fail               bool
}

func (l *countingLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	if l.fail {
		return nil, errors.New("lock held elsewhere")
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func TestLedgerService_AppendLocker(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	locker := &countingLocker{}
	ledger.SetAppendLocker(locker)

	_, err := ledger.Submit(context.Background(), doubles("a", "b", "c", "d", 6, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)

	locker.fail = true
	_, err = ledger.Submit(context.Background(), doubles("a", "b", "c", "d", 6, 4))
	assert.Error(t, err)
	assert.Equal(t, int64(1), ledger.Head())
}

func TestLedgerService_LoadReplaysStore(t *testing.T) {
	ledger, store := newTestLedger(t, models.DefaultRatingConfig())
	ctx := context.Background()
	for _, sub := range leagueNight() {
		_, err := ledger.Submit(ctx, sub)
		require.NoError(t, err)
	}

	restarted := NewLedgerService(store, NewELOService(models.DefaultRatingConfig()))
	require.NoError(t, restarted.Load(ctx))
	assert.Equal(t, ledger.CachedFolds(), restarted.CachedFolds())
	assert.Equal(t, ledger.Head(), restarted.Head())
}

func TestLedgerService_Simulate(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	ctx := context.Background()
	_, err := ledger.Submit(ctx, doubles("a", "b", "c", "d", 2, 0))
	require.NoError(t, err)

	rating, games := 800.0, 30
	rec, err := ledger.Simulate(doubles("a", "b", "c", "d", 2, 1), map[string]models.PlayerStateInput{
		"c": {Rating: &rating, GamesPlayed: &games},
	})
	require.NoError(t, err)

	c, ok := rec.Participant("c")
	require.True(t, ok)
	assert.Equal(t, 800.0, c.StartingRating)
	assert.Equal(t, 30, c.GamesPlayedBefore)

	a, ok := rec.Participant("a")
	require.True(t, ok)
	assert.Equal(t, 1012.0, a.StartingRating)
	assert.Equal(t, 1, a.GamesPlayedBefore)

	// Nothing was appended.
	assert.Equal(t, int64(1), ledger.Head())

	bad := -1
	_, err = ledger.Simulate(doubles("a", "b", "c", "d", 2, 1), map[string]models.PlayerStateInput{
		"a": {GamesPlayed: &bad},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLedgerService_Recent(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		sub := doubles("a", "b", "c", "d", 6, i)
		sub.ID = fmt.Sprintf("m%d", i+1)
		_, err := ledger.Submit(ctx, sub)
		require.NoError(t, err)
	}

	page, total := ledger.Recent(1, 2)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "m5", page[0].ID)
	assert.Equal(t, "m4", page[1].ID)

	page, _ = ledger.Recent(3, 2)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].ID)

	assert.Equal(t, []string{"a", "b", "c", "d"}, ledger.PlayerIDs())
}

func TestReplay(t *testing.T) {
	ledger, _ := newTestLedger(t, models.DefaultRatingConfig())
	for _, sub := range leagueNight() {
		_, err := ledger.Submit(context.Background(), sub)
		require.NoError(t, err)
	}

	replay := Replay(ledger.Snapshot(), ledger.Baseline())
	for id, summary := range replay {
		assert.Equal(t, ledger.PlayerSummary(id, false), summary, id)
	}
}

type recordingNotifier struct {
	seqs []int64
}

func (n *recordingNotifier) NotifyAppended(_ context.Context, seq int64) error {
	n.seqs = append(n.seqs, seq)
	return nil
}

func TestLedgerService_SyncPicksUpOtherWriters(t *testing.T) {
	shared := repository.NewMemoryMatchRepository()
	eloService := NewELOService(models.DefaultRatingConfig())
	writer := NewLedgerService(shared, eloService)
	notifier := &recordingNotifier{}
	writer.SetAppendNotifier(notifier)

	reader := NewLedgerService(shared, eloService)
	events := &fakePublisher{}
	reader.SetEventPublisher(events)
	ctx := context.Background()

	for _, sub := range leagueNight()[:3] {
		_, err := writer.Submit(ctx, sub)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 3}, notifier.seqs)
	assert.Equal(t, int64(0), reader.Head())

	n, err := reader.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, writer.CachedFolds(), reader.CachedFolds())
	assert.Len(t, events.events, 3)

	n, err = reader.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedgerService_TeamGranularitySinglesHalfCredit(t *testing.T) {
	cfg := models.DefaultRatingConfig()
	cfg.Granularity = models.GranularityTeam
	ledger, _ := newTestLedger(t, cfg)

	rec, err := ledger.Submit(context.Background(), models.MatchSubmission{
		Team1IDs: []string{"a"}, Team2IDs: []string{"b"}, Team1Score: 2, Team2Score: 0,
	})
	require.NoError(t, err)

	// 32 * (1 - 0.5) = 16 for the team, half of it for the player.
	assert.Equal(t, 16.0, rec.Team1Delta)
	assert.Equal(t, 1008.0, ledger.CurrentRating("a"))
	assert.Equal(t, 992.0, ledger.CurrentRating("b"))
	assert.Equal(t, FoldAll(ledger.Snapshot(), ledger.Baseline()), ledger.CachedFolds())
}
