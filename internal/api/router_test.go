package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/models"
	"github.com/rl-arena/doubles-rating/internal/repository"
	"github.com/rl-arena/doubles-rating/internal/service"
	"github.com/rl-arena/doubles-rating/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T, limit int) (*gin.Engine, *service.LedgerService) {
	t.Helper()
	ledger := service.NewLedgerService(repository.NewMemoryMatchRepository(), service.NewELOService(models.DefaultRatingConfig()))
	require.NoError(t, ledger.Load(context.Background()))

	router := SetupRouter(Dependencies{
		Ledger:         ledger,
		Standings:      service.NewStandingsService(ledger),
		MVP:            service.NewMVPService(ledger),
		SubmitLimiter:  ratelimit.NewMemoryLimiter(limit, time.Minute),
		SubmitLimit:    limit,
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	return router, ledger
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitMatch(t *testing.T) {
	router, _ := setupTestRouter(t, 10)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{
			name: "valid doubles",
			body: map[string]interface{}{
				"id": "m1", "team1Ids": []string{"a", "b"}, "team2Ids": []string{"c", "d"},
				"team1Score": 2, "team2Score": 0,
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "duplicate id",
			body: map[string]interface{}{
				"id": "m1", "team1Ids": []string{"a", "b"}, "team2Ids": []string{"c", "d"},
				"team1Score": 2, "team2Score": 0,
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "tie",
			body: map[string]interface{}{
				"team1Ids": []string{"a", "b"}, "team2Ids": []string{"c", "d"},
				"team1Score": 3, "team2Score": 3,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "player on both teams",
			body: map[string]interface{}{
				"team1Ids": []string{"a", "b"}, "team2Ids": []string{"b", "d"},
				"team1Score": 3, "team2Score": 1,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing teams",
			body:       map[string]interface{}{"team1Score": 3},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/v1/matches", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestSubmitMatch_ResponseAndReads(t *testing.T) {
	router, _ := setupTestRouter(t, 10)

	w := do(router, http.MethodPost, "/api/v1/matches", map[string]interface{}{
		"id": "final", "team1Ids": []string{"a", "b"}, "team2Ids": []string{"c", "d"},
		"team1Score": 2, "team2Score": 0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rec models.MatchRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, int64(1), rec.Seq)
	require.Len(t, rec.Participants, 4)
	assert.Equal(t, 1012.0, rec.Participants[0].ResultingRating)

	w = do(router, http.MethodGet, "/api/v1/matches/final", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/matches/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/v1/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Matches []models.MatchRecord `json:"matches"`
		Total   int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	w = do(router, http.MethodGet, "/api/v1/players/c", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var player models.PlayerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &player))
	assert.Equal(t, 988.0, player.Rating)
	assert.True(t, player.Known)

	w = do(router, http.MethodGet, "/api/v1/players/newcomer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &player))
	assert.Equal(t, 1000.0, player.Rating)
	assert.False(t, player.Known)

	w = do(router, http.MethodGet, "/api/v1/players/a/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"matchId":"final"`)
}

func TestGetStandings(t *testing.T) {
	router, ledger := setupTestRouter(t, 10)
	_, err := ledger.Submit(context.Background(), models.MatchSubmission{
		Team1IDs: []string{"b", "a"}, Team2IDs: []string{"c", "d"}, Team1Score: 6, Team2Score: 2,
	})
	require.NoError(t, err)

	w := do(router, http.MethodGet, "/api/v1/standings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Standings []models.StandingsRow `json:"standings"`
		Total     int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.Total)
	assert.Equal(t, "a", resp.Standings[0].PlayerID)
	assert.Equal(t, 1, resp.Standings[0].Rank)
	assert.Equal(t, "d", resp.Standings[3].PlayerID)
}

func TestSimulate(t *testing.T) {
	router, ledger := setupTestRouter(t, 10)

	w := do(router, http.MethodPost, "/api/v1/simulate", map[string]interface{}{
		"match": map[string]interface{}{
			"team1Ids": []string{"a", "b"}, "team2Ids": []string{"c", "d"},
			"team1Score": 2, "team2Score": 1, "isTournament": true,
		},
		"players": map[string]interface{}{
			"a": map[string]interface{}{"rating": 800, "gamesPlayed": 30},
			"b": map[string]interface{}{"rating": 800, "gamesPlayed": 30},
			"c": map[string]interface{}{"rating": 1200, "gamesPlayed": 30},
			"d": map[string]interface{}{"rating": 1200, "gamesPlayed": 30},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec models.MatchRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	// 20 * 1.1 * 1.0 * (1 - 0.0444) = 21.02
	assert.Equal(t, 21.0, rec.Participants[0].Delta)
	assert.Equal(t, int64(0), ledger.Head())
}

func TestMVPEndpoints(t *testing.T) {
	router, ledger := setupTestRouter(t, 10)
	played := time.Date(2026, 6, 5, 19, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := played.Add(time.Duration(i) * time.Hour)
		_, err := ledger.Submit(context.Background(), models.MatchSubmission{
			Team1IDs: []string{"a", "b"}, Team2IDs: []string{"c", "d"},
			Team1Score: 6, Team2Score: i, PlayedAt: &at,
		})
		require.NoError(t, err)
	}

	w := do(router, http.MethodGet, "/api/v1/mvp/evening?date=2026-06-05", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board models.MVPBoard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	assert.Len(t, board.Results, 4)
	require.NotNil(t, board.Winner)
	assert.Equal(t, "a", board.Winner.PlayerID)

	w = do(router, http.MethodGet, "/api/v1/mvp/month?at=2026-06-10T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var month models.MVPBoard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &month))
	assert.Equal(t, models.MVPWindowMonth, month.Window)
	assert.Len(t, month.Results, 4)
	assert.Nil(t, month.Winner, "three games are not enough for the month")
	assert.NotContains(t, w.Body.String(), `"winner"`)

	w = do(router, http.MethodGet, "/api/v1/mvp/evening?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRateLimit(t *testing.T) {
	router, _ := setupTestRouter(t, 2)
	body := map[string]interface{}{
		"team1Ids": []string{"a"}, "team2Ids": []string{"b"}, "team1Score": 1, "team2Score": 0,
	}

	assert.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/v1/matches", body).Code)
	assert.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/v1/matches", body).Code)

	w := do(router, http.MethodPost, "/api/v1/matches", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/standings", nil).Code)
}

func TestHealthAndCORS(t *testing.T) {
	router, _ := setupTestRouter(t, 10)

	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/matches", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Less(t, w.Code, 300)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://elsewhere.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	router, _ := setupTestRouter(t, 10)

	w := do(router, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
