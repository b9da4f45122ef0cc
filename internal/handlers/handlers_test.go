package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/internal/services"
	"github.com/quillshelf/quillshelf/pkg/models"
)

func testLoggerQuiet() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeAuth stands in for the JWT middleware so handler tests can exercise
// routes without minting real tokens.
func fakeAuth(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("user_tier", "free")
		c.Next()
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestAuthHandler_Token(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := testLoggerQuiet()

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour

	// Session storage is best-effort; a dead Redis must not fail token issuance.
	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	auth := services.NewAuthService(cfg, logger, redisClient)
	handler := NewAuthHandler(auth, logger)

	router := gin.New()
	router.POST("/auth/token", handler.Token)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "valid premium key",
			body:           `{"api_key": "shelf-premium-key"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid key with explicit user id",
			body:           `{"api_key": "shelf-free-key", "user_id": "550e8400-e29b-41d4-a716-446655440000"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown key",
			body:           `{"api_key": "not-a-key"}`,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "INVALID_API_KEY",
		},
		{
			name:           "malformed user id",
			body:           `{"api_key": "shelf-free-key", "user_id": "not-a-uuid"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_USER_ID",
		},
		{
			name:           "missing api key",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "invalid json",
			body:           `{`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w.Body.Bytes()))
				return
			}

			var resp models.AuthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Token)
			assert.True(t, resp.ExpiresAt.After(time.Now()))
		})
	}

	t.Run("tier reflects api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/token",
			strings.NewReader(`{"api_key": "shelf-premium-key"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "premium", resp.UserTier)
	})
}

func TestRecommendationHandler_ParamValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := testLoggerQuiet()

	// Parameter errors short-circuit before any service call, so nil
	// services are safe here.
	handler := NewRecommendationHandler(nil, nil, logger)

	router := gin.New()
	router.GET("/recommendations", fakeAuth(uuid.New()), handler.Get)

	tests := []struct {
		name  string
		query string
	}{
		{"min_rating not a number", "min_rating=high"},
		{"min_rating out of range", "min_rating=11"},
		{"min_rating zero", "min_rating=0"},
		{"unknown seed_mode", "seed_mode=favorites"},
		{"limit zero", "limit=0"},
		{"limit not a number", "limit=ten"},
		{"seed_ids with junk", "seed_ids=1,abc"},
		{"seed_ids negative", "seed_ids=-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/recommendations?"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_PARAMETER", errorCode(t, w.Body.Bytes()))
		})
	}
}

func TestLibraryHandler_BadInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := testLoggerQuiet()

	handler := NewLibraryHandler(nil, nil, logger)

	router := gin.New()
	userID := uuid.New()
	router.GET("/library/:id", fakeAuth(userID), handler.Get)
	router.POST("/library", fakeAuth(userID), handler.Add)

	t.Run("non-numeric entry id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/library/abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_ENTRY_ID", errorCode(t, w.Body.Bytes()))
	})

	t.Run("zero entry id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/library/0", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_ENTRY_ID", errorCode(t, w.Body.Bytes()))
	})

	t.Run("invalid json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/library", strings.NewReader(`{"title":`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_JSON", errorCode(t, w.Body.Bytes()))
	})

	t.Run("missing title fails validation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/library",
			strings.NewReader(`{"authors": "Somebody", "status": "read"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w.Body.Bytes()))
	})

	t.Run("out of range rating fails validation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/library",
			strings.NewReader(`{"title": "Some Book", "status": "read", "rating": 12}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w.Body.Bytes()))
	})
}

func TestPreferenceHandler_BadInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := testLoggerQuiet()

	handler := NewPreferenceHandler(nil, logger)

	router := gin.New()
	router.POST("/preferences", fakeAuth(uuid.New()), handler.Record)

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/preferences", strings.NewReader(`not json`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_JSON", errorCode(t, w.Body.Bytes()))
	})

	t.Run("unknown action", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/preferences",
			strings.NewReader(`{"action": "maybe", "title": "Some Book", "work_key": "OL1W"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w.Body.Bytes()))
	})
}
