package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) List() []types.SessionInfo {
	return m.Called().Get(0).([]types.SessionInfo)
}

func (m *mockRegistry) Get(sessionID string) (types.SessionInfo, error) {
	args := m.Called(sessionID)
	return args.Get(0).(types.SessionInfo), args.Error(1)
}

func (m *mockRegistry) History(sessionID string) ([]types.HistoryEntry, error) {
	args := m.Called(sessionID)
	entries, _ := args.Get(0).([]types.HistoryEntry)
	return entries, args.Error(1)
}

func (m *mockRegistry) Terminate(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockRegistry) Count() int    { return m.Called().Int(0) }
func (m *mockRegistry) Capacity() int { return m.Called().Int(0) }

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Available() []shell.Descriptor {
	return m.Called().Get(0).([]shell.Descriptor)
}

func (m *mockCatalog) Optimal() shell.Descriptor {
	return m.Called().Get(0).(shell.Descriptor)
}

func (m *mockCatalog) ClearCache() { m.Called() }

func (m *mockCatalog) ResolveAll(ctx context.Context) []shell.Descriptor {
	return m.Called(ctx).Get(0).([]shell.Descriptor)
}

var (
	bash = shell.Descriptor{Kind: shell.KindBash, Role: shell.RoleBaseline, Path: "/bin/bash", Available: true, Priority: 20}
	zsh  = shell.Descriptor{Kind: shell.KindZsh, Path: "/bin/zsh", Available: true, Priority: 10}
)

func setupRouter(reg Registry, cat Catalog) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandlers(reg, cat, time.Second, nil).Register(router)
	return router
}

func do(router *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealth(t *testing.T) {
	reg := &mockRegistry{}
	reg.On("Count").Return(3)
	reg.On("Capacity").Return(10)

	w, body := do(setupRouter(reg, &mockCatalog{}), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	sessions := body["sessions"].(map[string]interface{})
	assert.Equal(t, float64(3), sessions["active"])
	assert.Equal(t, float64(10), sessions["capacity"])
}

func TestShells(t *testing.T) {
	cat := &mockCatalog{}
	cat.On("Available").Return([]shell.Descriptor{zsh, bash})
	cat.On("Optimal").Return(zsh)
	cat.On("ClearCache").Return()
	withVersion := bash
	withVersion.Version = "5.2.21"
	missing := shell.Descriptor{Kind: shell.KindFish, Available: false}
	cat.On("ResolveAll", mock.Anything).Return([]shell.Descriptor{withVersion, missing})

	router := setupRouter(&mockRegistry{}, cat)

	w, body := do(router, http.MethodGet, "/shells")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])

	w, body = do(router, http.MethodGet, "/shells?versions=true")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
	first := body["shells"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "5.2.21", first["version"])

	w, body = do(router, http.MethodGet, "/shells/optimal")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "zsh", body["kind"])

	w, _ = do(router, http.MethodPost, "/shells/refresh")
	assert.Equal(t, http.StatusOK, w.Code)
	cat.AssertCalled(t, "ClearCache")
}

func TestSessions(t *testing.T) {
	info := types.SessionInfo{ID: "sess_a", ShellKind: "bash", PID: 4242, Active: true, Cols: 80, Rows: 24}
	reg := &mockRegistry{}
	reg.On("List").Return([]types.SessionInfo{info})
	reg.On("Get", "sess_a").Return(info, nil)
	reg.On("Get", "sess_gone").Return(types.SessionInfo{}, errs.SessionNotFound("sess_gone"))
	reg.On("History", "sess_a").Return([]types.HistoryEntry{{Command: "ls", Timestamp: time.Now()}}, nil)
	reg.On("Terminate", mock.Anything, "sess_a").Return(nil)
	reg.On("Terminate", mock.Anything, "sess_stuck").Return(errs.New(errs.CodeTimeout, "terminate session sess_stuck"))

	router := setupRouter(reg, &mockCatalog{})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "list",
			method:     http.MethodGet,
			path:       "/sessions",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, float64(1), body["count"])
			},
		},
		{
			name:       "get",
			method:     http.MethodGet,
			path:       "/sessions/sess_a",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, float64(4242), body["pid"])
			},
		},
		{
			name:       "get unknown",
			method:     http.MethodGet,
			path:       "/sessions/sess_gone",
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, string(errs.CodeSessionNotFound), body["code"])
			},
		},
		{
			name:       "invalid id",
			method:     http.MethodGet,
			path:       "/sessions/bad.id",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "history",
			method:     http.MethodGet,
			path:       "/sessions/sess_a/history",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, float64(1), body["count"])
			},
		},
		{
			name:       "delete",
			method:     http.MethodDelete,
			path:       "/sessions/sess_a",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["success"])
			},
		},
		{
			name:       "delete timeout",
			method:     http.MethodDelete,
			path:       "/sessions/sess_stuck",
			wantStatus: http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(router, tt.method, tt.path)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code errs.Code
		want int
	}{
		{errs.CodeSessionNotFound, http.StatusNotFound},
		{errs.CodeInvalidArgument, http.StatusBadRequest},
		{errs.CodeShellNotAvailable, http.StatusBadRequest},
		{errs.CodeDuplicateSession, http.StatusConflict},
		{errs.CodeCapacityExceeded, http.StatusServiceUnavailable},
		{errs.CodeTimeout, http.StatusGatewayTimeout},
		{errs.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.code), string(tt.code))
	}
}
