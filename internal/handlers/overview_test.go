package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/workers"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	err       error
	enableReq *workers.EnableRequest
	update    *workers.ConfigUpdate
	calls     []string
	enqueued  bool
}

func (f *fakeAdmin) status(userID uuid.UUID, enabled bool) *workers.WorkerStatus {
	return &workers.WorkerStatus{UserID: userID, Enabled: enabled, CooldownPeriodSeconds: 900, ObservedKinds: models.AllEntityKinds}
}

func (f *fakeAdmin) Enable(ctx context.Context, userID uuid.UUID, req workers.EnableRequest) (*workers.WorkerStatus, error) {
	f.calls = append(f.calls, "enable")
	f.enableReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return f.status(userID, true), nil
}

func (f *fakeAdmin) Disable(ctx context.Context, userID uuid.UUID) (*workers.WorkerStatus, error) {
	f.calls = append(f.calls, "disable")
	if f.err != nil {
		return nil, f.err
	}
	return f.status(userID, false), nil
}

func (f *fakeAdmin) UpdateConfig(ctx context.Context, userID uuid.UUID, update workers.ConfigUpdate) (*workers.WorkerStatus, error) {
	f.calls = append(f.calls, "config")
	f.update = &update
	if f.err != nil {
		return nil, f.err
	}
	return f.status(userID, true), nil
}

func (f *fakeAdmin) RunNow(ctx context.Context, userID uuid.UUID) (*workers.RunNowResult, error) {
	f.calls = append(f.calls, "run-now")
	if f.err != nil {
		return nil, f.err
	}
	return &workers.RunNowResult{Enqueued: f.enqueued}, nil
}

func (f *fakeAdmin) Status(ctx context.Context, userID uuid.UUID) (*workers.WorkerStatus, error) {
	f.calls = append(f.calls, "status")
	if f.err != nil {
		return nil, f.err
	}
	return f.status(userID, true), nil
}

func newOverviewRouter(admin OverviewAdminService, runNowLimit func(http.Handler) http.Handler) *mux.Router {
	r := mux.NewRouter()
	NewOverviewHandler(admin, nil).RegisterRoutes(r.PathPrefix("/api/v1/overview").Subrouter(), runNowLimit)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func serve(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestOverviewHandler_Routes(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	base := "/api/v1/overview/users/" + userID.String()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCall   string
	}{
		{name: "status", method: "GET", path: base + "/status", wantStatus: http.StatusOK, wantCall: "status"},
		{name: "enable", method: "POST", path: base + "/enable", body: `{"cooldown_period_seconds":600}`, wantStatus: http.StatusOK, wantCall: "enable"},
		{name: "enable without body", method: "POST", path: base + "/enable", wantStatus: http.StatusOK, wantCall: "enable"},
		{name: "disable", method: "POST", path: base + "/disable", wantStatus: http.StatusOK, wantCall: "disable"},
		{name: "config", method: "PATCH", path: base + "/config", body: `{"enabled":true}`, wantStatus: http.StatusOK, wantCall: "config"},
		{name: "run now", method: "POST", path: base + "/run-now", wantStatus: http.StatusAccepted, wantCall: "run-now"},
		{name: "bad user id", method: "GET", path: "/api/v1/overview/users/not-a-uuid/status", wantStatus: http.StatusBadRequest},
		{name: "unknown field", method: "POST", path: base + "/enable", body: `{"cooldown":600}`, wantStatus: http.StatusBadRequest},
		{name: "wrong method", method: "GET", path: base + "/run-now", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			admin := &fakeAdmin{enqueued: true}
			status, _ := serve(t, newOverviewRouter(admin, nil), tt.method, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, status)
			if tt.wantCall == "" {
				assert.Empty(t, admin.calls)
				return
			}
			assert.Equal(t, []string{tt.wantCall}, admin.calls)
		})
	}
}

func TestOverviewHandler_EnablePassesRequest(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	path := "/api/v1/overview/users/" + uuid.NewString() + "/enable"
	status, env := serve(t, newOverviewRouter(admin, nil), "POST", path, `{"cooldown_period_seconds":600,"observed_kinds":["deals"]}`)

	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, admin.enableReq)
	assert.Equal(t, 600, admin.enableReq.CooldownSeconds)
	assert.Equal(t, []models.EntityKind{models.EntityKindDeals}, admin.enableReq.ObservedKinds)

	var ws workers.WorkerStatus
	require.NoError(t, json.Unmarshal(env.Data, &ws))
	assert.True(t, ws.Enabled)
}

func TestOverviewHandler_ConfigPartialUpdate(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	path := "/api/v1/overview/users/" + uuid.NewString() + "/config"
	status, _ := serve(t, newOverviewRouter(admin, nil), "PATCH", path, `{"cooldown_period_seconds":120}`)

	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, admin.update)
	require.NotNil(t, admin.update.CooldownSeconds)
	assert.Equal(t, 120, *admin.update.CooldownSeconds)
	assert.Nil(t, admin.update.Enabled, "omitted attributes stay nil")
	assert.Nil(t, admin.update.ObservedKinds)
}

func TestOverviewHandler_RunNowReportsDedup(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{enqueued: false}
	path := "/api/v1/overview/users/" + uuid.NewString() + "/run-now"
	status, env := serve(t, newOverviewRouter(admin, nil), "POST", path, "")

	require.Equal(t, http.StatusAccepted, status)
	var res workers.RunNowResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.Enqueued)
}

func TestOverviewHandler_RunNowLimitWrapsOnlyRunNow(t *testing.T) {
	t.Parallel()

	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	admin := &fakeAdmin{}
	r := newOverviewRouter(admin, deny)
	base := "/api/v1/overview/users/" + uuid.NewString()

	status, _ := serve(t, r, "POST", base+"/run-now", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	status, _ = serve(t, r, "GET", base+"/status", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"status"}, admin.calls)
}

func TestOverviewHandler_ServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{name: "invalid config", err: fmt.Errorf("%w: ObservedKinds[0]: unknown entity kind \"leads\"", workers.ErrInvalidConfig), wantStatus: http.StatusBadRequest, wantType: "validation_error"},
		{name: "unknown user", err: fmt.Errorf("failed to load worker state: %w", database.ErrNotFound), wantStatus: http.StatusNotFound, wantType: "not_found"},
		{name: "store down", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError, wantType: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			admin := &fakeAdmin{err: tt.err}
			path := "/api/v1/overview/users/" + uuid.NewString() + "/enable"
			status, env := serve(t, newOverviewRouter(admin, nil), "POST", path, `{}`)

			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantType, env.Error)
		})
	}
}
