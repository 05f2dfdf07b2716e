package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"cakeday/birthday"
	"cakeday/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticSource birthday.Status

func (s staticSource) Snapshot() birthday.Status { return birthday.Status(s) }

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	r := NewRouter(staticSource{}, logging.Discard(), nil)
	w, body := get(t, r, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["status"])
}

func TestStatusBeforeFirstPass(t *testing.T) {
	t.Parallel()

	r := NewRouter(staticSource{}, logging.Discard(), nil)
	w, body := get(t, r, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, body["running"])
	require.EqualValues(t, 0, body["passes"])
	require.NotContains(t, body, "last_pass")
	require.NotContains(t, body, "next_run")
}

func TestStatusReportsLastPass(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 9, 12, 20, 0, 0, time.UTC)
	source := staticSource{
		Passes:    4,
		Skipped:   1,
		LastError: "announcement channel unavailable",
		NextRun:   time.Date(2024, time.March, 9, 13, 0, 0, 0, time.UTC),
		LastPass: birthday.PassReport{
			ID:       "01HRN8ZQ5X6M4Y3B2C1D0E9F8G",
			Trigger:  "schedule",
			Records:  12,
			Groups:   2,
			Announce: birthday.AnnounceReport{Checked: 12, Wished: 1},
			Sweep:    birthday.SweepReport{Holders: 2, Revoked: 1},
		},
	}

	r := NewRouter(source, logging.Discard(), func() time.Time { return now })
	w, body := get(t, r, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 4, body["passes"])
	require.EqualValues(t, 1, body["skipped"])
	require.Equal(t, "announcement channel unavailable", body["last_error"])
	require.Equal(t, "2024-03-09T13:00:00Z", body["next_run"])
	require.Equal(t, "40 minutes from now", body["next_run_human"])

	last := body["last_pass"].(map[string]any)
	require.Equal(t, "schedule", last["trigger"])
	require.EqualValues(t, 12, last["records"])
	require.EqualValues(t, 1, last["announce"].(map[string]any)["wished"])
	require.EqualValues(t, 1, last["sweep"].(map[string]any)["revoked"])
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	r := NewRouter(staticSource{}, logging.Discard(), nil)
	w, _ := get(t, r, "/birthdays")
	require.Equal(t, http.StatusNotFound, w.Code)
}
