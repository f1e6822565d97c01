package service_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/CZERTAINLY/Drydock/internal/service"
)

func TestWebhookReporter(t *testing.T) {
	t.Parallel()

	var mx sync.Mutex
	var received []model.Report
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hooks/drydock", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var report model.Report
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mx.Lock()
		received = append(received, report)
		mx.Unlock()

		switch report.Job {
		case "conflict":
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"detail":"already reported"}`))
		case "crash":
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	t.Cleanup(srv.Close)

	r, err := service.NewWebhookReporter(srv.URL + "/hooks/drydock")
	require.NoError(t, err)

	require.NoError(t, r.Report(t.Context(), sampleReport()))

	conflict := sampleReport()
	conflict.Job = "conflict"
	err = r.Report(t.Context(), conflict)
	require.EqualError(t, err, "status code: 409, detail: already reported")

	crash := sampleReport()
	crash.Job = "crash"
	err = r.Report(t.Context(), crash)
	require.ErrorContains(t, err, "unknown error, status: 500, body: internal error")

	mx.Lock()
	defer mx.Unlock()
	require.Len(t, received, 3)
	require.Equal(t, sampleReport(), received[0])
}

func TestNewWebhookReporter(t *testing.T) {
	t.Parallel()
	for _, given := range []string{"", "ftp://example.com", "http://", "://broken"} {
		_, err := service.NewWebhookReporter(given)
		require.Error(t, err, given)
	}
}
