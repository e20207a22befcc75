package cli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pinboard/pinboard/internal/backfill"
	jobmetrics "github.com/pinboard/pinboard/internal/jobs"
)

func TestPushMetricsAfterBackfill(t *testing.T) {
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	proc := &stubBackfiller{
		plan:    pendingPlan(),
		forward: backfill.Result{BoardID: 1, Members: 2, PinsFiled: 3},
	}
	code := NewBackfillCLI(proc, nil, jobmetrics.NewMetrics(reg)).Command(context.Background(), BackfillOptions{
		Mode:      BackfillModeApply,
		AssumeYes: true,
		Stdout:    io.Discard,
		Stderr:    io.Discard,
	})
	require.Zero(t, code)

	require.NoError(t, PushMetrics(context.Background(), srv.URL, "backfill", reg))
	require.Equal(t, http.MethodPut, method)
	require.Equal(t, "/metrics/job/pinboardctl/command/backfill", path)
	require.Contains(t, body, "pinboard_backfill_rows_total")
}

func TestPushMetricsRequiresURL(t *testing.T) {
	require.Error(t, PushMetrics(context.Background(), "", "backfill", prometheus.NewRegistry()))
}
