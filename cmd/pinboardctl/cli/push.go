package cli

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway grouping job for ctl runs.
const PushJob = "pinboardctl"

// PushMetrics sends everything gathered by g to the Pushgateway at url,
// replacing the previous push for the same job and command.
func PushMetrics(ctx context.Context, url, command string, g prometheus.Gatherer) error {
	if url == "" {
		return errors.New("cli: pushgateway url required")
	}
	return push.New(url, PushJob).
		Grouping("command", command).
		Gatherer(g).
		PushContext(ctx)
}
