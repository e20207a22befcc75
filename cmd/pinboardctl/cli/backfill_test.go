package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pinboard/pinboard/internal/backfill"
	jobmetrics "github.com/pinboard/pinboard/internal/jobs"
	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/jobs"
)

type stubBackfiller struct {
	plan      backfill.Plan
	planErr   error
	forward   backfill.Result
	backward  backfill.Result
	runErr    error
	forwards  int
	backwards int
}

func (s *stubBackfiller) Plan(context.Context) (backfill.Plan, error) {
	return s.plan, s.planErr
}

func (s *stubBackfiller) Forward(context.Context) (backfill.Result, error) {
	s.forwards++
	return s.forward, s.runErr
}

func (s *stubBackfiller) Backward(context.Context) (backfill.Result, error) {
	s.backwards++
	return s.backward, s.runErr
}

type stubAudit struct {
	entries []shared.AuditLog
	err     error
}

func (s *stubAudit) Record(_ context.Context, entry shared.AuditLog) error {
	s.entries = append(s.entries, entry)
	return s.err
}

func pendingPlan() backfill.Plan {
	return backfill.Plan{AnonymousUserID: 1, EligibleUsers: 2, UnfiledPins: 3}
}

func answer(yes bool) func(io.Reader, io.Writer, string) (bool, error) {
	return func(io.Reader, io.Writer, string) (bool, error) { return yes, nil }
}

func TestBackfillDryRunJSONPending(t *testing.T) {
	proc := &stubBackfiller{plan: pendingPlan()}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := NewBackfillCLI(proc, nil, nil).Command(context.Background(), BackfillOptions{
		Mode:       BackfillModeDry,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitPending, code)
	require.Empty(t, stderr.String())
	require.Zero(t, proc.forwards)

	var summary BackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, BackfillModeDry, summary.Mode)
	require.NotNil(t, summary.Plan)
	require.Equal(t, 2, summary.Plan.EligibleUsers)
	require.Nil(t, summary.Result)
}

func TestBackfillDryRunNothingToDo(t *testing.T) {
	proc := &stubBackfiller{plan: backfill.Plan{AnonymousUserID: 1, DefaultBoardFound: true, Boards: 1}}
	stdout := new(bytes.Buffer)

	code := NewBackfillCLI(proc, nil, nil).Command(context.Background(), BackfillOptions{Stdout: stdout, Stderr: io.Discard})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "Nothing to do.")
}

func TestBackfillApplyRequiresConfirmation(t *testing.T) {
	proc := &stubBackfiller{plan: pendingPlan()}
	stderr := new(bytes.Buffer)

	code := NewBackfillCLI(proc, nil, nil).Command(context.Background(), BackfillOptions{
		Mode:    BackfillModeApply,
		Stdout:  io.Discard,
		Stderr:  stderr,
		Confirm: answer(false),
	})
	require.Equal(t, 1, code)
	require.Zero(t, proc.forwards)
	require.Contains(t, stderr.String(), "cancelled")
}

func TestBackfillApplyRecordsAuditAndMetrics(t *testing.T) {
	proc := &stubBackfiller{
		plan:    pendingPlan(),
		forward: backfill.Result{BoardID: 9, BoardCreated: true, Members: 2, PinsFiled: 3},
	}
	audit := &stubAudit{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	stdout := new(bytes.Buffer)

	code := NewBackfillCLI(proc, audit, metrics).Command(context.Background(), BackfillOptions{
		Mode:    BackfillModeApply,
		ActorID: 4,
		Stdout:  stdout,
		Stderr:  io.Discard,
		Stdin:   strings.NewReader("YES\n"),
	})
	require.Zero(t, code)
	require.Equal(t, 1, proc.forwards)
	require.Len(t, audit.entries, 1)
	require.Equal(t, "backfill.forward", audit.entries[0].Action)
	require.Equal(t, "9", audit.entries[0].EntityID)
	require.Equal(t, int64(4), audit.entries[0].ActorID)
	require.Contains(t, stdout.String(), "pins filed: 3")
}

func TestBackfillApplySkipsWhenNothingPending(t *testing.T) {
	proc := &stubBackfiller{plan: backfill.Plan{AnonymousUserID: 1, DefaultBoardFound: true}}

	code := NewBackfillCLI(proc, nil, nil).Command(context.Background(), BackfillOptions{
		Mode:    BackfillModeApply,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
		Confirm: answer(true),
	})
	require.Zero(t, code)
	require.Zero(t, proc.forwards)
}

func TestBackfillApplyRepairsMissingGrants(t *testing.T) {
	proc := &stubBackfiller{plan: backfill.Plan{AnonymousUserID: 1, DefaultBoardFound: true, MissingGrants: 1}}
	stdout := new(bytes.Buffer)

	code := NewBackfillCLI(proc, nil, nil).Command(context.Background(), BackfillOptions{
		Mode:      BackfillModeApply,
		AssumeYes: true,
		Stdout:    stdout,
		Stderr:    io.Discard,
	})
	require.Zero(t, code)
	require.Equal(t, 1, proc.forwards)
}

func TestBackfillRollback(t *testing.T) {
	proc := &stubBackfiller{backward: backfill.Result{BoardsDeleted: 2, PermissionsRevoked: 5, PinsUnfiled: 7}}
	audit := &stubAudit{err: errors.New("db down")}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := NewBackfillCLI(proc, audit, nil).Command(context.Background(), BackfillOptions{
		Mode:       BackfillModeRollback,
		JSONOutput: true,
		AssumeYes:  true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code)
	require.Equal(t, 1, proc.backwards)
	require.Contains(t, stderr.String(), "audit log")

	var summary BackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, 2, summary.Result.BoardsDeleted)
	require.Equal(t, int64(7), summary.Result.PinsUnfiled)
}

func TestBackfillFailures(t *testing.T) {
	cli := NewBackfillCLI(&stubBackfiller{planErr: backfill.ErrAnonymousUserNotConfigured}, nil, nil)
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.Command(context.Background(), BackfillOptions{Stdout: io.Discard, Stderr: stderr}))
	require.Contains(t, stderr.String(), "anonymous user id not configured")

	stderr.Reset()
	require.Equal(t, 1, cli.Command(context.Background(), BackfillOptions{Mode: "sideways", Stdout: io.Discard, Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid mode")

	failing := NewBackfillCLI(&stubBackfiller{plan: pendingPlan(), runErr: errors.New("boom")}, nil, nil)
	stderr.Reset()
	require.Equal(t, 1, failing.Command(context.Background(), BackfillOptions{
		Mode: BackfillModeApply, AssumeYes: true, Stdout: io.Discard, Stderr: stderr,
	}))
	require.Contains(t, stderr.String(), "apply failed")
}

func TestDefaultConfirm(t *testing.T) {
	ok, err := defaultConfirm(strings.NewReader("yes\n"), io.Discard, "Go?")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = defaultConfirm(strings.NewReader("no"), io.Discard, "Go?")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskSessionPurge, TriggerArgs{})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskSessionPurge, task.Type())

	_, err = BuildTask(jobs.TaskImageFetch, TriggerArgs{})
	require.Error(t, err)

	_, err = BuildTask("mail:send", TriggerArgs{})
	require.ErrorContains(t, err, "unsupported job")
}
