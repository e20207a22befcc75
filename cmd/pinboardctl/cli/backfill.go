package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pinboard/pinboard/internal/backfill"
	jobmetrics "github.com/pinboard/pinboard/internal/jobs"
	"github.com/pinboard/pinboard/internal/shared"
)

// BackfillMode enumerates supported execution strategies.
type BackfillMode string

const (
	// BackfillModeDry reports what a forward run would touch.
	BackfillModeDry BackfillMode = "dry"
	// BackfillModeApply runs the forward procedure after confirmation.
	BackfillModeApply BackfillMode = "apply"
	// BackfillModeRollback runs the backward procedure after confirmation.
	BackfillModeRollback BackfillMode = "rollback"
)

// ExitPending is returned by a dry run that found work to do.
const ExitPending = 10

// Backfiller is the default board procedure.
type Backfiller interface {
	Plan(ctx context.Context) (backfill.Plan, error)
	Forward(ctx context.Context) (backfill.Result, error)
	Backward(ctx context.Context) (backfill.Result, error)
}

// AuditRecorder stores an audit trail entry.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BackfillOptions configures the backfill command execution.
type BackfillOptions struct {
	Mode       BackfillMode
	JSONOutput bool
	// AssumeYes skips the interactive confirmation.
	AssumeYes bool
	ActorID   int64
	Stdout    io.Writer
	Stderr    io.Writer
	Stdin     io.Reader
	Confirm   func(io.Reader, io.Writer, string) (bool, error)
}

// BackfillSummary captures the structured reporting outcome.
type BackfillSummary struct {
	Mode   BackfillMode     `json:"mode"`
	Plan   *backfill.Plan   `json:"plan,omitempty"`
	Result *backfill.Result `json:"result,omitempty"`
}

// BackfillCLI drives the default board backfill from the command line.
type BackfillCLI struct {
	procedure Backfiller
	audit     AuditRecorder
	metrics   *jobmetrics.Metrics
}

// NewBackfillCLI constructs the command. audit and metrics may be nil.
func NewBackfillCLI(procedure Backfiller, audit AuditRecorder, metrics *jobmetrics.Metrics) *BackfillCLI {
	return &BackfillCLI{procedure: procedure, audit: audit, metrics: metrics}
}

// Command executes the backfill workflow and returns the process exit code.
func (c *BackfillCLI) Command(ctx context.Context, opts BackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = BackfillModeDry
	}
	mode := BackfillMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case BackfillModeDry, BackfillModeApply, BackfillModeRollback:
	default:
		fmt.Fprintf(opts.Stderr, "backfill: invalid mode %q (expected dry, apply or rollback)\n", opts.Mode)
		return 1
	}
	summary := BackfillSummary{Mode: mode}

	if mode == BackfillModeRollback {
		return c.rollback(ctx, opts, summary)
	}

	plan, err := c.procedure.Plan(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: %v\n", err)
		return 1
	}
	summary.Plan = &plan
	if mode == BackfillModeDry || !plan.Pending() {
		if err := writeBackfillOutput(opts, summary); err != nil {
			fmt.Fprintf(opts.Stderr, "backfill: %v\n", err)
			return 1
		}
		if mode == BackfillModeDry && plan.Pending() {
			return ExitPending
		}
		return 0
	}

	if !c.confirm(opts, "Apply default board backfill?") {
		return 1
	}
	tracker := c.metrics.Track("backfill:forward")
	res, err := c.procedure.Forward(ctx)
	if err = tracker.End(err); err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: apply failed: %v\n", err)
		return 1
	}
	c.metrics.AddBackfillRows("forward", "members", res.Members)
	c.metrics.AddBackfillRows("forward", "pins", int(res.PinsFiled))
	c.record(ctx, opts, shared.AuditLog{
		ActorID:  opts.ActorID,
		Action:   "backfill.forward",
		Entity:   "board",
		EntityID: strconv.FormatInt(res.BoardID, 10),
		Meta: map[string]any{
			"board_created": res.BoardCreated,
			"members":       res.Members,
			"pins_filed":    res.PinsFiled,
		},
	})
	summary.Result = &res
	if err := writeBackfillOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: %v\n", err)
		return 1
	}
	return 0
}

func (c *BackfillCLI) rollback(ctx context.Context, opts BackfillOptions, summary BackfillSummary) int {
	if !c.confirm(opts, "Delete every board and unfile every pin?") {
		return 1
	}
	tracker := c.metrics.Track("backfill:backward")
	res, err := c.procedure.Backward(ctx)
	if err = tracker.End(err); err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: rollback failed: %v\n", err)
		return 1
	}
	c.metrics.AddBackfillRows("backward", "boards", res.BoardsDeleted)
	c.metrics.AddBackfillRows("backward", "permissions", res.PermissionsRevoked)
	c.metrics.AddBackfillRows("backward", "pins", int(res.PinsUnfiled))
	c.record(ctx, opts, shared.AuditLog{
		ActorID:  opts.ActorID,
		Action:   "backfill.backward",
		Entity:   "board",
		EntityID: "*",
		Meta: map[string]any{
			"boards_deleted":      res.BoardsDeleted,
			"permissions_revoked": res.PermissionsRevoked,
			"pins_unfiled":        res.PinsUnfiled,
		},
	})
	summary.Result = &res
	if err := writeBackfillOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: %v\n", err)
		return 1
	}
	return 0
}

func (c *BackfillCLI) confirm(opts BackfillOptions, prompt string) bool {
	if opts.AssumeYes {
		return true
	}
	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stderr, prompt)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: confirmation failed: %v\n", err)
		return false
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "backfill: cancelled by user")
	}
	return ok
}

// record writes the audit entry. The procedure has already committed, so a
// failure here is reported but does not change the exit code.
func (c *BackfillCLI) record(ctx context.Context, opts BackfillOptions, entry shared.AuditLog) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(ctx, entry); err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: audit log: %v\n", err)
	}
}

func writeBackfillOutput(opts BackfillOptions, summary BackfillSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderBackfillHuman(opts.Stdout, summary)
	return nil
}

func renderBackfillHuman(out io.Writer, summary BackfillSummary) {
	fmt.Fprintf(out, "Default board backfill (%s)\n", summary.Mode)
	if plan := summary.Plan; plan != nil {
		if plan.DefaultBoardFound {
			fmt.Fprintf(out, "%q exists.\n", backfill.DefaultBoardName)
		} else {
			fmt.Fprintf(out, "%q will be created.\n", backfill.DefaultBoardName)
		}
		fmt.Fprintf(out, " - users to add: %d (anonymous user %d excluded)\n", plan.EligibleUsers, plan.AnonymousUserID)
		if plan.MissingGrants > 0 {
			fmt.Fprintf(out, " - members missing view_board: %d\n", plan.MissingGrants)
		}
		fmt.Fprintf(out, " - unfiled pins: %d\n", plan.UnfiledPins)
		fmt.Fprintf(out, " - boards: %d\n", plan.Boards)
		if !plan.Pending() {
			fmt.Fprintln(out, "Nothing to do.")
		}
	}
	if res := summary.Result; res != nil {
		fmt.Fprintln(out, "Applied:")
		if summary.Mode == BackfillModeRollback {
			fmt.Fprintf(out, " - boards deleted: %d\n", res.BoardsDeleted)
			fmt.Fprintf(out, " - permissions revoked: %d\n", res.PermissionsRevoked)
			fmt.Fprintf(out, " - pins unfiled: %d\n", res.PinsUnfiled)
			return
		}
		fmt.Fprintf(out, " - board %d (created: %t)\n", res.BoardID, res.BoardCreated)
		fmt.Fprintf(out, " - members added: %d\n", res.Members)
		fmt.Fprintf(out, " - pins filed: %d\n", res.PinsFiled)
	}
}

func defaultConfirm(r io.Reader, w io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(w, "%s Type YES to confirm: ", prompt)
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}
