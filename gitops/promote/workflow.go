package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/byte4ever/branch_promoter/gitops/merge"
)

// Promoter runs one source to target promotion.
// *merge.Coordinator implements it.
type Promoter interface {
	Promote(
		ctx context.Context,
		source string,
		target string,
		opts merge.Options,
	) merge.Outcome
}

var _ Promoter = (*merge.Coordinator)(nil)

// Request is a promotion request.
type Request struct {
	Kind   Kind
	Source string
	// Hold delays a release promotion before any
	// remote call.
	Hold time.Duration
	// TagVersion tags production after a release
	// merge.
	TagVersion string
}

// maxHoldHours is the longest hold a time.Duration
// can carry.
var maxHoldHours = float64(math.MaxInt64) / float64(time.Hour)

// HoldFromHours converts a fractional number of
// hours to a Hold duration.
func HoldFromHours(hours float64) (time.Duration, error) {
	switch {
	case math.IsNaN(hours) || math.IsInf(hours, 0):
		return 0, fmt.Errorf(
			"hold hours must be a finite number, got %g", hours,
		)
	case hours < 0:
		return 0, fmt.Errorf(
			"hold hours must not be negative, got %g", hours,
		)
	case hours >= maxHoldHours:
		return 0, fmt.Errorf(
			"hold hours must be below %.0f, got %g",
			maxHoldHours, hours,
		)
	}

	return time.Duration(hours * float64(time.Hour)), nil
}

// Validate checks r.
func (r Request) Validate() error {
	const errCtx = "validating promotion request"

	if _, err := ParseKind(string(r.Kind)); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if r.Source == "" {
		return fmt.Errorf(
			"%s: source branch must be set", errCtx,
		)
	}

	if r.Hold < 0 {
		return fmt.Errorf(
			"%s: hold must not be negative", errCtx,
		)
	}

	return nil
}

// StageResult is the outcome of one merge stage.
type StageResult struct {
	Source  string
	Target  string
	Outcome merge.Outcome
}

// Result reports a workflow run.
type Result struct {
	Request Request
	// Stages lists the stages that ran, in order.
	Stages []StageResult
	// Succeeded is true when every stage the kind
	// requires ran and succeeded.
	Succeeded bool
	// Err is set when the run stopped before or
	// between stages.
	Err error
}

// WorkflowConfig holds the collaborators of a
// Workflow.
type WorkflowConfig struct {
	Promoter         Promoter
	DevelopBranch    string
	ProductionBranch string
	// Sleep implements the release hold. Nil means
	// merge.Sleep.
	Sleep merge.SleepFunc
}

// Workflow sequences the stages of a promotion.
//
// Pattern: State Machine -- Kind selects the stage
// sequence; each stage gates the next.
type Workflow struct {
	promoter   Promoter
	develop    string
	production string
	sleep      merge.SleepFunc
}

// NewWorkflow validates cfg and returns a Workflow.
func NewWorkflow(cfg WorkflowConfig) (*Workflow, error) {
	const errCtx = "creating promotion workflow"

	if cfg.Promoter == nil {
		return nil, fmt.Errorf(
			"%s: promoter must be set", errCtx,
		)
	}

	if cfg.DevelopBranch == "" {
		return nil, fmt.Errorf(
			"%s: develop branch must be set", errCtx,
		)
	}

	if cfg.ProductionBranch == "" {
		return nil, fmt.Errorf(
			"%s: production branch must be set", errCtx,
		)
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = merge.Sleep
	}

	return &Workflow{
		promoter:   cfg.Promoter,
		develop:    cfg.DevelopBranch,
		production: cfg.ProductionBranch,
		sleep:      sleep,
	}, nil
}

// errStageFailed stops the stage sequence.
var errStageFailed = errors.New("stage failed")

// Run executes req. Stage failures are reported in the
// Result; no stage is retried at this level.
func (w *Workflow) Run(ctx context.Context, req Request) Result {
	res := Result{Request: req}

	if err := req.Validate(); err != nil {
		res.Err = err

		return res
	}

	slog.Info(
		"starting promotion",
		"kind", req.Kind,
		"source", req.Source,
	)

	var err error

	switch req.Kind {
	case KindFeatureToDevelop:
		err = w.stage(ctx, &res, w.develop, "")

	case KindHotfixToMainAndDev:
		err = w.stage(ctx, &res, w.production, "")
		if err == nil {
			err = w.stage(ctx, &res, w.develop, "")
		}

	case KindPromoteRelease:
		err = w.hold(ctx, req.Hold)
		if err == nil {
			err = w.stage(ctx, &res, w.production, req.TagVersion)
		}

		if err == nil {
			err = w.stage(ctx, &res, w.develop, "")
		}
	}

	if err != nil && !errors.Is(err, errStageFailed) {
		res.Err = err
	}

	res.Succeeded = err == nil && len(res.Stages) == req.Kind.stages()

	slog.Info(
		"promotion finished",
		"kind", req.Kind,
		"source", req.Source,
		"succeeded", res.Succeeded,
		"stages", len(res.Stages),
	)

	return res
}

func (w *Workflow) stage(
	ctx context.Context,
	res *Result,
	target string,
	tagVersion string,
) error {
	source := res.Request.Source

	slog.Info("promoting", "source", source, "target", target)

	out := w.promoter.Promote(ctx, source, target, merge.Options{
		TagVersion: tagVersion,
		Kind:       string(res.Request.Kind),
	})

	res.Stages = append(res.Stages, StageResult{
		Source:  source,
		Target:  target,
		Outcome: out,
	})

	if !out.Succeeded {
		slog.Warn(
			"stage failed",
			"source", source,
			"target", target,
			"reason", out.Reason,
		)

		return fmt.Errorf(
			"%w: %s into %s: %s",
			errStageFailed, source, target, out.Reason,
		)
	}

	return nil
}

func (w *Workflow) hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	slog.Info("holding before promotion", "duration", d)

	if err := w.sleep(ctx, d); err != nil {
		return fmt.Errorf("holding before promotion: %w", err)
	}

	return nil
}
