package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlas-civic/budget-tracker/internal/common"
)

// Status classifies the result of a wait.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusCompleted  Status = "COMPLETED"
	StatusTerminated Status = "TERMINATED"
	StatusTimeout    Status = "TIMEOUT"
)

// Outcome is the normalized result of polling a workflow. Payload holds the
// structured output and Result the scalar one (a sentiment label or a matched
// passage); both are populated only on StatusCompleted, except that a
// terminated workflow may carry a defined sentinel in Result.
type Outcome struct {
	Status  Status
	Raw     map[string]any
	Payload map[string]any
	Result  string
}

// Interpreter decides, from one raw workflow state, whether the wait is over.
type Interpreter interface {
	Interpret(raw map[string]any) Outcome
}

// Policy configures one wait: the inter-attempt delay and an optional attempt
// cap. MaxAttempts == 0 means unbounded attempts; the caller must then bound
// the context instead.
type Policy struct {
	Delay       time.Duration
	MaxAttempts int
}

// Poller drives repeated polls of one workflow until its interpreter reports
// a terminal outcome. Safe to use concurrently for different workflow ids.
type Poller struct {
	client *Client
	log    *slog.Logger
}

func NewPoller(client *Client, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{client: client, log: logger}
}

// Wait sleeps, polls, and interprets until the workflow is completed or
// terminated, the attempt budget is exhausted, or the context ends. Transport
// errors are not retried; they abort the wait. Context cancellation surfaces
// as a timeout outcome so callers can distinguish "gave up waiting" from
// "broken".
func (p *Poller) Wait(ctx context.Context, workflowID, token string, interp Interpreter, policy Policy) (Outcome, error) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			p.log.Warn("workflow.wait.context_done", "workflow_id", workflowID, "attempts", attempts)
			return Outcome{Status: StatusTimeout}, common.NewAppError("POLL_TIMEOUT", "wait cancelled", common.WrapError(common.ErrPollTimeout, ctx.Err().Error()))
		case <-time.After(policy.Delay):
		}

		raw, err := p.client.Poll(ctx, workflowID, token)
		if err != nil {
			return Outcome{}, err
		}
		attempts++

		out := interp.Interpret(raw)
		switch out.Status {
		case StatusCompleted, StatusTerminated:
			p.log.Info("workflow.wait.done",
				"workflow_id", workflowID,
				"status", string(out.Status),
				"attempts", attempts,
			)
			return out, nil
		}

		if policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts {
			p.log.Warn("workflow.wait.attempts_exhausted", "workflow_id", workflowID, "attempts", attempts)
			return Outcome{Status: StatusTimeout, Raw: raw},
				common.NewAppError("POLL_TIMEOUT", "workflow processing timeout", common.ErrPollTimeout)
		}
	}
}
