package notify

import (
	"context"
	"strings"

	"prtrack/internal/types"
)

// PRStore is the subset of the purchase request repository the pipeline
// depends on.
type PRStore interface {
	GetByID(ctx context.Context, id string) (*types.PurchaseRequest, error)
}

// Notifier runs the full pipeline for one transition: resolve, build
// recipients, render, post-process, claim the idempotency guard, dispatch,
// and record the outcome.
type Notifier struct {
	prs         PRStore
	contexts    *ContextBuilder
	renderer    *Renderer
	postproc    *PostProcessor
	guard       *Guard
	dispatcher  *Dispatcher
	log         NotificationLog
	procurement string
	metrics     DeliveryMetrics
	logger      types.Logger
}

// NotifierDeps bundles the pipeline's collaborators.
type NotifierDeps struct {
	PRs                PRStore
	Contexts           *ContextBuilder
	Renderer           *Renderer
	PostProcessor      *PostProcessor
	Guard              *Guard
	Dispatcher         *Dispatcher
	Log                NotificationLog
	ProcurementAddress string
	Metrics            DeliveryMetrics
	Logger             types.Logger
}

// NewNotifier creates a Notifier from its dependencies.
func NewNotifier(deps NotifierDeps) *Notifier {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Notifier{
		prs:         deps.PRs,
		contexts:    deps.Contexts,
		renderer:    deps.Renderer,
		postproc:    deps.PostProcessor,
		guard:       deps.Guard,
		dispatcher:  deps.Dispatcher,
		log:         deps.Log,
		procurement: deps.ProcurementAddress,
		metrics:     metrics,
		logger:      deps.Logger,
	}
}

// preparedTrigger carries everything a dispatch needs, computed before the
// idempotency claim.
type preparedTrigger struct {
	transition    types.TransitionType
	transitionKey string
	set           RecipientSet
	content       types.EmailContent
	logger        types.Logger
}

// Process handles one trigger end to end.
//
// A missing PR or an empty recipient set rejects the trigger. A duplicate
// transition is a silent successful no-op. Partial delivery failure is a
// partial-success result: the entry is marked sent for the delivered subset
// and the failed recipients are surfaced for targeted retry.
func (n *Notifier) Process(ctx context.Context, req types.TriggerRequest) (*types.TriggerResult, error) {
	prep, err := n.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	entryID, won, err := n.guard.Claim(ctx, req.Notification.PRID, prep.transitionKey, prep.set.All())
	if err != nil {
		return nil, err
	}
	if !won {
		n.metrics.Count(types.MetricDuplicateSkipped, map[string]string{
			types.DimTransition: string(prep.transition),
		})
		return &types.TriggerResult{Success: true, Duplicate: true}, nil
	}

	outcomes := n.dispatcher.Dispatch(ctx, prep.set, prep.content, entryID, prep.transition)
	return n.record(ctx, prep.logger, entryID, prep.set, outcomes)
}

// Retry re-runs delivery for a transition whose prior attempt failed. The
// failed entry is re-armed so the retry reuses the original claim; a sent or
// in-flight entry rejects the retry with a conflict, and a transition never
// attempted rejects it with not-found.
func (n *Notifier) Retry(ctx context.Context, req types.TriggerRequest) (*types.TriggerResult, error) {
	prep, err := n.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	entryID, rearmed, err := n.guard.Rearm(ctx, req.Notification.PRID, prep.transitionKey)
	if err != nil {
		return nil, err
	}
	if !rearmed {
		entry, getErr := n.log.Get(ctx, req.Notification.PRID, prep.transitionKey)
		if getErr != nil {
			return nil, getErr
		}
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConflictDuplicateNotification,
			"notification is not in a retryable state",
			nil,
			map[string]any{"status": string(entry.Status)},
		)
	}

	outcomes := n.dispatcher.Dispatch(ctx, prep.set, prep.content, entryID, prep.transition)
	return n.record(ctx, prep.logger, entryID, prep.set, outcomes)
}

// Status fetches the delivery record for a (PR, transition) pair.
func (n *Notifier) Status(ctx context.Context, prID, transitionKey string) (*types.NotificationLogEntry, error) {
	return n.log.Get(ctx, prID, transitionKey)
}

// prepare validates the transition, loads the PR, resolves the rendering
// context, builds the recipient set, and produces post-processed content.
func (n *Notifier) prepare(ctx context.Context, req types.TriggerRequest) (*preparedTrigger, error) {
	transition, err := types.TransitionTypeFor(
		types.PRStatus(req.Notification.OldStatus),
		types.PRStatus(req.Notification.NewStatus),
	)
	if err != nil {
		n.metrics.Count(types.MetricTriggerRejected, nil)
		return nil, err
	}
	transitionKey := req.Notification.TransitionKey()

	logger := n.logger.With(
		"pr_id", req.Notification.PRID,
		"transition", transitionKey,
	)

	pr, err := n.prs.GetByID(ctx, req.Notification.PRID)
	if err != nil {
		n.metrics.Count(types.MetricTriggerRejected, nil)
		return nil, err
	}

	rc := n.contexts.Build(ctx, pr, req.Notification, transition)

	set := BuildRecipients(transition, RecipientInput{
		RequestorEmail:     rc.RequestorEmail,
		ApproverEmail:      rc.ApproverEmail,
		ProcurementAddress: n.procurement,
		ExplicitTo:         req.Recipients,
		ExplicitCc:         req.Cc,
	})
	if set.IsEmpty() {
		n.metrics.Count(types.MetricTriggerRejected, nil)
		return nil, types.NewAppError(
			types.ErrCodeValidationNoRecipients,
			"no recipients could be determined for this transition",
			nil,
		)
	}

	content, err := n.buildContent(req, rc)
	if err != nil {
		return nil, err
	}
	repaired := n.postproc.Apply(ctx, *content, rc)

	return &preparedTrigger{
		transition:    transition,
		transitionKey: transitionKey,
		set:           set,
		content:       repaired,
		logger:        logger,
	}, nil
}

// buildContent renders from templates unless the trigger carried a
// pre-rendered body. A provided body still passes through the post-processor.
func (n *Notifier) buildContent(req types.TriggerRequest, rc RenderingContext) (*types.EmailContent, error) {
	body := req.EmailBody
	if body != nil && (body.HTML != "" || body.Text != "") {
		content := &types.EmailContent{
			Subject: body.Subject,
			Text:    body.Text,
			HTML:    body.HTML,
		}
		if content.Subject == "" {
			rendered, err := n.renderer.Render(rc)
			if err != nil {
				return nil, err
			}
			content.Subject = rendered.Subject
		}
		return content, nil
	}
	return n.renderer.Render(rc)
}

// record writes the aggregate outcome to the log and shapes the caller
// result.
func (n *Notifier) record(ctx context.Context, logger types.Logger, entryID string, set RecipientSet, outcomes []types.RecipientOutcome) (*types.TriggerResult, error) {
	var delivered []string
	var failed []string
	var reasons []string
	for _, o := range outcomes {
		if o.Sent {
			delivered = append(delivered, o.Recipient)
		} else {
			failed = append(failed, o.Recipient)
			reasons = append(reasons, o.FailureReason)
		}
	}

	if len(delivered) == 0 {
		reason := strings.Join(reasons, "; ")
		if err := n.log.MarkFailed(ctx, entryID, reason); err != nil {
			logger.Error("failed to record delivery failure", "error", err)
		}
		return &types.TriggerResult{Failed: failed}, types.NewAppError(
			types.ErrCodeUpstreamMailProvider,
			"delivery failed for every recipient",
			nil,
		)
	}

	if err := n.log.MarkSent(ctx, entryID, delivered); err != nil {
		logger.Error("failed to record delivery", "error", err)
	}

	if len(failed) > 0 {
		logger.Warn("partial delivery",
			"delivered", len(delivered),
			"failed", len(failed),
		)
	} else {
		logger.Info("notification delivered", "delivered", len(delivered))
	}

	return &types.TriggerResult{
		Success:   true,
		Delivered: len(delivered),
		Failed:    failed,
	}, nil
}
