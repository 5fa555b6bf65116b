package notify

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"prtrack/internal/external"
	"prtrack/internal/types"
)

// Dispatcher fans one rendered notification out to every primary recipient.
// Each recipient gets their own message with cc set to the rest of the set
// minus themselves; sends run concurrently and outcomes are collected per
// recipient rather than joined all-or-nothing.
type Dispatcher struct {
	provider    external.MailProvider
	from        types.SenderIdentity
	sendTimeout time.Duration
	metrics     DeliveryMetrics
	logger      types.Logger
}

// NewDispatcher creates a Dispatcher. sendTimeout bounds each individual
// provider call; a non-positive value disables the per-send deadline.
func NewDispatcher(provider external.MailProvider, from types.SenderIdentity, sendTimeout time.Duration, metrics DeliveryMetrics, logger types.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Dispatcher{
		provider:    provider,
		from:        from,
		sendTimeout: sendTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// Dispatch sends content to every address in set.To concurrently and returns
// one outcome per recipient, in set order. Dispatch itself never fails; a
// provider error becomes a failed outcome for that recipient only.
func (d *Dispatcher) Dispatch(ctx context.Context, set RecipientSet, content types.EmailContent, referenceID string, transition types.TransitionType) []types.RecipientOutcome {
	start := time.Now()
	outcomes := make([]types.RecipientOutcome, len(set.To))

	g, gctx := errgroup.WithContext(ctx)
	for i, recipient := range set.To {
		i, recipient := i, recipient
		g.Go(func() error {
			outcomes[i] = d.sendOne(gctx, set, content, recipient, referenceID, transition)
			return nil
		})
	}
	// Workers only record outcomes; the group never carries an error.
	_ = g.Wait()

	d.metrics.Duration(types.MetricDeliveryAttempt, time.Since(start), map[string]string{
		types.DimTransition: string(transition),
	})
	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, set RecipientSet, content types.EmailContent, recipient, referenceID string, transition types.TransitionType) types.RecipientOutcome {
	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	msgID, err := d.provider.Send(sendCtx, types.SendInput{
		To:          recipient,
		Cc:          set.CcForRecipient(recipient),
		From:        d.from,
		Subject:     content.Subject,
		BodyText:    content.Text,
		BodyHTML:    content.HTML,
		ReferenceID: referenceID,
	})
	if err != nil {
		d.logger.Error("send failed",
			"to", types.RedactEmail(recipient),
			"transition", string(transition),
			"error", err,
		)
		d.metrics.Count(types.MetricDeliveryFailed, map[string]string{
			types.DimTransition: string(transition),
		})
		return types.RecipientOutcome{
			Recipient:     recipient,
			FailureReason: err.Error(),
		}
	}

	d.logger.Info("send succeeded",
		"to", types.RedactEmail(recipient),
		"transition", string(transition),
		"provider_message_id", msgID,
	)
	d.metrics.Count(types.MetricDeliverySuccess, map[string]string{
		types.DimTransition: string(transition),
	})
	return types.RecipientOutcome{
		Recipient:         recipient,
		ProviderMessageID: msgID,
		Sent:              true,
	}
}
