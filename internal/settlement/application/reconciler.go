package application

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/metrics"
)

type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeExpired   Outcome = "expired"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Reconciler applies gateway confirmations to orders. Handle is safe to call
// any number of times for the same event.
type Reconciler struct {
	log     *slog.Logger
	repo    Repository
	appID   string
	metrics *metrics.Collectors
	tracer  trace.Tracer
}

func NewReconciler(log *slog.Logger, repo Repository, appID string, m *metrics.Collectors) *Reconciler {
	return &Reconciler{
		log:     log,
		repo:    repo,
		appID:   appID,
		metrics: m,
		tracer:  otel.Tracer("settlement-reconciler"),
	}
}

func (r *Reconciler) Handle(ctx context.Context, ev domain.GatewayEvent) (out Outcome, err error) {
	ctx, span := r.tracer.Start(ctx, "Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", ev.SessionID), attribute.String("event.type", string(ev.Type)))
	defer func() {
		if err != nil {
			out = OutcomeFailed
		}
		if r.metrics != nil {
			r.metrics.Settlements.WithLabelValues(string(out)).Inc()
		}
	}()

	if r.appID != "" && ev.AppID != r.appID {
		r.log.Info("gateway event for another app ignored", "session_id", ev.SessionID, "app_id", ev.AppID)
		return OutcomeIgnored, nil
	}
	if err := ev.Validate(); err != nil {
		return OutcomeFailed, err
	}

	switch ev.Type {
	case domain.PaymentConfirmed:
		applied, err := r.repo.Settle(ctx, ev)
		if err != nil {
			return OutcomeFailed, apperr.Wrap(apperr.KindStoreWriteError, err, "settle orders")
		}
		if !applied {
			r.log.Info("confirmation already applied", "session_id", ev.SessionID)
			return OutcomeDuplicate, nil
		}
		r.log.Info("orders settled", "session_id", ev.SessionID, "user_id", ev.UserID, "order_ids", ev.OrderIDs)
		return OutcomeSettled, nil
	default:
		applied, err := r.repo.RecordExpiry(ctx, ev)
		if err != nil {
			return OutcomeFailed, apperr.Wrap(apperr.KindStoreWriteError, err, "record expiry")
		}
		if !applied {
			return OutcomeDuplicate, nil
		}
		r.log.Warn("gateway session expired, orders stay unpaid", "session_id", ev.SessionID, "order_ids", ev.OrderIDs)
		return OutcomeExpired, nil
	}
}
