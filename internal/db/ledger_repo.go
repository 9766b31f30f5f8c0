package db

import (
	"context"
	"log/slog"

	"devmint/internal/types"
)

// LedgerRepo persists the billing ledger: donations, subscription payments,
// and subscription lifecycle state derived from the provider's webhook
// events.
//
// Key invariants:
//   - Every write is an idempotent upsert keyed on the provider's IDs, so
//     redelivered webhook events never create duplicate rows.
//   - Lifecycle updates never delete a subscription row; cancellation and
//     pause are recorded as status transitions.
type LedgerRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewLedgerRepo creates a new LedgerRepo backed by the given database
// connection (pool or transaction).
func NewLedgerRepo(db DBTX, logger *slog.Logger) *LedgerRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerRepo{db: db, logger: logger}
}

// RecordDonation inserts a completed donation transaction. Redelivery of the
// same provider transaction is a no-op.
func (r *LedgerRepo) RecordDonation(ctx context.Context, rec types.DonationRecord) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO donations (transaction_id, amount, currency_code, customer_email, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (transaction_id) DO NOTHING`,
		rec.TransactionID,
		rec.Amount,
		rec.CurrencyCode,
		rec.CustomerEmail,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record donation", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("duplicate donation transaction ignored",
			slog.String("transaction_id", rec.TransactionID),
		)
	}
	return nil
}

// RecordSubscriptionPayment inserts a completed recurring charge. Redelivery
// of the same provider transaction is a no-op.
func (r *LedgerRepo) RecordSubscriptionPayment(ctx context.Context, rec types.SubscriptionPayment) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO subscription_payments
		   (transaction_id, amount, currency_code, customer_email, plan_kind, billing_cycle, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (transaction_id) DO NOTHING`,
		rec.TransactionID,
		rec.Amount,
		rec.CurrencyCode,
		rec.CustomerEmail,
		rec.PlanKind,
		rec.BillingCycle,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record subscription payment", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("duplicate subscription payment ignored",
			slog.String("transaction_id", rec.TransactionID),
		)
	}
	return nil
}

// ActivateSubscription upserts the subscription row on subscription.created.
// A redelivered creation event refreshes the stored state instead of failing.
func (r *LedgerRepo) ActivateSubscription(ctx context.Context, rec types.SubscriptionActivation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions
		   (subscription_id, customer_email, price_id, status, next_billed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 ON CONFLICT (subscription_id) DO UPDATE
		 SET customer_email = EXCLUDED.customer_email,
		     price_id = EXCLUDED.price_id,
		     status = EXCLUDED.status,
		     next_billed_at = EXCLUDED.next_billed_at,
		     updated_at = NOW()`,
		rec.SubscriptionID,
		rec.CustomerEmail,
		rec.PriceID,
		rec.Status,
		rec.NextBilledAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription", err)
	}
	return nil
}

// UpdateSubscription applies a subscription.updated event. If the provider
// sends an update for a subscription this ledger has never seen (events can
// arrive out of order), the row is created with what the event carries.
func (r *LedgerRepo) UpdateSubscription(ctx context.Context, rec types.SubscriptionUpdate) error {
	priceID := ""
	if len(rec.PriceIDs) > 0 {
		priceID = rec.PriceIDs[0]
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions
		   (subscription_id, price_id, status, next_billed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (subscription_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     next_billed_at = EXCLUDED.next_billed_at,
		     price_id = CASE WHEN EXCLUDED.price_id <> '' THEN EXCLUDED.price_id ELSE subscriptions.price_id END,
		     updated_at = NOW()`,
		rec.SubscriptionID,
		priceID,
		rec.Status,
		rec.NextBilledAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription", err)
	}
	return nil
}

// CancelSubscription marks the subscription canceled.
func (r *LedgerRepo) CancelSubscription(ctx context.Context, rec types.SubscriptionCancellation) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     canceled_at = COALESCE($2, NOW()),
		     cancel_reason = $3,
		     updated_at = NOW()
		 WHERE subscription_id = $4`,
		types.SubStatusCanceled,
		rec.CanceledAt,
		rec.Reason,
		rec.SubscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("cancellation received for unknown subscription",
			slog.String("subscription_id", rec.SubscriptionID),
		)
	}
	return nil
}

// PauseSubscription marks the subscription paused.
func (r *LedgerRepo) PauseSubscription(ctx context.Context, rec types.SubscriptionPause) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     paused_at = COALESCE($2, NOW()),
		     updated_at = NOW()
		 WHERE subscription_id = $3`,
		types.SubStatusPaused,
		rec.PausedAt,
		rec.SubscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to pause subscription", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("pause received for unknown subscription",
			slog.String("subscription_id", rec.SubscriptionID),
		)
	}
	return nil
}

// ResumeSubscription marks a paused subscription active again.
func (r *LedgerRepo) ResumeSubscription(ctx context.Context, rec types.SubscriptionResume) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     paused_at = NULL,
		     resumed_at = COALESCE($2, NOW()),
		     updated_at = NOW()
		 WHERE subscription_id = $3`,
		types.SubStatusActive,
		rec.ResumedAt,
		rec.SubscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to resume subscription", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("resume received for unknown subscription",
			slog.String("subscription_id", rec.SubscriptionID),
		)
	}
	return nil
}

// UpsertCustomer records a provider customer create or update.
func (r *LedgerRepo) UpsertCustomer(ctx context.Context, rec types.CustomerRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO customers (customer_id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (customer_id) DO UPDATE
		 SET email = EXCLUDED.email,
		     name = EXCLUDED.name,
		     updated_at = NOW()`,
		rec.CustomerID,
		rec.Email,
		rec.Name,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert customer", err)
	}
	return nil
}
