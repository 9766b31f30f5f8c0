package db

import (
	"context"
	"log/slog"
	"time"

	"devmint/internal/types"

	"github.com/klauspost/compress/zstd"
)

// WebhookEventRepo archives every authenticated webhook delivery. The raw
// payload is zstd-compressed before storage; provider payloads are verbose
// JSON and compress well. The provider's event ID is the primary key, which
// doubles as the dedup record for redeliveries.
type WebhookEventRepo struct {
	db      DBTX
	logger  *slog.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewWebhookEventRepo creates a new WebhookEventRepo. The zstd encoder and
// decoder are created once and reused; both are safe for concurrent use via
// EncodeAll/DecodeAll.
func NewWebhookEventRepo(db DBTX, logger *slog.Logger) (*WebhookEventRepo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create zstd encoder", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create zstd decoder", err)
	}

	return &WebhookEventRepo{
		db:      db,
		logger:  logger,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// RecordEvent archives one webhook delivery. Returns firstSeen=false when
// the provider event ID was already recorded (redelivery).
func (r *WebhookEventRepo) RecordEvent(
	ctx context.Context,
	eventID string,
	eventType string,
	occurredAt time.Time,
	payload []byte,
) (firstSeen bool, err error) {
	compressed := r.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/4))

	tag, err := r.db.Exec(ctx,
		`INSERT INTO webhook_events (event_id, event_type, occurred_at, payload_zstd, received_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID,
		eventType,
		occurredAt,
		compressed,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to archive webhook event", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("webhook event redelivery detected",
			slog.String("event_id", eventID),
			slog.String("event_type", eventType),
		)
		return false, nil
	}
	return true, nil
}

// GetEventPayload returns the decompressed payload of an archived event, or
// a not-found error wrapped as an internal DB error.
func (r *WebhookEventRepo) GetEventPayload(ctx context.Context, eventID string) ([]byte, error) {
	var compressed []byte
	err := r.db.QueryRow(ctx,
		`SELECT payload_zstd FROM webhook_events WHERE event_id = $1`,
		eventID,
	).Scan(&compressed)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load archived webhook event", err)
	}

	payload, err := r.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decompress archived payload", err)
	}
	return payload, nil
}
