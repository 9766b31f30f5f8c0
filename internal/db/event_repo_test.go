package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"devmint/internal/types"
)

// Note: mockDBTX and mockRow are defined in ledger_repo_test.go.

func TestWebhookEventRepo_RecordEvent_FirstSeen(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewWebhookEventRepo(db, nil)
	require.NoError(t, err)

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	payload := []byte(`{"event_id":"evt_1","event_type":"transaction.completed","data":{"id":"txn_1"}}`)
	firstSeen, err := repo.RecordEvent(context.Background(), "evt_1", "transaction.completed", time.Now().UTC(), payload)
	require.NoError(t, err)
	assert.True(t, firstSeen)

	require.Len(t, captured, 4)
	assert.Equal(t, "evt_1", captured[0])
	assert.Equal(t, "transaction.completed", captured[1])

	// The stored payload is zstd-compressed, not the raw bytes.
	stored, ok := captured[3].([]byte)
	require.True(t, ok)
	assert.NotEqual(t, payload, stored)
	assert.NotEmpty(t, stored)
}

func TestWebhookEventRepo_RecordEvent_Redelivery(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewWebhookEventRepo(db, nil)
	require.NoError(t, err)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	firstSeen, err := repo.RecordEvent(context.Background(), "evt_1", "transaction.completed", time.Now().UTC(), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, firstSeen, "conflicting event ID means redelivery")
}

func TestWebhookEventRepo_RecordEvent_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewWebhookEventRepo(db, nil)
	require.NoError(t, err)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err = repo.RecordEvent(context.Background(), "evt_1", "transaction.completed", time.Now().UTC(), []byte(`{}`))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestWebhookEventRepo_PayloadRoundTrip(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewWebhookEventRepo(db, nil)
	require.NoError(t, err)

	var stored []byte
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			stored = args.Get(2).([]any)[3].([]byte)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	payload := []byte(`{"event_id":"evt_1","data":{"id":"txn_1","custom_data":{"planType":"donation"}}}`)
	_, err = repo.RecordEvent(context.Background(), "evt_1", "transaction.completed", time.Now().UTC(), payload)
	require.NoError(t, err)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*[]byte) = stored
				return nil
			},
		})

	got, err := repo.GetEventPayload(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWebhookEventRepo_GetEventPayload_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewWebhookEventRepo(db, nil)
	require.NoError(t, err)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("no rows in result set")})

	_, err = repo.GetEventPayload(context.Background(), "evt_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
