package repo

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fintechlab/transaction-service/internal/logger"
	"github.com/fintechlab/transaction-service/internal/model"
)

func newTestRepo(t *testing.T) (*Repository, context.Context) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Transaction{}, &model.IdempotencyKey{}))

	log, err := logger.NewLogger("test", "error")
	assert.NoError(t, err)
	return NewRepository(db, nil, log), context.Background()
}

func seedTransaction(t *testing.T, r *Repository, ctx context.Context, externalID, status string) *model.Transaction {
	tx := &model.Transaction{
		ExternalID:              externalID,
		AccountExternalIDDebit:  "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		AccountExternalIDCredit: "550e8400-e29b-41d4-a716-446655440000",
		TransferTypeID:          1,
		Amount:                  decimal.NewFromInt(100),
		Status:                  status,
	}
	assert.NoError(t, r.DB(ctx).Create(tx).Error)
	return tx
}

func TestFindByFingerprint_RoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)

	const fp = "d2b3a1c4e5f60718293a4b5c6d7e8f90d2b3a1c4e5f60718293a4b5c6d7e8f90"

	_, err := r.FindByFingerprint(ctx, nil, fp)
	assert.ErrorIs(t, err, ErrNotFound)

	var externalID string
	err = r.WithFingerprintLock(ctx, fp, func(tx *gorm.DB) error {
		record := &model.Transaction{
			ExternalID:              "0f8fad5b-d9cb-469f-a165-70867728950e",
			AccountExternalIDDebit:  "7c9e6679-7425-40de-944b-e07fc1f90ae7",
			AccountExternalIDCredit: "550e8400-e29b-41d4-a716-446655440000",
			TransferTypeID:          1,
			Amount:                  decimal.NewFromInt(100),
			Status:                  model.StatusPending,
		}
		if err := r.CreateWithFingerprint(tx, record, fp); err != nil {
			return err
		}
		externalID = record.ExternalID
		return nil
	})
	assert.NoError(t, err)

	found, err := r.FindByFingerprint(ctx, nil, fp)
	assert.NoError(t, err)
	assert.Equal(t, externalID, found.ExternalID)
	assert.Equal(t, model.StatusPending, found.Status)
}

func TestMarkStatus_OnlyMovesPendingRows(t *testing.T) {
	r, ctx := newTestRepo(t)
	tx := seedTransaction(t, r, ctx, "0f8fad5b-d9cb-469f-a165-70867728950e", model.StatusPending)

	rows, err := r.MarkStatus(ctx, tx.ExternalID, model.StatusApproved)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	// a later, conflicting decision must not overwrite the terminal state
	rows, err = r.MarkStatus(ctx, tx.ExternalID, model.StatusRejected)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, rows)

	got, err := r.GetByExternalID(ctx, tx.ExternalID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
}

func TestGetByExternalID_NotFound(t *testing.T) {
	r, ctx := newTestRepo(t)

	_, err := r.GetByExternalID(ctx, "0f8fad5b-d9cb-469f-a165-70867728950e")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRecent_NewestFirst(t *testing.T) {
	r, ctx := newTestRepo(t)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ids := []string{
		"11111111-1111-4111-8111-111111111111",
		"22222222-2222-4222-8222-222222222222",
		"33333333-3333-4333-8333-333333333333",
	}
	for i, id := range ids {
		tx := seedTransaction(t, r, ctx, id, model.StatusPending)
		assert.NoError(t, r.DB(ctx).Model(tx).Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	txs, err := r.ListRecent(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, ids[2], txs[0].ExternalID)
	assert.Equal(t, ids[1], txs[1].ExternalID)
}

func TestWithFingerprintLock_SerializesSameKey(t *testing.T) {
	r, ctx := newTestRepo(t)

	const fp = "aaaa1111bbbb2222cccc3333dddd4444aaaa1111bbbb2222cccc3333dddd4444"

	var inside int32
	var overlapped int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.WithFingerprintLock(ctx, fp, func(tx *gorm.DB) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 0, overlapped, "critical sections for one fingerprint must not overlap")
}

func TestWithFingerprintLock_DeadlineBoundsCriticalSection(t *testing.T) {
	r, _ := newTestRepo(t)

	const fp = "eeee5555ffff6666aaaa7777bbbb8888eeee5555ffff6666aaaa7777bbbb8888"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.WithFingerprintLock(ctx, fp, func(tx *gorm.DB) error {
		time.Sleep(40 * time.Millisecond)
		// tx keeps the lock deadline even when the caller passes a fresh
		// context, so work past the deadline must fail, not run unbounded
		_, err := r.FindByFingerprint(context.Background(), tx, fp)
		return err
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestTransactionCache_RoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	log, err := logger.NewLogger("test", "error")
	assert.NoError(t, err)
	r := &Repository{rdb: rdb, locks: newKeyedMutex(), log: log}
	ctx := context.Background()

	tx := &model.Transaction{
		ID:                      7,
		ExternalID:              "0f8fad5b-d9cb-469f-a165-70867728950e",
		AccountExternalIDDebit:  "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		AccountExternalIDCredit: "550e8400-e29b-41d4-a716-446655440000",
		TransferTypeID:          1,
		Amount:                  decimal.NewFromInt(100),
		Status:                  model.StatusPending,
		CreatedAt:               time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(tx)
	assert.NoError(t, err)

	mock.ExpectSet("tx:"+tx.ExternalID, string(data), cacheTTL).SetVal("OK")
	assert.NoError(t, r.CacheTransaction(ctx, tx))

	mock.ExpectGet("tx:" + tx.ExternalID).SetVal(string(data))
	got, err := r.GetCachedTransaction(ctx, tx.ExternalID)
	assert.NoError(t, err)
	assert.Equal(t, tx.ExternalID, got.ExternalID)
	assert.True(t, tx.Amount.Equal(got.Amount))

	mock.ExpectDel("tx:" + tx.ExternalID).SetVal(1)
	assert.NoError(t, r.InvalidateCachedTransaction(ctx, tx.ExternalID))

	assert.NoError(t, mock.ExpectationsWereMet())
}
