package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fintechlab/transaction-service/internal/model"
)

// ErrNotFound is returned when a transaction lookup matches no row.
var ErrNotFound = errors.New("transaction not found")

const cacheTTL = 5 * time.Minute

// RepositoryInterface restricts Repo methods (unit test mocks plug in here).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	FindByFingerprint(ctx context.Context, tx *gorm.DB, fingerprint string) (*model.Transaction, error)
	CreateWithFingerprint(tx *gorm.DB, t *model.Transaction, fingerprint string) error
	WithFingerprintLock(ctx context.Context, fingerprint string, fn func(tx *gorm.DB) error) error
	MarkStatus(ctx context.Context, externalID, status string) (int64, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Transaction, error)
	ListRecent(ctx context.Context, limit int) ([]model.Transaction, error)
	CacheTransaction(ctx context.Context, t *model.Transaction) error
	GetCachedTransaction(ctx context.Context, externalID string) (*model.Transaction, error)
	InvalidateCachedTransaction(ctx context.Context, externalID string) error
}

// Repository implements RepositoryInterface on gorm + redis.
type Repository struct {
	db    *gorm.DB
	rdb   *redis.Client
	locks *keyedMutex
	log   *zap.SugaredLogger
}

// NewRepository constructs repo. rdb may be nil; caching is then disabled.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, locks: newKeyedMutex(), log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// FindByFingerprint resolves a fingerprint to the transaction it produced.
// tx may be nil to read outside any transaction (the fast-path check). A
// non-nil tx is used as-is: it already carries the deadline it was opened
// under, and re-wrapping it would discard that bound.
func (r *Repository) FindByFingerprint(ctx context.Context, tx *gorm.DB, fingerprint string) (*model.Transaction, error) {
	if tx == nil {
		tx = r.db.WithContext(ctx)
	}
	var rec model.IdempotencyKey
	err := tx.Where("fingerprint = ?", fingerprint).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t model.Transaction
	if err := tx.First(&t, rec.TransactionID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateWithFingerprint inserts the transaction and its idempotency row in
// the caller's transaction, so both commit or neither does. The transaction
// context, including its deadline, governs both inserts.
func (r *Repository) CreateWithFingerprint(tx *gorm.DB, t *model.Transaction, fingerprint string) error {
	if err := tx.Create(t).Error; err != nil {
		return err
	}
	rec := &model.IdempotencyKey{Fingerprint: fingerprint, TransactionID: t.ID}
	return tx.Create(rec).Error
}

// MarkStatus performs the conditional status transition. Only pending rows
// are touched; the returned count tells the caller whether anything moved.
func (r *Repository) MarkStatus(ctx context.Context, externalID, status string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("external_id = ? AND status = ?", externalID, model.StatusPending).
		Update("status", status)
	return res.RowsAffected, res.Error
}

// GetByExternalID fetches one transaction by its external handle.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListRecent returns the newest transactions first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&txs).Error
	return txs, err
}

func cacheKey(externalID string) string { return fmt.Sprintf("tx:%s", externalID) }

// CacheTransaction writes Redis.
func (r *Repository) CacheTransaction(ctx context.Context, t *model.Transaction) error {
	if r.rdb == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, cacheKey(t.ExternalID), string(data), cacheTTL).Err()
}

// GetCachedTransaction reads Redis.
func (r *Repository) GetCachedTransaction(ctx context.Context, externalID string) (*model.Transaction, error) {
	if r.rdb == nil {
		return nil, ErrNotFound
	}
	str, err := r.rdb.Get(ctx, cacheKey(externalID)).Result()
	if err != nil {
		return nil, err
	}
	var t model.Transaction
	if err := json.Unmarshal([]byte(str), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// InvalidateCachedTransaction drops a stale cache entry.
func (r *Repository) InvalidateCachedTransaction(ctx context.Context, externalID string) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, cacheKey(externalID)).Err()
}
