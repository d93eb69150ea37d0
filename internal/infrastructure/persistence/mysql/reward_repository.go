package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty-server/internal/domain/reward"
)

const rewardColumns = `reward_id, name, points_required, monetary_value, stock_quantity, status,
	valid_from, valid_until, partner_code, created_at, updated_at`

// RewardRepository MySQL実装のRewardRepository
type RewardRepository struct {
	db     *DB
	tracer trace.Tracer
}

var _ reward.RewardRepository = (*RewardRepository)(nil)

// NewRewardRepository 新しいRewardRepositoryを作成
func NewRewardRepository(db *DB) *RewardRepository {
	return &RewardRepository{
		db:     db,
		tracer: otel.Tracer("reward-repository"),
	}
}

// FindByID 特典IDで特典を取得
func (r *RewardRepository) FindByID(ctx context.Context, rewardID string) (*reward.Reward, error) {
	return r.find(ctx, "RewardRepository.FindByID", rewardID, false)
}

// FindByIDForUpdate 特典IDで特典を排他ロック付きで取得
func (r *RewardRepository) FindByIDForUpdate(ctx context.Context, rewardID string) (*reward.Reward, error) {
	return r.find(ctx, "RewardRepository.FindByIDForUpdate", rewardID, true)
}

func (r *RewardRepository) find(ctx context.Context, spanName, rewardID string, forUpdate bool) (*reward.Reward, error) {
	ctx, span := r.tracer.Start(ctx, spanName)
	defer span.End()

	span.SetAttributes(
		attribute.String("db.reward_id", rewardID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "rewards"),
		attribute.Bool("db.for_update", forUpdate),
	)

	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE reward_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rw, err := scanReward(r.db.conn(ctx).QueryRowContext(ctx, query, rewardID))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "reward not found")
		return nil, reward.ErrRewardNotFound
	}
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.Int64("db.stock_quantity", rw.StockQuantity()))
	span.SetStatus(otelcodes.Ok, "reward found")
	return rw, nil
}

// FindAll 特典一覧を取得
func (r *RewardRepository) FindAll(ctx context.Context, activeOnly bool) ([]*reward.Reward, error) {
	ctx, span := r.tracer.Start(ctx, "RewardRepository.FindAll")
	defer span.End()

	span.SetAttributes(
		attribute.Bool("db.active_only", activeOnly),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "rewards"),
	)

	query := `SELECT ` + rewardColumns + ` FROM rewards`
	var args []interface{}
	if activeOnly {
		query += ` WHERE status = ?`
		args = append(args, reward.RewardStatusActive.String())
	}
	query += ` ORDER BY points_required ASC, reward_id ASC`

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to query rewards: %w", err))
	}
	defer rows.Close()

	var rewards []*reward.Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, spanError(span, err)
		}
		rewards = append(rewards, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to iterate rewards: %w", err))
	}

	span.SetAttributes(attribute.Int("db.rows", len(rewards)))
	span.SetStatus(otelcodes.Ok, "rewards found")
	return rewards, nil
}

// Create 新しい特典を作成
func (r *RewardRepository) Create(ctx context.Context, rw *reward.Reward) error {
	ctx, span := r.tracer.Start(ctx, "RewardRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.reward_id", rw.RewardID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "rewards"),
	)

	query := `
		INSERT INTO rewards (` + rewardColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		rw.RewardID(),
		rw.Name(),
		rw.PointsRequired(),
		rw.MonetaryValue(),
		rw.StockQuantity(),
		rw.Status().String(),
		nullTime(rw.ValidFrom()),
		nullTime(rw.ValidUntil()),
		rw.PartnerCode(),
		rw.CreatedAt(),
		rw.UpdatedAt(),
	)
	if isDuplicateEntry(err, "") {
		span.SetStatus(otelcodes.Ok, "reward already exists")
		return reward.ErrRewardAlreadyExists
	}
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create reward: %w", err))
	}

	span.SetStatus(otelcodes.Ok, "reward created")
	return nil
}

// SaveStock 在庫数を保存（FindByIDForUpdate でロックした特典に対して使用する）
func (r *RewardRepository) SaveStock(ctx context.Context, rw *reward.Reward) error {
	ctx, span := r.tracer.Start(ctx, "RewardRepository.SaveStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.reward_id", rw.RewardID()),
		attribute.Int64("db.stock_quantity", rw.StockQuantity()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "rewards"),
	)

	query := `UPDATE rewards SET stock_quantity = ?, updated_at = ? WHERE reward_id = ?`
	result, err := r.db.conn(ctx).ExecContext(ctx, query, rw.StockQuantity(), time.Now(), rw.RewardID())
	if err != nil {
		return spanError(span, fmt.Errorf("failed to save reward stock: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return spanError(span, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return spanError(span, reward.ErrRewardNotFound)
	}

	span.SetStatus(otelcodes.Ok, "reward stock saved")
	return nil
}

func scanReward(row rowScanner) (*reward.Reward, error) {
	var (
		rewardID, name, status, partnerCode string
		pointsRequired, stockQuantity       int64
		monetaryValue                       decimal.Decimal
		validFrom, validUntil               sql.NullTime
		createdAt, updatedAt                time.Time
	)
	err := row.Scan(
		&rewardID, &name, &pointsRequired, &monetaryValue, &stockQuantity, &status,
		&validFrom, &validUntil, &partnerCode, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reward: %w", err)
	}

	rs, err := reward.NewRewardStatus(status)
	if err != nil {
		return nil, fmt.Errorf("invalid reward status %q: %w", status, err)
	}
	rw, err := reward.ReconstructReward(
		rewardID,
		name,
		pointsRequired,
		monetaryValue,
		stockQuantity,
		rs,
		validFrom.Time,
		validUntil.Time,
		partnerCode,
		createdAt,
		updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct reward entity: %w", err)
	}
	return rw, nil
}
