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

	"loyalty-server/internal/domain/redemption"
)

const redemptionColumns = `redemption_id, member_id, reward_id, points_redeemed, monetary_value,
	fulfillment_status, channel, partner_code, reference_number, idempotency_key, created_at, updated_at`

// RedemptionRepository MySQL実装のRedemptionRepository
type RedemptionRepository struct {
	db     *DB
	tracer trace.Tracer
}

var _ redemption.RedemptionRepository = (*RedemptionRepository)(nil)

// NewRedemptionRepository 新しいRedemptionRepositoryを作成
func NewRedemptionRepository(db *DB) *RedemptionRepository {
	return &RedemptionRepository{
		db:     db,
		tracer: otel.Tracer("redemption-repository"),
	}
}

// Create 引き換え記録を作成
func (r *RedemptionRepository) Create(ctx context.Context, rd *redemption.Redemption) error {
	ctx, span := r.tracer.Start(ctx, "RedemptionRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.redemption_id", rd.RedemptionID()),
		attribute.String("db.member_id", rd.MemberID()),
		attribute.String("db.reward_id", rd.RewardID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "redemptions"),
	)

	query := `
		INSERT INTO redemptions (` + redemptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		rd.RedemptionID(),
		rd.MemberID(),
		rd.RewardID(),
		rd.PointsRedeemed(),
		rd.MonetaryValue(),
		rd.Status().String(),
		rd.Channel(),
		rd.PartnerCode(),
		rd.ReferenceNumber(),
		nullString(rd.IdempotencyKey()),
		rd.CreatedAt(),
		rd.UpdatedAt(),
	)
	if isDuplicateEntry(err, "uk_redemptions_idempotency_key") {
		span.SetStatus(otelcodes.Ok, "duplicate idempotency key")
		return redemption.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create redemption: %w", err))
	}

	span.SetStatus(otelcodes.Ok, "redemption created")
	return nil
}

// FindByID 引き換えIDで取得
func (r *RedemptionRepository) FindByID(ctx context.Context, redemptionID string) (*redemption.Redemption, error) {
	return r.findOne(ctx, "RedemptionRepository.FindByID",
		`SELECT `+redemptionColumns+` FROM redemptions WHERE redemption_id = ?`, redemptionID)
}

// FindByIDForUpdate 引き換えIDで排他ロック付きで取得
func (r *RedemptionRepository) FindByIDForUpdate(ctx context.Context, redemptionID string) (*redemption.Redemption, error) {
	return r.findOne(ctx, "RedemptionRepository.FindByIDForUpdate",
		`SELECT `+redemptionColumns+` FROM redemptions WHERE redemption_id = ? FOR UPDATE`, redemptionID)
}

// FindByIdempotencyKey 会員IDと冪等キーで取得
func (r *RedemptionRepository) FindByIdempotencyKey(ctx context.Context, memberID, idempotencyKey string) (*redemption.Redemption, error) {
	return r.findOne(ctx, "RedemptionRepository.FindByIdempotencyKey",
		`SELECT `+redemptionColumns+` FROM redemptions WHERE member_id = ? AND idempotency_key = ?`, memberID, idempotencyKey)
}

func (r *RedemptionRepository) findOne(ctx context.Context, spanName, query string, args ...interface{}) (*redemption.Redemption, error) {
	ctx, span := r.tracer.Start(ctx, spanName)
	defer span.End()

	span.SetAttributes(
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "redemptions"),
	)

	rd, err := scanRedemption(r.db.conn(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "redemption not found")
		return nil, redemption.ErrRedemptionNotFound
	}
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.String("db.redemption_id", rd.RedemptionID()))
	span.SetStatus(otelcodes.Ok, "redemption found")
	return rd, nil
}

// FindByMemberID 会員の引き換え記録を新しい順に取得
func (r *RedemptionRepository) FindByMemberID(ctx context.Context, memberID string) ([]*redemption.Redemption, error) {
	ctx, span := r.tracer.Start(ctx, "RedemptionRepository.FindByMemberID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.member_id", memberID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "redemptions"),
	)

	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE member_id = ? ORDER BY created_at DESC, redemption_id DESC`
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to query redemptions: %w", err))
	}
	defer rows.Close()

	var redemptions []*redemption.Redemption
	for rows.Next() {
		rd, err := scanRedemption(rows)
		if err != nil {
			return nil, spanError(span, err)
		}
		redemptions = append(redemptions, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to iterate redemptions: %w", err))
	}

	span.SetAttributes(attribute.Int("db.rows", len(redemptions)))
	span.SetStatus(otelcodes.Ok, "redemptions found")
	return redemptions, nil
}

// UpdateStatus フルフィルメントステータスを更新
func (r *RedemptionRepository) UpdateStatus(ctx context.Context, rd *redemption.Redemption) error {
	ctx, span := r.tracer.Start(ctx, "RedemptionRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.redemption_id", rd.RedemptionID()),
		attribute.String("db.fulfillment_status", rd.Status().String()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "redemptions"),
	)

	query := `UPDATE redemptions SET fulfillment_status = ?, updated_at = ? WHERE redemption_id = ?`
	result, err := r.db.conn(ctx).ExecContext(ctx, query, rd.Status().String(), rd.UpdatedAt(), rd.RedemptionID())
	if err != nil {
		return spanError(span, fmt.Errorf("failed to update redemption status: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return spanError(span, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return spanError(span, redemption.ErrRedemptionNotFound)
	}

	span.SetStatus(otelcodes.Ok, "redemption status updated")
	return nil
}

func scanRedemption(row rowScanner) (*redemption.Redemption, error) {
	var (
		redemptionID, memberID, rewardID, status string
		channel, partnerCode, referenceNumber    string
		pointsRedeemed                           int64
		monetaryValue                            decimal.Decimal
		idempotencyKey                           sql.NullString
		createdAt, updatedAt                     time.Time
	)
	err := row.Scan(
		&redemptionID, &memberID, &rewardID, &pointsRedeemed, &monetaryValue,
		&status, &channel, &partnerCode, &referenceNumber, &idempotencyKey, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan redemption: %w", err)
	}

	fs, err := redemption.NewFulfillmentStatus(status)
	if err != nil {
		return nil, fmt.Errorf("invalid fulfillment status %q: %w", status, err)
	}
	rd, err := redemption.ReconstructRedemption(
		redemptionID,
		memberID,
		rewardID,
		pointsRedeemed,
		monetaryValue,
		fs,
		channel,
		partnerCode,
		referenceNumber,
		idempotencyKey.String,
		createdAt,
		updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct redemption entity: %w", err)
	}
	return rd, nil
}
