package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/transaction"
)

const memberColumns = `member_id, available_points, total_points, lifetime_points, version, created_at, updated_at`

// MemberRepository MySQL実装のMemberRepository
type MemberRepository struct {
	db     *DB
	tracer trace.Tracer
}

var _ member.MemberRepository = (*MemberRepository)(nil)

// NewMemberRepository 新しいMemberRepositoryを作成
func NewMemberRepository(db *DB) *MemberRepository {
	return &MemberRepository{
		db:     db,
		tracer: otel.Tracer("member-repository"),
	}
}

// FindByID 会員IDで会員を取得
func (r *MemberRepository) FindByID(ctx context.Context, memberID string) (*member.Member, error) {
	return r.find(ctx, "MemberRepository.FindByID", memberID, false)
}

// FindByIDForUpdate 会員IDで会員を排他ロック付きで取得
func (r *MemberRepository) FindByIDForUpdate(ctx context.Context, memberID string) (*member.Member, error) {
	return r.find(ctx, "MemberRepository.FindByIDForUpdate", memberID, true)
}

func (r *MemberRepository) find(ctx context.Context, spanName, memberID string, forUpdate bool) (*member.Member, error) {
	ctx, span := r.tracer.Start(ctx, spanName)
	defer span.End()

	span.SetAttributes(
		attribute.String("db.member_id", memberID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "members"),
		attribute.Bool("db.for_update", forUpdate),
	)

	query := `SELECT ` + memberColumns + ` FROM members WHERE member_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		id                         string
		available, total, lifetime int64
		version                    int
		createdAt, updatedAt       time.Time
	)
	err := r.db.conn(ctx).QueryRowContext(ctx, query, memberID).Scan(
		&id, &available, &total, &lifetime, &version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "member not found")
		return nil, member.ErrMemberNotFound
	}
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to find member: %w", err))
	}

	m, err := member.ReconstructMember(id, available, total, lifetime, version, createdAt, updatedAt)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to reconstruct member entity: %w", err))
	}

	span.SetAttributes(
		attribute.Int64("db.available_points", available),
		attribute.Int("db.version", version),
	)
	span.SetStatus(otelcodes.Ok, "member found")
	return m, nil
}

// Create 新しい会員を作成
func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	ctx, span := r.tracer.Start(ctx, "MemberRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.member_id", m.MemberID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "members"),
	)

	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		m.MemberID(),
		m.AvailablePoints(),
		m.TotalPoints(),
		m.LifetimePoints(),
		m.Version(),
		m.CreatedAt(),
		m.UpdatedAt(),
	)
	if isDuplicateEntry(err, "") {
		span.SetStatus(otelcodes.Ok, "member already exists")
		return member.ErrMemberAlreadyExists
	}
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create member: %w", err))
	}

	span.SetStatus(otelcodes.Ok, "member created")
	return nil
}

// Save 会員の残高を保存（楽観的ロック対応）
// 保存に成功すると会員のバージョンを進める
func (r *MemberRepository) Save(ctx context.Context, m *member.Member) error {
	ctx, span := r.tracer.Start(ctx, "MemberRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.member_id", m.MemberID()),
		attribute.Int64("db.available_points", m.AvailablePoints()),
		attribute.Int("db.version", m.Version()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "members"),
	)

	query := `
		UPDATE members
		SET available_points = ?, total_points = ?, lifetime_points = ?, version = version + 1, updated_at = ?
		WHERE member_id = ? AND version = ?
	`
	result, err := r.db.conn(ctx).ExecContext(ctx, query,
		m.AvailablePoints(),
		m.TotalPoints(),
		m.LifetimePoints(),
		time.Now(),
		m.MemberID(),
		m.Version(),
	)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to save member: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return spanError(span, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return spanError(span, fmt.Errorf("%w: member version mismatch", transaction.ErrConflict))
	}

	m.IncrementVersion()
	span.SetStatus(otelcodes.Ok, "member saved")
	return nil
}
