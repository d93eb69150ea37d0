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

	"loyalty-server/internal/domain/ledger"
)

const ledgerColumns = `reference_number, member_id, transaction_type, points, balance_after,
	rule_id, reward_id, redemption_id, description, idempotency_key, created_at`

// LedgerRepository MySQL実装のLedgerRepository
type LedgerRepository struct {
	db     *DB
	tracer trace.Tracer
}

var _ ledger.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository 新しいLedgerRepositoryを作成
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{
		db:     db,
		tracer: otel.Tracer("ledger-repository"),
	}
}

// Append エントリを追記
func (r *LedgerRepository) Append(ctx context.Context, e *ledger.Entry) error {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.Append")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.reference_number", e.ReferenceNumber()),
		attribute.String("db.member_id", e.MemberID()),
		attribute.String("db.transaction_type", e.EntryType().String()),
		attribute.Int64("db.points", e.Points()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "ledger_entries"),
	)

	links := e.Links()
	query := `
		INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		e.ReferenceNumber(),
		e.MemberID(),
		e.EntryType().String(),
		e.Points(),
		e.BalanceAfter(),
		nullString(links.RuleID),
		nullString(links.RewardID),
		nullString(links.RedemptionID),
		e.Description(),
		nullString(e.IdempotencyKey()),
		e.CreatedAt(),
	)
	switch {
	case isDuplicateEntry(err, "uk_ledger_idempotency_key"):
		span.SetStatus(otelcodes.Ok, "duplicate idempotency key")
		return ledger.ErrDuplicateIdempotencyKey
	case isDuplicateEntry(err, "uk_ledger_reference_number"):
		return spanError(span, ledger.ErrDuplicateReferenceNumber)
	case err != nil:
		return spanError(span, fmt.Errorf("failed to append ledger entry: %w", err))
	}

	span.SetStatus(otelcodes.Ok, "ledger entry appended")
	return nil
}

// FindByMemberID 会員の全エントリを追記順に取得
func (r *LedgerRepository) FindByMemberID(ctx context.Context, memberID string) ([]*ledger.Entry, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.FindByMemberID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.member_id", memberID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "ledger_entries"),
	)

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE member_id = ? ORDER BY id ASC`
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to query ledger entries: %w", err))
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, spanError(span, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to iterate ledger entries: %w", err))
	}

	span.SetAttributes(attribute.Int("db.rows", len(entries)))
	span.SetStatus(otelcodes.Ok, "ledger entries found")
	return entries, nil
}

// FindByReferenceNumber 参照番号でエントリを取得
func (r *LedgerRepository) FindByReferenceNumber(ctx context.Context, referenceNumber string) (*ledger.Entry, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.FindByReferenceNumber")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.reference_number", referenceNumber),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "ledger_entries"),
	)

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE reference_number = ?`
	return r.findOne(ctx, span, query, referenceNumber)
}

// FindByIdempotencyKey 会員IDと冪等キーでエントリを取得
func (r *LedgerRepository) FindByIdempotencyKey(ctx context.Context, memberID, idempotencyKey string) (*ledger.Entry, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.FindByIdempotencyKey")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.member_id", memberID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "ledger_entries"),
	)

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE member_id = ? AND idempotency_key = ?`
	return r.findOne(ctx, span, query, memberID, idempotencyKey)
}

func (r *LedgerRepository) findOne(ctx context.Context, span trace.Span, query string, args ...interface{}) (*ledger.Entry, error) {
	e, err := scanEntry(r.db.conn(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "ledger entry not found")
		return nil, ledger.ErrEntryNotFound
	}
	if err != nil {
		return nil, spanError(span, err)
	}
	span.SetStatus(otelcodes.Ok, "ledger entry found")
	return e, nil
}

// rowScanner *sql.Row と *sql.Rows の共通部分
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var (
		referenceNumber, memberID, entryType, description string
		points, balanceAfter                              int64
		ruleID, rewardID, redemptionID, idempotencyKey    sql.NullString
		createdAt                                         time.Time
	)
	err := row.Scan(
		&referenceNumber, &memberID, &entryType, &points, &balanceAfter,
		&ruleID, &rewardID, &redemptionID, &description, &idempotencyKey, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	et, err := ledger.NewEntryType(entryType)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction type %q: %w", entryType, err)
	}
	e, err := ledger.ReconstructEntry(
		referenceNumber,
		memberID,
		et,
		points,
		balanceAfter,
		ledger.Links{
			RuleID:       ruleID.String,
			RewardID:     rewardID.String,
			RedemptionID: redemptionID.String,
		},
		description,
		idempotencyKey.String,
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct ledger entry: %w", err)
	}
	return e, nil
}
