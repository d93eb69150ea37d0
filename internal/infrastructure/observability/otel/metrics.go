package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics メトリクス定義
type Metrics struct {
	// 台帳エントリ数
	LedgerEntryCount metric.Int64Counter

	// 移動したポイント量
	PointsMoved metric.Int64Counter

	// 引き換え結果
	RedemptionCount metric.Int64Counter

	// 特典の在庫数
	RewardStock metric.Int64Gauge

	// ロック競合による再実行
	TxRetryCount metric.Int64Counter

	// 台帳の整合性違反
	IntegrityViolationCount metric.Int64Counter

	// 冪等キーによる再送応答
	IdempotentReplayCount metric.Int64Counter

	// リクエスト数
	RequestCount metric.Int64Counter

	// レスポンス時間
	ResponseTime metric.Float64Histogram

	// エラー率
	ErrorCount metric.Int64Counter
}

// NewMetrics 新しいMetricsを作成
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	ledgerEntryCount, err := meter.Int64Counter(
		"ledger_entries_total",
		metric.WithDescription("Total number of ledger entries appended"),
	)
	if err != nil {
		return nil, err
	}

	pointsMoved, err := meter.Int64Counter(
		"ledger_points_moved_total",
		metric.WithDescription("Total magnitude of points moved by ledger entries"),
	)
	if err != nil {
		return nil, err
	}

	redemptionCount, err := meter.Int64Counter(
		"redemptions_total",
		metric.WithDescription("Total number of redemption attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	rewardStock, err := meter.Int64Gauge(
		"reward_stock_quantity",
		metric.WithDescription("Remaining stock of a reward after settlement"),
	)
	if err != nil {
		return nil, err
	}

	txRetryCount, err := meter.Int64Counter(
		"ledger_tx_retries_total",
		metric.WithDescription("Total number of transaction retries caused by lock conflicts"),
	)
	if err != nil {
		return nil, err
	}

	integrityViolationCount, err := meter.Int64Counter(
		"ledger_integrity_violations_total",
		metric.WithDescription("Total number of ledger replay mismatches"),
	)
	if err != nil {
		return nil, err
	}

	idempotentReplayCount, err := meter.Int64Counter(
		"idempotent_replays_total",
		metric.WithDescription("Total number of requests answered from an earlier result"),
	)
	if err != nil {
		return nil, err
	}

	requestCount, err := meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of requests"),
	)
	if err != nil {
		return nil, err
	}

	responseTime, err := meter.Float64Histogram(
		"response_time_seconds",
		metric.WithDescription("Response time in seconds"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		LedgerEntryCount:        ledgerEntryCount,
		PointsMoved:             pointsMoved,
		RedemptionCount:         redemptionCount,
		RewardStock:             rewardStock,
		TxRetryCount:            txRetryCount,
		IntegrityViolationCount: integrityViolationCount,
		IdempotentReplayCount:   idempotentReplayCount,
		RequestCount:            requestCount,
		ResponseTime:            responseTime,
		ErrorCount:              errorCount,
	}, nil
}

// RecordLedgerEntry 台帳エントリの追記を記録
func (m *Metrics) RecordLedgerEntry(ctx context.Context, entryType string, magnitude int64) {
	attrs := metric.WithAttributes(attribute.String("entry_type", entryType))
	m.LedgerEntryCount.Add(ctx, 1, attrs)
	m.PointsMoved.Add(ctx, magnitude, attrs)
}

// RecordRedemption 引き換えの結果を記録
func (m *Metrics) RecordRedemption(ctx context.Context, outcome string) {
	m.RedemptionCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRewardStock 特典の在庫数を記録
func (m *Metrics) RecordRewardStock(ctx context.Context, rewardID string, stock int64) {
	m.RewardStock.Record(ctx, stock,
		metric.WithAttributes(
			attribute.String("reward_id", rewardID),
		),
	)
}

// RecordTxRetry トランザクションの再実行を記録
func (m *Metrics) RecordTxRetry(ctx context.Context) {
	m.TxRetryCount.Add(ctx, 1)
}

// RecordIntegrityViolation 台帳の整合性違反を記録
func (m *Metrics) RecordIntegrityViolation(ctx context.Context, memberID string) {
	m.IntegrityViolationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("member_id", memberID),
		),
	)
}

// RecordIdempotentReplay 冪等キーによる再送応答を記録
func (m *Metrics) RecordIdempotentReplay(ctx context.Context, operation string) {
	m.IdempotentReplayCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
		),
	)
}

// RecordRequest リクエストを記録
func (m *Metrics) RecordRequest(ctx context.Context, method, path string) {
	m.RequestCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordResponseTime レスポンス時間を記録
func (m *Metrics) RecordResponseTime(ctx context.Context, method, path string, duration float64) {
	m.ResponseTime.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordError エラーを記録
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	m.ErrorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error_type", errorType),
		),
	)
}
