package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	ledgerapp "loyalty-server/internal/application/ledger"
)

// IdempotencyKeyHeader 冪等キーを渡すリクエストヘッダー
const IdempotencyKeyHeader = "Idempotency-Key"

// TransactionHandler ポイント取引関連ハンドラー
type TransactionHandler struct {
	ledgerService *ledgerapp.LedgerApplicationService
}

// NewTransactionHandler 新しいTransactionHandlerを作成
func NewTransactionHandler(ledgerService *ledgerapp.LedgerApplicationService) *TransactionHandler {
	return &TransactionHandler{
		ledgerService: ledgerService,
	}
}

// ApplyTransaction 記帳ハンドラー
// @Summary ポイント取引を記帳
// @Description 獲得・ボーナス・利用・調整・取消のいずれかを記帳し、残高を更新します
// @Tags transactions
// @Accept json
// @Produce json
// @Security Bearer
// @Param member_id path string true "会員ID" example(member-001)
// @Param Idempotency-Key header string false "冪等キー"
// @Param request body ApplyTransactionRequest true "記帳リクエスト"
// @Success 201 {object} ApplyTransactionResponse "記帳成功"
// @Success 200 {object} ApplyTransactionResponse "冪等キーによる再送"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 404 {object} ErrorResponse "会員が存在しない"
// @Failure 409 {object} ErrorResponse "残高不足または冪等キーの再利用"
// @Failure 503 {object} ErrorResponse "競合により再試行が必要"
// @Router /members/{member_id}/transactions [post]
func (h *TransactionHandler) ApplyTransaction(c echo.Context) error {
	var reqBody ApplyTransactionRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	points, err := strconv.ParseInt(reqBody.Points, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid points format")
	}

	key, err := idempotencyKey(c, reqBody.IdempotencyKey)
	if err != nil {
		return err
	}

	resp, err := h.ledgerService.ApplyTransaction(c.Request().Context(), &ledgerapp.ApplyTransactionRequest{
		MemberID:        c.Param("member_id"),
		TransactionType: reqBody.TransactionType,
		Points:          points,
		Description:     reqBody.Description,
		RuleID:          reqBody.RuleID,
		RewardID:        reqBody.RewardID,
		IdempotencyKey:  key,
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, ApplyTransactionResponse{
		Entry:    toEntryResponse(resp.Entry),
		Replayed: resp.Replayed,
	})
}

// GetLedger 台帳取得ハンドラー
// @Summary 台帳を取得
// @Description 会員の台帳エントリを時系列順に取得します
// @Tags transactions
// @Produce json
// @Security Bearer
// @Param member_id path string true "会員ID" example(member-001)
// @Success 200 {object} LedgerResponse "取得成功"
// @Failure 404 {object} ErrorResponse "会員が存在しない"
// @Router /members/{member_id}/transactions [get]
func (h *TransactionHandler) GetLedger(c echo.Context) error {
	resp, err := h.ledgerService.GetLedger(c.Request().Context(), &ledgerapp.GetLedgerRequest{
		MemberID: c.Param("member_id"),
	})
	if err != nil {
		return err
	}

	entries := make([]EntryResponse, len(resp.Entries))
	for i, e := range resp.Entries {
		entries[i] = toEntryResponse(e)
	}
	return c.JSON(http.StatusOK, LedgerResponse{
		MemberID: resp.MemberID,
		Entries:  entries,
	})
}

// VerifyLedger 台帳検証ハンドラー（管理API用）
// @Summary 台帳を検証
// @Description 台帳を再計算し、保存済みの残高と一致するか検証します
// @Tags admin
// @Produce json
// @Security Bearer
// @Param X-API-Key header string true "APIキー"
// @Param member_id path string true "会員ID" example(member-001)
// @Success 200 {object} VerifyLedgerResponse "一致"
// @Failure 404 {object} ErrorResponse "会員が存在しない"
// @Failure 500 {object} ErrorResponse "整合性違反"
// @Router /members/{member_id}/ledger/verify [get]
func (h *TransactionHandler) VerifyLedger(c echo.Context) error {
	resp, err := h.ledgerService.VerifyLedger(c.Request().Context(), &ledgerapp.VerifyLedgerRequest{
		MemberID: c.Param("member_id"),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, VerifyLedgerResponse{
		MemberID:        resp.MemberID,
		AvailablePoints: strconv.FormatInt(resp.AvailablePoints, 10),
		EntryCount:      resp.EntryCount,
		Status:          "consistent",
	})
}

// idempotencyKey ボディとヘッダーの冪等キーを一つにまとめる
func idempotencyKey(c echo.Context, bodyKey string) (string, error) {
	headerKey := c.Request().Header.Get(IdempotencyKeyHeader)
	switch {
	case bodyKey == "":
		return headerKey, nil
	case headerKey == "" || headerKey == bodyKey:
		return bodyKey, nil
	default:
		return "", echo.NewHTTPError(http.StatusBadRequest, "idempotency key in header and body differ")
	}
}

func toEntryResponse(e *ledgerapp.EntryResult) EntryResponse {
	return EntryResponse{
		ReferenceNumber: e.ReferenceNumber,
		MemberID:        e.MemberID,
		TransactionType: e.TransactionType,
		Points:          strconv.FormatInt(e.Points, 10),
		BalanceAfter:    strconv.FormatInt(e.BalanceAfter, 10),
		RuleID:          e.RuleID,
		RewardID:        e.RewardID,
		RedemptionID:    e.RedemptionID,
		Description:     e.Description,
		IdempotencyKey:  e.IdempotencyKey,
		CreatedAt:       e.CreatedAt,
	}
}
