package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	settlementapp "loyalty-server/internal/application/settlement"
	restmiddleware "loyalty-server/internal/presentation/rest/middleware"
)

// RedemptionHandler 特典引き換え関連ハンドラー
type RedemptionHandler struct {
	settlementService *settlementapp.SettlementApplicationService
}

// NewRedemptionHandler 新しいRedemptionHandlerを作成
func NewRedemptionHandler(settlementService *settlementapp.SettlementApplicationService) *RedemptionHandler {
	return &RedemptionHandler{
		settlementService: settlementService,
	}
}

// Redeem 引き換えハンドラー
// @Summary 特典を引き換え
// @Description ポイントの減算・在庫の減算・引き換え記録の作成を一つの取引で行います
// @Tags redemptions
// @Accept json
// @Produce json
// @Security Bearer
// @Param Idempotency-Key header string false "冪等キー"
// @Param request body RedeemRequest true "引き換えリクエスト"
// @Success 201 {object} RedeemResponse "引き換え成功"
// @Success 200 {object} RedeemResponse "冪等キーによる再送"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 403 {object} ErrorResponse "他の会員による引き換え"
// @Failure 404 {object} ErrorResponse "会員または特典が存在しない"
// @Failure 409 {object} ErrorResponse "残高不足または在庫切れ"
// @Failure 422 {object} ErrorResponse "特典が公開されていない"
// @Failure 503 {object} ErrorResponse "競合により再試行が必要"
// @Router /redemptions [post]
func (h *RedemptionHandler) Redeem(c echo.Context) error {
	var reqBody RedeemRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.MemberID == "" || reqBody.RewardID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "member_id and reward_id are required")
	}
	if err := authorizeMember(c, reqBody.MemberID); err != nil {
		return err
	}

	key, err := idempotencyKey(c, reqBody.IdempotencyKey)
	if err != nil {
		return err
	}

	resp, err := h.settlementService.Redeem(c.Request().Context(), &settlementapp.RedeemRequest{
		MemberID:       reqBody.MemberID,
		RewardID:       reqBody.RewardID,
		Channel:        reqBody.Channel,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, RedeemResponse{
		Redemption:   toRedemptionResponse(resp.Redemption),
		BalanceAfter: strconv.FormatInt(resp.BalanceAfter, 10),
		Replayed:     resp.Replayed,
	})
}

// GetRedemption 引き換え記録取得ハンドラー
// @Summary 引き換え記録を取得
// @Tags redemptions
// @Produce json
// @Security Bearer
// @Param redemption_id path string true "引き換えID"
// @Success 200 {object} RedemptionResponse "取得成功"
// @Failure 403 {object} ErrorResponse "他の会員の記録"
// @Failure 404 {object} ErrorResponse "引き換え記録が存在しない"
// @Router /redemptions/{redemption_id} [get]
func (h *RedemptionHandler) GetRedemption(c echo.Context) error {
	resp, err := h.settlementService.GetRedemption(c.Request().Context(), &settlementapp.GetRedemptionRequest{
		RedemptionID: c.Param("redemption_id"),
	})
	if err != nil {
		return err
	}
	if err := authorizeMember(c, resp.MemberID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toRedemptionResponse(resp))
}

// ListMemberRedemptions 会員の引き換え記録一覧ハンドラー
// @Summary 会員の引き換え記録一覧を取得
// @Description 新しい順に取得します
// @Tags redemptions
// @Produce json
// @Security Bearer
// @Param member_id path string true "会員ID" example(member-001)
// @Success 200 {object} ListRedemptionsResponse "取得成功"
// @Failure 404 {object} ErrorResponse "会員が存在しない"
// @Router /members/{member_id}/redemptions [get]
func (h *RedemptionHandler) ListMemberRedemptions(c echo.Context) error {
	resp, err := h.settlementService.ListMemberRedemptions(c.Request().Context(), &settlementapp.ListMemberRedemptionsRequest{
		MemberID: c.Param("member_id"),
	})
	if err != nil {
		return err
	}

	redemptions := make([]RedemptionResponse, len(resp.Redemptions))
	for i, r := range resp.Redemptions {
		redemptions[i] = toRedemptionResponse(r)
	}
	return c.JSON(http.StatusOK, ListRedemptionsResponse{
		MemberID:    resp.MemberID,
		Redemptions: redemptions,
	})
}

// UpdateFulfillmentStatus フルフィルメントステータス更新ハンドラー（管理API用）
// @Summary フルフィルメントステータスを更新
// @Description 取消してもポイントは戻りません。返還はreversal取引で行います
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param X-API-Key header string true "APIキー"
// @Param redemption_id path string true "引き換えID"
// @Param request body UpdateFulfillmentStatusRequest true "更新リクエスト"
// @Success 200 {object} RedemptionResponse "更新成功"
// @Failure 400 {object} ErrorResponse "不正なステータス"
// @Failure 404 {object} ErrorResponse "引き換え記録が存在しない"
// @Failure 422 {object} ErrorResponse "不正なステータス遷移"
// @Router /redemptions/{redemption_id} [patch]
func (h *RedemptionHandler) UpdateFulfillmentStatus(c echo.Context) error {
	var reqBody UpdateFulfillmentStatusRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.settlementService.UpdateFulfillmentStatus(c.Request().Context(), &settlementapp.UpdateFulfillmentStatusRequest{
		RedemptionID:      c.Param("redemption_id"),
		FulfillmentStatus: reqBody.FulfillmentStatus,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toRedemptionResponse(resp))
}

// authorizeMember 会員本人またはスタッフ以外を拒否する
func authorizeMember(c echo.Context, memberID string) error {
	p, ok := restmiddleware.PrincipalFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "principal not found")
	}
	if !p.IsStaff() && p.ID != memberID {
		return echo.NewHTTPError(http.StatusForbidden, "access to another member is not allowed")
	}
	return nil
}

func toRedemptionResponse(r *settlementapp.RedemptionResult) RedemptionResponse {
	return RedemptionResponse{
		RedemptionID:      r.RedemptionID,
		MemberID:          r.MemberID,
		RewardID:          r.RewardID,
		PointsRedeemed:    strconv.FormatInt(r.PointsRedeemed, 10),
		MonetaryValue:     r.MonetaryValue,
		FulfillmentStatus: r.FulfillmentStatus,
		Channel:           r.Channel,
		PartnerCode:       r.PartnerCode,
		ReferenceNumber:   r.ReferenceNumber,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
