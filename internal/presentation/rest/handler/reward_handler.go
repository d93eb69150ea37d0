package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	catalogapp "loyalty-server/internal/application/catalog"
)

// RewardHandler 特典カタログ関連ハンドラー
type RewardHandler struct {
	catalogService *catalogapp.CatalogApplicationService
}

// NewRewardHandler 新しいRewardHandlerを作成
func NewRewardHandler(catalogService *catalogapp.CatalogApplicationService) *RewardHandler {
	return &RewardHandler{
		catalogService: catalogService,
	}
}

// CreateReward 特典作成ハンドラー（管理API用）
// @Summary 特典を作成
// @Description 特典カタログに特典を追加します
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param X-API-Key header string true "APIキー"
// @Param request body CreateRewardRequest true "特典作成リクエスト"
// @Success 201 {object} RewardResponse "作成成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 409 {object} ErrorResponse "登録済み"
// @Router /rewards [post]
func (h *RewardHandler) CreateReward(c echo.Context) error {
	var reqBody CreateRewardRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	pointsRequired, err := strconv.ParseInt(reqBody.PointsRequired, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid points_required format")
	}
	stock, err := strconv.ParseInt(reqBody.StockQuantity, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid stock_quantity format")
	}

	req := &catalogapp.CreateRewardRequest{
		RewardID:       reqBody.RewardID,
		Name:           reqBody.Name,
		PointsRequired: pointsRequired,
		MonetaryValue:  reqBody.MonetaryValue,
		StockQuantity:  stock,
		Status:         reqBody.Status,
		PartnerCode:    reqBody.PartnerCode,
	}
	if reqBody.ValidFrom != nil {
		req.ValidFrom = *reqBody.ValidFrom
	}
	if reqBody.ValidUntil != nil {
		req.ValidUntil = *reqBody.ValidUntil
	}

	resp, err := h.catalogService.CreateReward(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toRewardResponse(resp))
}

// ListRewards 特典一覧ハンドラー
// @Summary 特典一覧を取得
// @Description 特典を必要ポイントの昇順で取得します
// @Tags rewards
// @Produce json
// @Security Bearer
// @Param active query bool false "公開中の特典のみ"
// @Success 200 {object} ListRewardsResponse "取得成功"
// @Router /rewards [get]
func (h *RewardHandler) ListRewards(c echo.Context) error {
	activeOnly := false
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid active parameter")
		}
		activeOnly = b
	}

	resp, err := h.catalogService.ListRewards(c.Request().Context(), &catalogapp.ListRewardsRequest{
		ActiveOnly: activeOnly,
	})
	if err != nil {
		return err
	}

	rewards := make([]RewardResponse, len(resp.Rewards))
	for i, r := range resp.Rewards {
		rewards[i] = toRewardResponse(r)
	}
	return c.JSON(http.StatusOK, ListRewardsResponse{Rewards: rewards})
}

// GetReward 特典取得ハンドラー
// @Summary 特典を取得
// @Tags rewards
// @Produce json
// @Security Bearer
// @Param reward_id path string true "特典ID" example(RWD-COFFEE)
// @Success 200 {object} RewardResponse "取得成功"
// @Failure 404 {object} ErrorResponse "特典が存在しない"
// @Router /rewards/{reward_id} [get]
func (h *RewardHandler) GetReward(c echo.Context) error {
	resp, err := h.catalogService.GetReward(c.Request().Context(), &catalogapp.GetRewardRequest{
		RewardID: c.Param("reward_id"),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toRewardResponse(resp))
}

func toRewardResponse(r *catalogapp.RewardResult) RewardResponse {
	return RewardResponse{
		RewardID:       r.RewardID,
		Name:           r.Name,
		PointsRequired: strconv.FormatInt(r.PointsRequired, 10),
		MonetaryValue:  r.MonetaryValue,
		StockQuantity:  strconv.FormatInt(r.StockQuantity, 10),
		Status:         r.Status,
		ValidFrom:      optionalTime(r.ValidFrom),
		ValidUntil:     optionalTime(r.ValidUntil),
		PartnerCode:    r.PartnerCode,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// optionalTime ゼロ値は期限なしとして省略する
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
