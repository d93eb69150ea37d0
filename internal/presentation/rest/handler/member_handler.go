package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	membershipapp "loyalty-server/internal/application/membership"
)

// MemberHandler 会員関連ハンドラー
type MemberHandler struct {
	membershipService *membershipapp.MembershipApplicationService
}

// NewMemberHandler 新しいMemberHandlerを作成
func NewMemberHandler(membershipService *membershipapp.MembershipApplicationService) *MemberHandler {
	return &MemberHandler{
		membershipService: membershipService,
	}
}

// Enroll 入会ハンドラー（管理API用）
// @Summary 会員を登録
// @Description 残高0の会員アカウントを作成します
// @Tags members
// @Accept json
// @Produce json
// @Security Bearer
// @Param X-API-Key header string true "APIキー"
// @Param request body EnrollRequest true "入会リクエスト"
// @Success 201 {object} MemberResponse "登録成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 409 {object} ErrorResponse "登録済み"
// @Router /members [post]
func (h *MemberHandler) Enroll(c echo.Context) error {
	var reqBody EnrollRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.membershipService.Enroll(c.Request().Context(), &membershipapp.EnrollRequest{
		MemberID: reqBody.MemberID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toMemberResponse(resp))
}

// GetMember 会員取得ハンドラー
// @Summary 会員を取得
// @Description 会員の利用可能・累計・生涯ポイントを取得します
// @Tags members
// @Produce json
// @Security Bearer
// @Param member_id path string true "会員ID" example(member-001)
// @Success 200 {object} MemberResponse "取得成功"
// @Failure 403 {object} ErrorResponse "権限なし"
// @Failure 404 {object} ErrorResponse "会員が存在しない"
// @Router /members/{member_id} [get]
func (h *MemberHandler) GetMember(c echo.Context) error {
	resp, err := h.membershipService.GetMember(c.Request().Context(), &membershipapp.GetMemberRequest{
		MemberID: c.Param("member_id"),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toMemberResponse(resp))
}

func toMemberResponse(m *membershipapp.MemberResult) MemberResponse {
	return MemberResponse{
		MemberID:        m.MemberID,
		AvailablePoints: strconv.FormatInt(m.AvailablePoints, 10),
		TotalPoints:     strconv.FormatInt(m.TotalPoints, 10),
		LifetimePoints:  strconv.FormatInt(m.LifetimePoints, 10),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
