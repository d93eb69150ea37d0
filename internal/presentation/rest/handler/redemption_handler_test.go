package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-server/internal/domain/reward"
)

func TestRedemptionHandler_Redeem(t *testing.T) {
	tests := []struct {
		name             string
		body             RedeemRequest
		caller           requestOption
		wantStatus       int
		wantError        string
		wantBalanceAfter string
	}{
		{
			name:             "正常系: 本人による引き換え",
			body:             RedeemRequest{MemberID: "member-001", RewardID: "RWD-COFFEE"},
			caller:           asMember("member-001"),
			wantStatus:       http.StatusCreated,
			wantBalanceAfter: "30",
		},
		{
			name:             "正常系: スタッフによる店頭での引き換え",
			body:             RedeemRequest{MemberID: "member-001", RewardID: "RWD-COFFEE", Channel: "in_store"},
			caller:           asStaff(),
			wantStatus:       http.StatusCreated,
			wantBalanceAfter: "30",
		},
		{
			name:       "異常系: 他の会員のポイントは使えない",
			body:       RedeemRequest{MemberID: "member-001", RewardID: "RWD-COFFEE"},
			caller:     asMember("member-002"),
			wantStatus: http.StatusForbidden,
			wantError:  http.StatusText(http.StatusForbidden),
		},
		{
			name:       "異常系: 特典IDなし",
			body:       RedeemRequest{MemberID: "member-001"},
			caller:     asMember("member-001"),
			wantStatus: http.StatusBadRequest,
			wantError:  http.StatusText(http.StatusBadRequest),
		},
		{
			name:       "異常系: チャネルが長すぎる",
			body:       RedeemRequest{MemberID: "member-001", RewardID: "RWD-COFFEE", Channel: strings.Repeat("c", 5000)},
			caller:     asMember("member-001"),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_channel",
		},
		{
			name:       "異常系: 残高不足",
			body:       RedeemRequest{MemberID: "member-001", RewardID: "RWD-MOVIE"},
			caller:     asMember("member-001"),
			wantStatus: http.StatusConflict,
			wantError:  "insufficient_points",
		},
		{
			name:       "異常系: 在庫切れ",
			body:       RedeemRequest{MemberID: "member-001", RewardID: "RWD-SOLDOUT"},
			caller:     asMember("member-001"),
			wantStatus: http.StatusConflict,
			wantError:  "out_of_stock",
		},
		{
			name:       "異常系: 特典が存在しない",
			body:       RedeemRequest{MemberID: "member-001", RewardID: "RWD-NONE"},
			caller:     asMember("member-001"),
			wantStatus: http.StatusNotFound,
			wantError:  "reward_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t)
			env.enroll(t, "member-001", "150")
			env.addReward(t, reward.MustNewReward("RWD-COFFEE", "コーヒー", 120, 5))
			env.addReward(t, reward.MustNewReward("RWD-MOVIE", "映画券", 500, 5))
			env.addReward(t, reward.MustNewReward("RWD-SOLDOUT", "限定品", 10, 0))

			rec := env.do(t, http.MethodPost, "/redemptions", tt.body, tt.caller)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantError != "" {
				var resp ErrorResponse
				decode(t, rec, &resp)
				assert.Equal(t, tt.wantError, resp.Error)
				return
			}

			var resp RedeemResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.wantBalanceAfter, resp.BalanceAfter)
			assert.False(t, resp.Replayed)
			assert.Equal(t, "pending", resp.Redemption.FulfillmentStatus)
			assert.Equal(t, "120", resp.Redemption.PointsRedeemed)
			assert.Equal(t, "1.20", resp.Redemption.MonetaryValue)
			assert.NotEmpty(t, resp.Redemption.ReferenceNumber)
			if tt.body.Channel != "" {
				assert.Equal(t, tt.body.Channel, resp.Redemption.Channel)
			} else {
				assert.Equal(t, "online", resp.Redemption.Channel)
			}
		})
	}
}

func TestRedemptionHandler_Redeem_Idempotency(t *testing.T) {
	env := newHandlerEnv(t)
	env.enroll(t, "member-001", "300")
	env.addReward(t, reward.MustNewReward("RWD-COFFEE", "コーヒー", 120, 5))
	body := RedeemRequest{MemberID: "member-001", RewardID: "RWD-COFFEE"}

	first := env.do(t, http.MethodPost, "/redemptions", body,
		asMember("member-001"), withHeader(IdempotencyKeyHeader, "app-1"))
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := env.do(t, http.MethodPost, "/redemptions", body,
		asMember("member-001"), withHeader(IdempotencyKeyHeader, "app-1"))
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	var r1, r2 RedeemResponse
	decode(t, first, &r1)
	decode(t, second, &r2)
	assert.True(t, r2.Replayed)
	assert.Equal(t, r1.Redemption.RedemptionID, r2.Redemption.RedemptionID)
	assert.Equal(t, "180", r2.BalanceAfter)

	rec := env.do(t, http.MethodGet, "/rewards/RWD-COFFEE", nil, asMember("member-001"))
	var rw RewardResponse
	decode(t, rec, &rw)
	assert.Equal(t, "4", rw.StockQuantity)
}

func TestRedemptionHandler_GetAndList(t *testing.T) {
	env := newHandlerEnv(t)
	env.enroll(t, "member-001", "300")
	env.enroll(t, "member-002", "")
	env.addReward(t, reward.MustNewReward("RWD-COFFEE", "コーヒー", 120, 5))

	var ids []string
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/redemptions",
			RedeemRequest{MemberID: "member-001", RewardID: "RWD-COFFEE"}, asMember("member-001"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp RedeemResponse
		decode(t, rec, &resp)
		ids = append(ids, resp.Redemption.RedemptionID)
	}

	t.Run("正常系: 本人は取得できる", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/redemptions/"+ids[0], nil, asMember("member-001"))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp RedemptionResponse
		decode(t, rec, &resp)
		assert.Equal(t, ids[0], resp.RedemptionID)
	})

	t.Run("異常系: 他の会員は取得できない", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/redemptions/"+ids[0], nil, asMember("member-002"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("異常系: 存在しない", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/redemptions/RDM-NONE", nil, asStaff())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("正常系: 一覧は新しい順", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/members/member-001/redemptions", nil, asMember("member-001"))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ListRedemptionsResponse
		decode(t, rec, &resp)
		require.Len(t, resp.Redemptions, 2)
		assert.ElementsMatch(t, ids, []string{resp.Redemptions[0].RedemptionID, resp.Redemptions[1].RedemptionID})
		assert.False(t, resp.Redemptions[0].CreatedAt.Before(resp.Redemptions[1].CreatedAt))
	})

	t.Run("正常系: 引き換えのない会員は空配列", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/members/member-002/redemptions", nil, asStaff())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"member_id":"member-002","redemptions":[]}`, rec.Body.String())
	})
}

func TestRedemptionHandler_UpdateFulfillmentStatus(t *testing.T) {
	tests := []struct {
		name       string
		steps      []string
		wantStatus int
		wantError  string
	}{
		{name: "正常系: 完了", steps: []string{"fulfilled"}, wantStatus: http.StatusOK},
		{name: "正常系: 取消", steps: []string{"cancelled"}, wantStatus: http.StatusOK},
		{name: "異常系: 完了後の取消", steps: []string{"fulfilled", "cancelled"}, wantStatus: http.StatusUnprocessableEntity, wantError: "invalid_status_transition"},
		{name: "異常系: pendingへの遷移", steps: []string{"pending"}, wantStatus: http.StatusUnprocessableEntity, wantError: "invalid_status_transition"},
		{name: "異常系: 未知のステータス", steps: []string{"shipped"}, wantStatus: http.StatusBadRequest, wantError: "invalid_fulfillment_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t)
			env.enroll(t, "member-001", "150")
			env.addReward(t, reward.MustNewReward("RWD-COFFEE", "コーヒー", 120, 5))

			rec := env.do(t, http.MethodPost, "/redemptions",
				RedeemRequest{MemberID: "member-001", RewardID: "RWD-COFFEE"}, asMember("member-001"))
			require.Equal(t, http.StatusCreated, rec.Code)
			var redeemed RedeemResponse
			decode(t, rec, &redeemed)

			for _, step := range tt.steps {
				rec = env.do(t, http.MethodPatch, "/redemptions/"+redeemed.Redemption.RedemptionID,
					UpdateFulfillmentStatusRequest{FulfillmentStatus: step}, asStaff())
			}
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantError != "" {
				var resp ErrorResponse
				decode(t, rec, &resp)
				assert.Equal(t, tt.wantError, resp.Error)
				return
			}
			var resp RedemptionResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.steps[len(tt.steps)-1], resp.FulfillmentStatus)

			// 取消してもポイントは戻らない
			rec = env.do(t, http.MethodGet, "/members/member-001", nil, asStaff())
			var m MemberResponse
			decode(t, rec, &m)
			assert.Equal(t, "30", m.AvailablePoints)
		})
	}
}
