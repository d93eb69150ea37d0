package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemberHandler_Enroll(t *testing.T) {
	tests := []struct {
		name       string
		memberID   string
		existing   bool
		wantStatus int
		wantError  string
	}{
		{name: "正常系: 入会", memberID: "member-001", wantStatus: http.StatusCreated},
		{name: "異常系: 登録済み", memberID: "member-001", existing: true, wantStatus: http.StatusConflict, wantError: "member_already_exists"},
		{name: "異常系: 不正な会員ID", memberID: "member 001", wantStatus: http.StatusBadRequest, wantError: "invalid_member_id"},
		{name: "異常系: 会員IDなし", memberID: "", wantStatus: http.StatusBadRequest, wantError: "invalid_member_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t)
			if tt.existing {
				env.enroll(t, tt.memberID, "")
			}

			rec := env.do(t, http.MethodPost, "/members", EnrollRequest{MemberID: tt.memberID}, asStaff())
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusCreated {
				var resp MemberResponse
				decode(t, rec, &resp)
				assert.Equal(t, tt.memberID, resp.MemberID)
				assert.Equal(t, "0", resp.AvailablePoints)
				assert.Equal(t, "0", resp.TotalPoints)
				assert.Equal(t, "0", resp.LifetimePoints)
			} else {
				var resp ErrorResponse
				decode(t, rec, &resp)
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

func TestMemberHandler_GetMember(t *testing.T) {
	env := newHandlerEnv(t)
	env.enroll(t, "member-001", "150")

	t.Run("正常系: 残高を文字列で返す", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/members/member-001", nil, asMember("member-001"))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp MemberResponse
		decode(t, rec, &resp)
		assert.Equal(t, "150", resp.AvailablePoints)
		assert.Equal(t, "150", resp.TotalPoints)
		assert.Equal(t, "150", resp.LifetimePoints)
	})

	t.Run("異常系: 会員が存在しない", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/members/unknown", nil, asStaff())
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var resp ErrorResponse
		decode(t, rec, &resp)
		assert.Equal(t, "member_not_found", resp.Error)
	})
}
