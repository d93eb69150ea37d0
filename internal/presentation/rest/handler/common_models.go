package handler

// ErrorResponse エラーレスポンス
// @Description エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error" example:"insufficient_points"`
	Message string `json:"message" example:"insufficient points"`
}
