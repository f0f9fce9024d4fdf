package handlers

import "github.com/kidlearn/server/internal/apperr"

type msgKey int

const (
	msgLoggedOut msgKey = iota
	msgResetSent
	msgCodeValid
	msgPasswordReset
	msgPasswordChanged
)

var messages = map[string]map[msgKey]string{
	apperr.LangVI: {
		msgLoggedOut:       "Đã đăng xuất",
		msgResetSent:       "Nếu email tồn tại, mã xác nhận đã được gửi",
		msgCodeValid:       "Mã xác nhận hợp lệ",
		msgPasswordReset:   "Đặt lại mật khẩu thành công",
		msgPasswordChanged: "Đổi mật khẩu thành công",
	},
	apperr.LangEN: {
		msgLoggedOut:       "Logged out",
		msgResetSent:       "If the email exists, a verification code has been sent",
		msgCodeValid:       "Verification code is valid",
		msgPasswordReset:   "Password has been reset",
		msgPasswordChanged: "Password changed",
	},
}

func message(lang string, key msgKey) string {
	msgs, ok := messages[lang]
	if !ok {
		msgs = messages[apperr.LangVI]
	}
	return msgs[key]
}
