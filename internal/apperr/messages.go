package apperr

import (
	"fmt"
	"strings"
)

const (
	LangVI = "vi"
	LangEN = "en"
)

var catalog = map[string]map[Kind]string{
	LangVI: {
		KindValidation:         "Dữ liệu không hợp lệ",
		KindConflict:           "Email đã tồn tại",
		KindInvalidCredentials: "Sai thông tin đăng nhập",
		KindAccountLocked:      "Tài khoản đã bị khóa",
		KindTrialExpired:       "Tài khoản dùng thử đã hết hạn. Vui lòng liên hệ admin để kích hoạt tài khoản.",
		KindNotFound:           "Không tìm thấy hoặc đã hết hiệu lực",
		KindLocked:             "Bạn đã nhập sai quá nhiều lần. Vui lòng thử lại sau %d giây",
		KindExpired:            "Mã xác nhận đã hết hạn",
		KindWrongCode:          "Mã xác nhận không đúng. Bạn còn %d lần thử",
		KindInvalidToken:       "Token không hợp lệ",
		KindUnauthorized:       "Chưa xác thực",
		KindForbidden:          "Không có quyền truy cập",
		KindInvalidState:       "Thao tác không hợp lệ với tài khoản này",
		KindRateLimited:        "Quá nhiều yêu cầu, vui lòng thử lại sau",
		KindEmailNotConfigured: "Dịch vụ email chưa được cấu hình",
		KindEmailFailed:        "Không thể gửi email, vui lòng thử lại sau",
		KindInternal:           "Lỗi máy chủ",
	},
	LangEN: {
		KindValidation:         "Invalid input",
		KindConflict:           "Email already registered",
		KindInvalidCredentials: "Invalid email or password",
		KindAccountLocked:      "Account is locked",
		KindTrialExpired:       "Your trial has expired. Please contact an admin to activate your account.",
		KindNotFound:           "Not found or no longer valid",
		KindLocked:             "Too many wrong attempts. Try again in %d seconds",
		KindExpired:            "The code has expired",
		KindWrongCode:          "Wrong code. %d attempts remaining",
		KindInvalidToken:       "Invalid token",
		KindUnauthorized:       "Unauthorized",
		KindForbidden:          "Forbidden",
		KindInvalidState:       "Operation not allowed for this account",
		KindRateLimited:        "Too many requests, try again later",
		KindEmailNotConfigured: "Email service is not configured",
		KindEmailFailed:        "Could not send email, try again later",
		KindInternal:           "Internal server error",
	},
}

// Message renders the user-facing text for e in lang, falling back to Vietnamese.
func Message(e *Error, lang string) string {
	msgs, ok := catalog[NormalizeLang(lang)]
	if !ok {
		msgs = catalog[LangVI]
	}
	text, ok := msgs[e.Kind]
	if !ok {
		return string(e.Kind)
	}
	switch e.Kind {
	case KindLocked:
		return fmt.Sprintf(text, e.RetryAfter)
	case KindWrongCode:
		return fmt.Sprintf(text, e.RemainingAttempts)
	case KindValidation:
		if e.Detail != "" {
			return text + ": " + e.Detail
		}
	}
	return text
}

// NormalizeLang maps tags like "en-US" or "vi_VN" onto a supported language,
// returning "" when none matches.
func NormalizeLang(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if len(tag) >= 2 {
		if _, ok := catalog[tag[:2]]; ok {
			return tag[:2]
		}
	}
	return ""
}

// FromAcceptLanguage picks the first supported language in an Accept-Language header.
func FromAcceptLanguage(header, fallback string) string {
	for _, part := range strings.Split(header, ",") {
		tag, _, _ := strings.Cut(part, ";")
		if lang := NormalizeLang(tag); lang != "" {
			return lang
		}
	}
	if lang := NormalizeLang(fallback); lang != "" {
		return lang
	}
	return LangVI
}
