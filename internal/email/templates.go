package email

import (
	"bytes"
	"fmt"
	"html/template"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<h2 style="color: #2196F3;">{{.Title}}</h2>
<p>{{.Intro}}</p>
<p style="font-size: 24px; font-weight: bold; color: #2196F3; text-align: center; padding: 20px; background-color: #f5f5f5; border-radius: 8px;">{{.Code}}</p>
<p>{{.Validity}}</p>
<p>{{.Ignore}}</p>
</div>`))

type otpCopy struct {
	Subject, Title, Intro, Validity, Ignore string
}

var otpCopies = map[string]otpCopy{
	"vi": {
		Subject:  "Mã xác nhận đặt lại mật khẩu",
		Title:    "Đặt lại mật khẩu",
		Intro:    "Bạn đã yêu cầu đặt lại mật khẩu cho tài khoản của mình.",
		Validity: "Mã này có hiệu lực trong %d phút.",
		Ignore:   "Nếu bạn không yêu cầu đặt lại mật khẩu, vui lòng bỏ qua email này.",
	},
	"en": {
		Subject:  "Your password reset code",
		Title:    "Reset your password",
		Intro:    "You asked to reset the password for your account.",
		Validity: "This code is valid for %d minutes.",
		Ignore:   "If you did not request a reset, you can ignore this email.",
	},
}

// PasswordResetOTP renders the subject and HTML body carrying a reset code
func PasswordResetOTP(lang, code string, validMinutes int) (subject, html string, err error) {
	c, ok := otpCopies[lang]
	if !ok {
		c = otpCopies["vi"]
	}
	var buf bytes.Buffer
	err = otpTemplate.Execute(&buf, map[string]string{
		"Title":    c.Title,
		"Intro":    c.Intro,
		"Code":     code,
		"Validity": fmt.Sprintf(c.Validity, validMinutes),
		"Ignore":   c.Ignore,
	})
	if err != nil {
		return "", "", fmt.Errorf("render otp email: %w", err)
	}
	return c.Subject, buf.String(), nil
}
