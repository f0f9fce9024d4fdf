package trial

import (
	"fmt"

	"github.com/kidlearn/server/internal/apperr"
)

type msgKey int

const (
	msgFull msgKey = iota
	msgOpen
	msgRemaining
	msgExpired
)

var messages = map[string]map[msgKey]string{
	apperr.LangVI: {
		msgFull:      "Tài khoản đã được kích hoạt đầy đủ",
		msgOpen:      "Tài khoản đang trong thời gian dùng thử",
		msgRemaining: "Còn %d ngày dùng thử",
		msgExpired:   "Thời gian dùng thử đã hết",
	},
	apperr.LangEN: {
		msgFull:      "Account is fully activated",
		msgOpen:      "Account is on trial",
		msgRemaining: "%d trial days remaining",
		msgExpired:   "Trial period has ended",
	},
}

func message(lang string, key msgKey, days int) string {
	msgs, ok := messages[lang]
	if !ok {
		msgs = messages[apperr.LangVI]
	}
	if key == msgRemaining {
		return fmt.Sprintf(msgs[key], days)
	}
	return msgs[key]
}
