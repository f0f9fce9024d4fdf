package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
)

func TestRegisterInput_Validate(t *testing.T) {
	tests := []struct {
		name       string
		in         RegisterInput
		allowAdmin bool
		wantErr    bool
	}{
		{"valid parent", RegisterInput{Name: "Lan", Email: "lan@example.com", Password: "secret1"}, false, false},
		{"valid child", RegisterInput{Name: "Bi", Email: "bi@example.com", Password: "secret1", Role: model.RoleChild}, false, false},
		{"missing name", RegisterInput{Name: "  ", Email: "lan@example.com", Password: "secret1"}, false, true},
		{"bad email", RegisterInput{Name: "Lan", Email: "lan", Password: "secret1"}, false, true},
		{"display-name email", RegisterInput{Name: "Lan", Email: "Lan <lan@example.com>", Password: "secret1"}, false, true},
		{"short password", RegisterInput{Name: "Lan", Email: "lan@example.com", Password: "12345"}, false, true},
		{"unknown role", RegisterInput{Name: "Lan", Email: "lan@example.com", Password: "secret1", Role: "tutor"}, false, true},
		{"admin refused", RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1", Role: model.RoleAdmin}, false, true},
		{"admin allowed", RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1", Role: model.RoleAdmin}, true, false},
		{"unknown language", RegisterInput{Name: "Lan", Email: "lan@example.com", Password: "secret1", Language: "fr"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate(tt.allowAdmin)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRegisterInput_ValidateNormalizes(t *testing.T) {
	in := RegisterInput{Name: " Lan ", Email: "  Lan@Example.COM ", Password: "secret1", Language: " EN "}
	require.NoError(t, in.Validate(false))
	assert.Equal(t, "Lan", in.Name)
	assert.Equal(t, "lan@example.com", in.Email)
	assert.Equal(t, model.RoleParent, in.Role)
	assert.Equal(t, "en", in.Language)
}

func TestResetPasswordInput_Validate(t *testing.T) {
	ok := ResetPasswordInput{Email: "lan@example.com", OTP: "123456", NewPassword: "secret1"}
	assert.NoError(t, ok.Validate())

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		in := ResetPasswordInput{Email: "lan@example.com", OTP: code, NewPassword: "secret1"}
		assert.ErrorIs(t, in.Validate(), apperr.ErrValidation, "code %q", code)
	}

	short := ResetPasswordInput{Email: "lan@example.com", OTP: "123456", NewPassword: "abc"}
	assert.ErrorIs(t, short.Validate(), apperr.ErrValidation)
}

func TestUpdateProfileInput_Validate(t *testing.T) {
	empty := ""
	assert.ErrorIs(t, (&UpdateProfileInput{Name: &empty}).Validate(), apperr.ErrValidation)
	assert.ErrorIs(t, (&UpdateProfileInput{Language: &empty}).Validate(), apperr.ErrValidation)

	name, lang := " Lan ", "EN"
	in := UpdateProfileInput{Name: &name, Language: &lang}
	require.NoError(t, in.Validate())
	assert.Equal(t, "Lan", *in.Name)
	assert.Equal(t, "en", *in.Language)

	assert.NoError(t, (&UpdateProfileInput{}).Validate())
}

func ptr[T any](v T) *T { return &v }

func TestProfileInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      ProfileInput
		wantErr bool
	}{
		{"empty", ProfileInput{}, false},
		{"full", ProfileInput{AvatarURL: ptr("https://cdn.example.com/a.png"), Phone: ptr("0901234567"), Address: ptr("1 Le Loi"), DateOfBirth: ptr("2016-05-04"), Gender: ptr("female")}, false},
		{"rfc3339 birth date", ProfileInput{DateOfBirth: ptr("2016-05-04T00:00:00Z")}, false},
		{"clearing values", ProfileInput{AvatarURL: ptr(""), Gender: ptr(""), DateOfBirth: ptr("")}, false},
		{"relative avatar", ProfileInput{AvatarURL: ptr("/a.png")}, true},
		{"ftp avatar", ProfileInput{AvatarURL: ptr("ftp://example.com/a.png")}, true},
		{"unknown gender", ProfileInput{Gender: ptr("robot")}, true},
		{"bad birth date", ProfileInput{DateOfBirth: ptr("04/05/2016")}, true},
		{"future birth date", ProfileInput{DateOfBirth: ptr("2999-01-01")}, true},
		{"long address", ProfileInput{Address: ptr(strings.Repeat("a", 256))}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUpdateProfileInput_AppliesProfileAndSettings(t *testing.T) {
	in := UpdateProfileInput{
		Profile:  &ProfileInput{Phone: ptr(" 0901234567 "), DateOfBirth: ptr("2016-05-04"), Gender: ptr("male")},
		Settings: &SettingsInput{Notifications: ptr(false), Language: ptr("EN"), Timezone: ptr("Asia/Bangkok")},
	}
	require.NoError(t, in.Validate())

	a := model.Account{Language: "vi", Settings: model.Settings{Notifications: true, Timezone: model.DefaultTimezone}}
	in.apply(&a)
	assert.Equal(t, "0901234567", a.Profile.Phone)
	assert.Equal(t, model.GenderMale, a.Profile.Gender)
	require.NotNil(t, a.Profile.DateOfBirth)
	assert.Equal(t, 2016, a.Profile.DateOfBirth.Year())
	assert.Equal(t, "en", a.Language)
	assert.False(t, a.Settings.Notifications)
	assert.Equal(t, "Asia/Bangkok", a.Settings.Timezone)

	bad := UpdateProfileInput{Settings: &SettingsInput{Timezone: ptr(" ")}}
	assert.ErrorIs(t, bad.Validate(), apperr.ErrValidation)
}

func TestCreateAccountInput_Validate(t *testing.T) {
	noRole := CreateAccountInput{RegisterInput: RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1"}}
	assert.ErrorIs(t, noRole.Validate(), apperr.ErrValidation)

	admin := CreateAccountInput{RegisterInput: RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1", Role: model.RoleAdmin}}
	assert.NoError(t, admin.Validate())

	badProfile := admin
	badProfile.Profile = &ProfileInput{Gender: ptr("robot")}
	assert.ErrorIs(t, badProfile.Validate(), apperr.ErrValidation)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "pa****@example.com", MaskEmail("parent@example.com"))
	assert.Equal(t, "**@example.com", MaskEmail("ab@example.com"))
	assert.Equal(t, "****", MaskEmail("broken"))
}
