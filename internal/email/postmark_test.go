package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDeliversPayload(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@kidlearn.test", WithAPIURL(server.URL), WithHTTPClient(server.Client()))
	err := client.Send(context.Background(), "parent@example.com", "Subject", "<p>123456</p>")
	require.NoError(t, err)

	assert.Equal(t, "test-token", gotToken)
	assert.Equal(t, "parent@example.com", received.To)
	assert.Equal(t, "noreply@kidlearn.test", received.From)
	assert.Equal(t, "Subject", received.Subject)
	assert.Equal(t, "<p>123456</p>", received.HtmlBody)
}

func TestSendNotConfigured(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := NewClient("", "noreply@kidlearn.test", WithAPIURL(server.URL))
	err := client.Send(context.Background(), "parent@example.com", "s", "b")
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("token", "noreply@kidlearn.test", WithAPIURL(server.URL))
	err := client.Send(context.Background(), "parent@example.com", "s", "b")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotConfigured))
	assert.Contains(t, err.Error(), "422")
}

func TestPasswordResetOTP(t *testing.T) {
	subject, html, err := PasswordResetOTP("en", "482913", 10)
	require.NoError(t, err)
	assert.Equal(t, "Your password reset code", subject)
	assert.Contains(t, html, "482913")
	assert.Contains(t, html, "10 minutes")

	subject, _, err = PasswordResetOTP("xx", "482913", 10)
	require.NoError(t, err)
	assert.Equal(t, "Mã xác nhận đặt lại mật khẩu", subject)
}
