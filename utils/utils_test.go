package utils

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/newspaper/config"
)

func TestMain(m *testing.M) {
	config.Set(config.AppConfig{App: config.AppSection{JWTSecret: "test-secret"}})
	os.Exit(m.Run())
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("short", "short"), ErrPasswordLength)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", 73), strings.Repeat("x", 73)), ErrPasswordLength)
	assert.ErrorIs(t, ValidatePassword("correct horse", "correct h0rse"), ErrPasswordMismatch)
	assert.NoError(t, ValidatePassword("correct horse", "correct horse"))
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "battery staple"))
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(42, "clark", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, "clark", claims.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), TokenExpiry(claims), 5*time.Second)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	expired, err := GenerateToken(1, "old", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	_, err = ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestBlacklistMemoryFallback(t *testing.T) {
	token := "blacklisted-token"
	assert.False(t, IsTokenBlacklisted(token))

	BlacklistToken(token, time.Now().Add(time.Minute))
	assert.True(t, IsTokenBlacklisted(token))

	BlacklistToken("already-expired", time.Now().Add(-time.Minute))
	assert.False(t, IsTokenBlacklisted("already-expired"))
}

func TestStateIsSingleUse(t *testing.T) {
	SaveState("abc", time.Minute)
	assert.True(t, ConsumeState("abc"))
	assert.False(t, ConsumeState("abc"))
	assert.False(t, ConsumeState(""))
}

func TestSanitize(t *testing.T) {
	out := Sanitize(`<p onclick="x()">Hello <script>alert(1)</script><b>world</b></p>`)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, "<b>world</b>")

	assert.Equal(t, "Fish & chips", PlainText("<p>Fish &amp; <i>chips</i></p>"))
}

func TestUniqueUint(t *testing.T) {
	assert.Equal(t, []uint{3, 1, 2}, UniqueUint([]uint{3, 1, 3, 2, 1}))
	assert.Empty(t, UniqueUint(nil))
}

func TestCacheWithoutRedisMisses(t *testing.T) {
	CacheSetJSON("cache:test", map[string]int{"a": 1}, time.Minute)
	var out map[string]int
	assert.False(t, CacheGetJSON("cache:test", &out))
	CacheDelete("cache:test")
	InvalidateByPrefix("cache:")
}

func TestBuildMessageEncodesHeaders(t *testing.T) {
	msg := buildMessage(config.SMTPSection{From: "news@example.com"}, "reader@example.com", "Новости", "body")
	assert.Contains(t, msg, "From: NewsPaper <news@example.com>\r\n")
	assert.Contains(t, msg, "To: reader@example.com\r\n")
	assert.Contains(t, msg, "Subject: =?UTF-8?b?")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nbody"))
}

func TestSMTPMailerNeedsConfiguration(t *testing.T) {
	err := NewSMTPMailer(config.SMTPSection{}).Send(context.Background(), "a@example.com", "s", "b")
	assert.ErrorIs(t, err, ErrSMTPNotConfigured)
}
