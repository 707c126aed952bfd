package models

import (
	"testing"
	"time"

	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
)

func validLink() *Link {
	return &Link{
		LinkID:           "0123456789abcdef0123456789abcdef",
		CustomName:       "demo",
		CreatedBy:        1,
		FileID:           1,
		ExpirationType:   ExpirationNone,
		VerificationType: VerificationNone,
		AccessScope:      ScopePublic,
		AccessType:       AccessTypeInfo,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validLink().ValidateConfig())
}

func TestValidateConfigRejectsInconsistentCombos(t *testing.T) {
	neg := int64(-1)
	past := time.Now().Add(-24 * time.Hour).UnixMilli()
	zero := uint32(0)

	cases := []struct {
		name   string
		mutate func(*Link)
	}{
		{"未知过期类型", func(l *Link) { l.ExpirationType = "weekly" }},
		{"duration 缺少时长", func(l *Link) { l.ExpirationType = ExpirationDuration }},
		{"duration 非正时长", func(l *Link) {
			l.ExpirationType = ExpirationDuration
			l.ExpirationValue = &neg
		}},
		{"date 缺少时间点", func(l *Link) { l.ExpirationType = ExpirationDate }},
		{"date 已过去", func(l *Link) {
			l.ExpirationType = ExpirationDate
			l.ExpirationValue = &past
		}},
		{"访问上限为零", func(l *Link) { l.AccessLimit = &zero }},
		{"未知访问范围", func(l *Link) { l.AccessScope = "friends" }},
		{"selected 范围允许用户为空", func(l *Link) { l.AccessScope = ScopeSelected }},
		{"未知验证类型", func(l *Link) { l.VerificationType = "captcha" }},
		{"username 验证脱离 selected 范围", func(l *Link) {
			l.VerificationType = VerificationUsername
			l.AccessScope = ScopePublic
		}},
		{"未知访问能力", func(l *Link) { l.AccessType = "edit" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := validLink()
			tc.mutate(l)
			assert.ErrorIs(t, l.ValidateConfig(), xerr.ErrLinkConfigInvalid)
		})
	}
}

func TestValidateConfigAcceptsFutureDate(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixMilli()
	l := validLink()
	l.ExpirationType = ExpirationDate
	l.ExpirationValue = &future
	assert.NoError(t, l.ValidateConfig())
}

func TestValidateConfigUsernameWithSelected(t *testing.T) {
	l := validLink()
	l.AccessScope = ScopeSelected
	l.VerificationType = VerificationUsername
	l.AllowedUsers = []User{{ID: 1, Username: "alice"}}
	assert.NoError(t, l.ValidateConfig())
}

func TestIsExpiredDuration(t *testing.T) {
	seconds := int64(600)
	l := validLink()
	l.ExpirationType = ExpirationDuration
	l.ExpirationValue = &seconds
	l.CreatedAt = time.Now().Add(-5 * time.Minute)

	assert.False(t, l.IsExpired(time.Now()))
	// 截止时刻本身视为已过期
	assert.True(t, l.IsExpired(l.CreatedAt.Add(10*time.Minute)))
	assert.True(t, l.IsExpired(time.Now().Add(6*time.Minute)))
}

func TestIsExpiredDate(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	millis := deadline.UnixMilli()
	l := validLink()
	l.ExpirationType = ExpirationDate
	l.ExpirationValue = &millis

	assert.False(t, l.IsExpired(time.Now()))
	assert.True(t, l.IsExpired(deadline.Add(time.Second)))
}

func TestIsExpiredNone(t *testing.T) {
	l := validLink()
	assert.False(t, l.IsExpired(time.Now().Add(100*365*24*time.Hour)))
}

func TestIsAccessLimitReached(t *testing.T) {
	limit := uint32(2)
	l := validLink()
	assert.False(t, l.IsAccessLimitReached()) // 无上限

	l.AccessLimit = &limit
	l.AccessCount = 1
	assert.False(t, l.IsAccessLimitReached())
	l.AccessCount = 2
	assert.True(t, l.IsAccessLimitReached())
}
