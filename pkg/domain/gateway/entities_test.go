package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderDefaultsAndValidate(t *testing.T) {
	p := Provider{Name: "OpenAI"}
	p.ApplyDefaults()

	assert.Equal(t, AuthBearer, p.AuthType)
	assert.Equal(t, 60, p.MaxRequestsPerMinute)
	assert.Equal(t, 3, p.RetryCount)
	assert.Equal(t, 30*time.Second, p.Timeout())
	require.NoError(t, p.Validate())

	p.AuthType = "Basic"
	assert.Error(t, p.Validate())
}

func TestModelValidate(t *testing.T) {
	tests := []struct {
		name    string
		model   Model
		wantErr bool
	}{
		{"defaults", Model{Name: "m"}, false},
		{"bad type", Model{Name: "m", Type: "image"}, true},
		{"priority too high", Model{Name: "m", Priority: 11}, true},
		{"negative price", Model{Name: "m", InputPricePer1K: -1}, true},
		{"missing name", Model{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.model
			m.ApplyDefaults()
			if tt.wantErr {
				assert.Error(t, m.Validate())
			} else {
				assert.NoError(t, m.Validate())
				assert.Equal(t, 8192, m.ContextWindow)
				assert.Equal(t, 5, m.Priority)
			}
		})
	}
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()
	e := CacheEntry{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(time.Minute)))
}

func TestChatRequestDefaults(t *testing.T) {
	var r ChatRequest
	assert.Equal(t, DefaultModel, r.EffectiveModel())
	assert.Equal(t, DefaultTemperature, r.EffectiveTemperature())

	temp := 0.0
	r.Temperature = &temp
	r.Model = AutoModel
	assert.Equal(t, 0.0, r.EffectiveTemperature())
	assert.Equal(t, AutoModel, r.EffectiveModel())
}

func TestUserRollUsagePeriod(t *testing.T) {
	u := User{DailyLimit: 2, MonthlyLimit: 10, CurrentDailyUsage: 2, CurrentMonthlyUsage: 5,
		UsageDay: "2024-03-01", UsageMonth: "2024-03"}
	assert.True(t, u.OverQuota())

	u.RollUsagePeriod(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, 0, u.CurrentDailyUsage)
	assert.Equal(t, 5, u.CurrentMonthlyUsage)
	assert.False(t, u.OverQuota())

	u.RollUsagePeriod(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 0, u.CurrentMonthlyUsage)
	assert.Equal(t, "2024-04", u.UsageMonth)
}
