package models

import (
	"math"
	"testing"
	"time"

	"github.com/accrual-runner/internal/jsonx"
	"github.com/accrual-runner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *SessionRecord {
	return &SessionRecord{
		StartTime:      time.UnixMilli(1_736_000_000_123),
		Earnings:       types.Earnings{Total: 12.5, Pending: 0.25, Paid: 3},
		ReferralBonus:  0.1,
		SessionID:      424242,
		PausedDuration: 90 * time.Second,
	}
}

func TestSessionRecord_PersistedLayout(t *testing.T) {
	data, err := jsonx.Marshal(sampleRecord())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"startTime": 1736000000123,
		"earnings": {"total": 12.5, "pending": 0.25, "paid": 3},
		"referralBonus": 0.1,
		"sessionId": 424242,
		"pausedDuration": 90000
	}`, string(data))
}

func TestSessionRecord_ReadsLegacySessionKey(t *testing.T) {
	var rec SessionRecord
	err := jsonx.Unmarshal([]byte(`{"startTime":1736000000000,"earnings":{"total":1,"pending":0,"paid":0},"referralBonus":0.05,"session":77}`), &rec)
	require.NoError(t, err)

	assert.Equal(t, int64(77), rec.SessionID)
	assert.Zero(t, rec.PausedDuration)
	assert.NoError(t, rec.Validate())
}

func TestSessionRecord_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SessionRecord)
	}{
		{"missing start", func(r *SessionRecord) { r.StartTime = time.UnixMilli(0) }},
		{"negative paid", func(r *SessionRecord) { r.Earnings.Paid = -1 }},
		{"NaN total", func(r *SessionRecord) { r.Earnings.Total = math.NaN() }},
		{"negative bonus", func(r *SessionRecord) { r.ReferralBonus = -0.5 }},
		{"negative pause", func(r *SessionRecord) { r.PausedDuration = -time.Second }},
	}

	require.NoError(t, sampleRecord().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord()
			tt.mutate(rec)
			assert.ErrorIs(t, rec.Validate(), ErrInvalidSession)
		})
	}
}
