// Package models holds the persisted records of the accrual runner.
package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/accrual-runner/internal/jsonx"
	"github.com/accrual-runner/internal/types"
)

// SessionRecord is the resumable state of one account worker
type SessionRecord struct {
	StartTime      time.Time      `json:"startTime"`
	Earnings       types.Earnings `json:"earnings"`
	ReferralBonus  float64        `json:"referralBonus"`
	SessionID      int64          `json:"sessionId"`
	PausedDuration time.Duration  `json:"pausedDuration"`
}

// sessionWire is the on-disk layout: times are unix milliseconds
type sessionWire struct {
	StartTime      int64          `json:"startTime"`
	Earnings       types.Earnings `json:"earnings"`
	ReferralBonus  float64        `json:"referralBonus"`
	SessionID      *int64         `json:"sessionId,omitempty"`
	LegacySession  *int64         `json:"session,omitempty"`
	PausedDuration int64          `json:"pausedDuration"`
}

// MarshalJSON implements json.Marshaler
func (r SessionRecord) MarshalJSON() ([]byte, error) {
	id := r.SessionID
	return jsonx.Marshal(sessionWire{
		StartTime:      r.StartTime.UnixMilli(),
		Earnings:       r.Earnings,
		ReferralBonus:  r.ReferralBonus,
		SessionID:      &id,
		PausedDuration: r.PausedDuration.Milliseconds(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. Records written before the
// sessionId key existed carry the id under "session".
func (r *SessionRecord) UnmarshalJSON(data []byte) error {
	var w sessionWire
	if err := jsonx.Unmarshal(data, &w); err != nil {
		return err
	}

	r.StartTime = time.UnixMilli(w.StartTime)
	r.Earnings = w.Earnings
	r.ReferralBonus = w.ReferralBonus
	r.PausedDuration = time.Duration(w.PausedDuration) * time.Millisecond
	r.SessionID = 0
	switch {
	case w.SessionID != nil:
		r.SessionID = *w.SessionID
	case w.LegacySession != nil:
		r.SessionID = *w.LegacySession
	}
	return nil
}

// ErrInvalidSession marks a record that decoded but cannot be resumed
var ErrInvalidSession = errors.New("invalid session record")

// Validate checks the record can seed a worker
func (r *SessionRecord) Validate() error {
	if r.StartTime.UnixMilli() <= 0 {
		return fmt.Errorf("%w: missing start time", ErrInvalidSession)
	}
	for name, v := range map[string]float64{
		"total":         r.Earnings.Total,
		"pending":       r.Earnings.Pending,
		"paid":          r.Earnings.Paid,
		"referralBonus": r.ReferralBonus,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s is %v", ErrInvalidSession, name, v)
		}
	}
	if r.PausedDuration < 0 {
		return fmt.Errorf("%w: negative paused duration", ErrInvalidSession)
	}
	return nil
}

// Equal reports whether two records hold the same state
func (r *SessionRecord) Equal(o *SessionRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.StartTime.Equal(o.StartTime) &&
		r.Earnings == o.Earnings &&
		r.ReferralBonus == o.ReferralBonus &&
		r.SessionID == o.SessionID &&
		r.PausedDuration == o.PausedDuration
}
