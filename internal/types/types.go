// Package types provides the wire and value types shared by the accrual runner.
package types

// Earnings is an account's accrued amounts
type Earnings struct {
	Total   float64 `json:"total"`
	Pending float64 `json:"pending"`
	Paid    float64 `json:"paid"`
}

// UserData is the account data returned by the registration check
type UserData struct {
	ReferralBonus float64 `json:"referralBonus"`
	// Balance is the server-side total, when the service includes one
	Balance *float64 `json:"balance,omitempty"`
}

// RegistrationResponse is the body of GET /check-registration
type RegistrationResponse struct {
	IsRegistered bool     `json:"isRegistered"`
	UserData     UserData `json:"userData"`
}

// ReportedEarnings is the earnings block sent with a balance update
type ReportedEarnings struct {
	Total   float64 `json:"total"`
	Pending float64 `json:"pending"`
	Paid    float64 `json:"paid"`
	Session int64   `json:"session"`
}

// BalanceUpdateRequest is the body of POST /update-balance
type BalanceUpdateRequest struct {
	Wallet   string           `json:"wallet"`
	Earnings ReportedEarnings `json:"earnings"`
}

// BalanceUpdateResponse is the reply to a balance update
type BalanceUpdateResponse struct {
	Success bool    `json:"success"`
	Balance float64 `json:"balance"`
}

// ErrorResponse is the optional body of a failed request
type ErrorResponse struct {
	Message string `json:"message"`
}
