package identity

import "time"

// Account is the identity record returned by the service.
type Account struct {
	ID           string  `json:"id"`
	IAMAccountID string  `json:"iam_account_id"`
	Email        string  `json:"email"`
	DisplayName  *string `json:"display_name"`
	AvatarURL    *string `json:"avatar_url"`
	AuthType     string  `json:"auth_type"`
}

// TokenPair holds the credential pair and both absolute expiries.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// AuthResult is the success shape of login, Google login, and refresh.
// Account is always present for logins; refresh may omit it.
type AuthResult struct {
	Account *Account `json:"account"`
	TokenPair
}

// PendingVerification identifies a signed-up account awaiting email
// verification. No session exists until verification completes.
type PendingVerification struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Message   string `json:"message"`
}
