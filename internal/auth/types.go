package auth

import "time"

// Credentials are the Login with Amazon application credentials plus the
// long-lived refresh token of one advertiser authorization.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// Token is a short-lived access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// lwaTokenResponse is the Login with Amazon token endpoint payload.
type lwaTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// lwaErrorResponse is returned by the token endpoint on failure.
type lwaErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
