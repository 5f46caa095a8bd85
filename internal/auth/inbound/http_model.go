package inbound

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	State          string `json:"state"`
	ChallengeToken string `json:"challenge_token,omitempty"`
	AccessToken    string `json:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
}

type Login2FARequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

type Login2FAResponse struct {
	State        string `json:"state"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type TOTPStatusResponse struct {
	State                string `json:"state"`
	BackupCodesRemaining int64  `json:"backup_codes_remaining"`
}

type TOTPSetupRequest struct {
	CurrentPassword string `json:"current_password"`
}

type TOTPSetupResponse struct {
	ChallengeToken string `json:"challenge_token"`
	Key            string `json:"key"`
	URI            string `json:"uri"`
	QRImage        string `json:"qr_image"`
}

type TOTPConfirmRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

type TOTPConfirmResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

type TOTPDisableRequest struct {
	CurrentPassword string `json:"current_password"`
	Code            string `json:"code"`
}

type TOTPDeleteRequest struct {
	CurrentPassword string `json:"current_password"`
}
