package inbound

import (
	"github.com/zelyonkin/dashkeep/internal/auth/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
)

// HTTPEndpoint exposes HTTP handlers for the sign-in and second-factor workflows.
type HTTPEndpoint struct {
	uc uc
}

// Login authenticates a user and returns tokens or a second-factor challenge.
// @Summary Authenticate user
// @Description Validates credentials and returns access/refresh tokens. If a second factor is enrolled, a challenge is returned instead.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} router.successResponse{data=LoginResponse} "Authentication result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Invalid credentials"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Too many failed attempts"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/login [post]
func (h *HTTPEndpoint) Login(r *router.Request) (any, error) {
	var req LoginRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Login(r.Context(), usecase.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Origin:    r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return LoginResponse{
		State:          resp.State.String(),
		ChallengeToken: resp.ChallengeToken,
		AccessToken:    resp.AccessToken,
		RefreshToken:   resp.RefreshToken,
	}, nil
}

// Login2FA completes a second-factor login challenge and issues tokens.
// @Summary Complete second-factor login
// @Description Verifies an authenticator code or a backup code for a login challenge and returns access/refresh tokens.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Login2FARequest true "Second-factor payload"
// @Success 200 {object} router.successResponse{data=Login2FAResponse} "Authentication result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Invalid code"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Too many failed attempts"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/login/2fa [post]
func (h *HTTPEndpoint) Login2FA(r *router.Request) (any, error) {
	var req Login2FARequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Login2FA(r.Context(), usecase.Login2FAInput{
		ChallengeToken: req.ChallengeToken,
		Code:           req.Code,
		Origin:         r.RemoteAddr,
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return Login2FAResponse{
		State:        resp.State.String(),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

// RefreshToken issues a new access token using a refresh token.
// @Summary Refresh access token
// @Description Exchanges a refresh token for a new access/refresh token pair.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "Refresh token payload"
// @Success 200 {object} router.successResponse{data=RefreshTokenResponse} "Token refresh result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Invalid refresh token"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/refresh [post]
func (h *HTTPEndpoint) RefreshToken(r *router.Request) (any, error) {
	var req RefreshTokenRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.RefreshToken(r.Context(), usecase.RefreshTokenInput{RefreshToken: req.RefreshToken})
	if err != nil {
		return nil, err
	}

	return RefreshTokenResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

// Logout revokes the provided refresh token.
// @Summary Logout
// @Description Invalidates the provided refresh token for the authenticated user.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Param request body LogoutRequest true "Logout payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/logout [post]
func (h *HTTPEndpoint) Logout(r *router.Request) (any, error) {
	var req LogoutRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	return nil, h.uc.Logout(r.Context(), usecase.LogoutInput{
		RefreshToken: req.RefreshToken,
		Origin:       r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

// PasswordChange updates the current user's password.
// @Summary Change password
// @Description Updates the user's password after validating the current password.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Param request body PasswordChangeRequest true "Change password payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/password/change [post]
func (h *HTTPEndpoint) PasswordChange(r *router.Request) (any, error) {
	var req PasswordChangeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	return nil, h.uc.PasswordChange(r.Context(), usecase.PasswordChangeInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Origin:          r.RemoteAddr,
		UserAgent:       r.UserAgent(),
	})
}

// TOTPStatus reports the current user's second-factor enrollment.
// @Summary Get second-factor status
// @Description Returns the enrollment state and remaining backup codes for the authenticated user.
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} router.successResponse{data=TOTPStatusResponse} "Enrollment status"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/2fa [get]
func (h *HTTPEndpoint) TOTPStatus(r *router.Request) (any, error) {
	resp, err := h.uc.TOTPStatus(r.Context())
	if err != nil {
		return nil, err
	}

	return TOTPStatusResponse{
		State:                resp.State.String(),
		BackupCodesRemaining: resp.BackupCodesRemaining,
	}, nil
}

// TOTPSetup starts authenticator enrollment for the current user.
// @Summary Setup authenticator
// @Description Creates a pending authenticator factor and returns the shared secret, otpauth URI and QR image.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body TOTPSetupRequest true "Setup payload"
// @Success 200 {object} router.successResponse{data=TOTPSetupResponse} "Setup result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 409 {object} router.errorResponse "Authenticator already configured"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/2fa/setup [post]
func (h *HTTPEndpoint) TOTPSetup(r *router.Request) (any, error) {
	var req TOTPSetupRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.TOTPSetup(r.Context(), usecase.TOTPSetupInput{
		CurrentPassword: req.CurrentPassword,
		Origin:          r.RemoteAddr,
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return TOTPSetupResponse{
		ChallengeToken: resp.ChallengeToken,
		Key:            resp.Key,
		URI:            resp.URI,
		QRImage:        resp.QRImage,
	}, nil
}

// TOTPConfirm verifies an authenticator code to activate the factor.
// @Summary Confirm authenticator
// @Description Verifies the authenticator code, activates the factor and returns one-time backup codes.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body TOTPConfirmRequest true "Confirmation payload"
// @Success 200 {object} router.successResponse{data=TOTPConfirmResponse} "Backup codes, shown once"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "Setup challenge not found"
// @Failure 409 {object} router.errorResponse "Authenticator already configured"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/2fa/confirm [post]
func (h *HTTPEndpoint) TOTPConfirm(r *router.Request) (any, error) {
	var req TOTPConfirmRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.TOTPConfirm(r.Context(), usecase.TOTPConfirmInput{
		ChallengeToken: req.ChallengeToken,
		Code:           req.Code,
		Origin:         r.RemoteAddr,
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return TOTPConfirmResponse{RecoveryCodes: resp.RecoveryCodes}, nil
}

// TOTPDisable turns off the authenticator factor after re-verification.
// @Summary Disable authenticator
// @Description Removes the authenticator factor after verifying the password and a current code.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Param request body TOTPDisableRequest true "Disable payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "No authenticator configured"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/2fa/disable [post]
func (h *HTTPEndpoint) TOTPDisable(r *router.Request) (any, error) {
	var req TOTPDisableRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	return nil, h.uc.TOTPDisable(r.Context(), usecase.TOTPDisableInput{
		CurrentPassword: req.CurrentPassword,
		Code:            req.Code,
		Origin:          r.RemoteAddr,
		UserAgent:       r.UserAgent(),
	})
}

// TOTPDelete removes the authenticator enrollment entirely.
// @Summary Delete authenticator enrollment
// @Description Removes the authenticator factor and all backup codes after verifying the password.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Param request body TOTPDeleteRequest true "Delete payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "No authenticator configured"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/auth/2fa [delete]
func (h *HTTPEndpoint) TOTPDelete(r *router.Request) (any, error) {
	var req TOTPDeleteRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	return nil, h.uc.TOTPDelete(r.Context(), usecase.TOTPDeleteInput{
		CurrentPassword: req.CurrentPassword,
		Origin:          r.RemoteAddr,
		UserAgent:       r.UserAgent(),
	})
}
