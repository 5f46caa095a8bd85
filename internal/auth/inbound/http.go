package inbound

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/auth/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
)

type uc interface {
	Login(ctx context.Context, in usecase.LoginInput) (*usecase.LoginOutput, error)
	Login2FA(ctx context.Context, in usecase.Login2FAInput) (*usecase.Login2FAOutput, error)
	RefreshToken(ctx context.Context, in usecase.RefreshTokenInput) (*usecase.RefreshTokenOutput, error)
	Logout(ctx context.Context, in usecase.LogoutInput) error

	PasswordChange(ctx context.Context, in usecase.PasswordChangeInput) error

	TOTPStatus(ctx context.Context) (*usecase.TOTPStatusOutput, error)
	TOTPSetup(ctx context.Context, in usecase.TOTPSetupInput) (*usecase.TOTPSetupOutput, error)
	TOTPConfirm(ctx context.Context, in usecase.TOTPConfirmInput) (*usecase.TOTPConfirmOutput, error)
	TOTPDisable(ctx context.Context, in usecase.TOTPDisableInput) error
	TOTPDelete(ctx context.Context, in usecase.TOTPDeleteInput) error
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Sign-in flow
	r.POST("/api/v1/auth/login", end.Login)
	r.POST("/api/v1/auth/login/2fa", end.Login2FA)
	r.POST("/api/v1/auth/refresh", end.RefreshToken)
	r.POST("/api/v1/auth/logout", end.Logout) // need authenticated

	// Password management (need authenticated)
	r.POST("/api/v1/auth/password/change", end.PasswordChange)

	// Second factor (need authenticated)
	r.GET("/api/v1/auth/2fa", end.TOTPStatus)
	r.POST("/api/v1/auth/2fa/setup", end.TOTPSetup)
	r.POST("/api/v1/auth/2fa/confirm", end.TOTPConfirm)
	r.POST("/api/v1/auth/2fa/disable", end.TOTPDisable)
	r.DELETE("/api/v1/auth/2fa", end.TOTPDelete)
}
