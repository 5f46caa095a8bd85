package entity

// IdentityStatus tells whether an account may authenticate.
type IdentityStatus int16

const (
	// IdentityStatusUnknown is mean status is not known / not set.
	IdentityStatusUnknown IdentityStatus = 0

	// IdentityStatusActive mean the identity is allowed to use the app.
	IdentityStatusActive IdentityStatus = 1

	// IdentityStatusDisabled mean the identity is blocked from signing in.
	IdentityStatusDisabled IdentityStatus = 2
)

func (s IdentityStatus) String() string {
	switch s {
	case IdentityStatusActive:
		return "Active"
	case IdentityStatusDisabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// LoginState tracks the sign-in flow for one attempt.
type LoginState int16

const (
	LoginStateAwaitingCredentials  LoginState = 0
	LoginStateCredentialsOK        LoginState = 1
	LoginStateAwaitingSecondFactor LoginState = 2
	LoginStateAuthenticated        LoginState = 3
)

func (s LoginState) String() string {
	switch s {
	case LoginStateCredentialsOK:
		return "CREDENTIALS_OK"
	case LoginStateAwaitingSecondFactor:
		return "AWAITING_SECOND_FACTOR"
	case LoginStateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "AWAITING_CREDENTIALS"
	}
}

// EnrollmentState is the lifecycle of a second-factor enrollment.
type EnrollmentState int16

const (
	// EnrollmentAbsent mean no enrollment exists.
	EnrollmentAbsent EnrollmentState = 0

	// EnrollmentPending mean a secret was issued but never confirmed.
	EnrollmentPending EnrollmentState = 1

	// EnrollmentActive mean the factor is confirmed and enforced at login.
	EnrollmentActive EnrollmentState = 2
)

func (s EnrollmentState) String() string {
	switch s {
	case EnrollmentPending:
		return "Pending"
	case EnrollmentActive:
		return "Active"
	default:
		return "Absent"
	}
}

// ChallengePurpose scopes a one-time challenge token.
type ChallengePurpose int16

const (
	ChallengePurposeUnknown         ChallengePurpose = 0
	ChallengePurposeMFALogin        ChallengePurpose = 1
	ChallengePurposeMFASetupConfirm ChallengePurpose = 2
)
