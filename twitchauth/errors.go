package twitchauth

import "errors"

var (
	// ErrNotAuthenticated means no credential is held and no refresh token is
	// available; the device-code flow must be run.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAuthFlowTimedOut means the device code's validity window elapsed
	// before the user approved it.
	ErrAuthFlowTimedOut = errors.New("device code flow timed out")

	// ErrRefreshFailed wraps a rejected refresh attempt. The manager drops
	// the credential when this happens; re-authentication is required.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrCorruptToken wraps an unreadable saved token file.
	ErrCorruptToken = errors.New("corrupt token file")
)
