package backend

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"vartalap/internal/domain"
	"vartalap/internal/service"
)

var errRateLimited = errors.New("too many attempts, try again later")

// translate clasifica los errores de servicios y drivers en fallas.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var f *domain.Failure
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrEmailUnverified),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrOTPInvalid),
		errors.Is(err, service.ErrOTPExpired),
		errors.Is(err, service.ErrOTPNotRequested),
		errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrEmailTaken):
		return domain.AuthFailure(err)
	case errors.Is(err, service.ErrRateLimited):
		return domain.NewFailure(domain.KindAuth, errRateLimited.Error(), err)
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrNoActiveChat):
		return domain.ValidationFailure(err)
	case errors.Is(err, domain.ErrChatNotFound),
		errors.Is(err, domain.ErrStoreRejected):
		return domain.StoreFailure(err)
	case errors.Is(err, domain.ErrResponderFailed):
		return domain.NewFailure(domain.KindUnknown, domain.ErrResponderFailed.Error(), err)
	case isConnectivity(err):
		return domain.ConnectivityFailure(err)
	}
	return domain.NewFailure(domain.KindUnknown, "", err)
}

func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, service.ErrEmailSendFailure) ||
		errors.Is(err, domain.ErrNetwork) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
