package domain

import (
	"errors"
	"fmt"
)

// FailureKind clasifica las fallas que la aplicación distingue.
type FailureKind string

const (
	KindAuth         FailureKind = "auth"
	KindConnectivity FailureKind = "connectivity"
	KindValidation   FailureKind = "validation"
	KindPartialSend  FailureKind = "partial_send"
	KindSubscription FailureKind = "subscription"
	KindStore        FailureKind = "store"
	KindUnknown      FailureKind = "unknown"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailUnverified     = errors.New("email not verified")
	ErrSessionExpired      = errors.New("session expired")
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrMessageTooLong      = errors.New("message too long")
	ErrNoActiveChat        = errors.New("no active chat")
	ErrSendInFlight        = errors.New("a message is already being sent in this chat")
	ErrChatNotFound        = errors.New("chat not found")
	ErrStoreRejected       = errors.New("store rejected the operation")
	ErrNetwork             = errors.New("network failure")
	ErrResponderFailed     = errors.New("assistant reply failed")
	ErrSubscriptionDropped = errors.New("subscription dropped")
)

// Failure envuelve un error con su categoría y un motivo legible.
type Failure struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil && f.Reason != "" {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Reason, f.Err)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// UserMessage devuelve el texto para mostrar al usuario sin detalles internos.
func (f *Failure) UserMessage() string {
	if f.Reason != "" {
		return f.Reason
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return string(f.Kind)
}

func NewFailure(kind FailureKind, reason string, err error) error {
	return &Failure{Kind: kind, Reason: reason, Err: err}
}

func AuthFailure(err error) error {
	return &Failure{Kind: KindAuth, Err: err}
}

func ConnectivityFailure(err error) error {
	return &Failure{Kind: KindConnectivity, Reason: "cannot reach backing services", Err: err}
}

func ValidationFailure(err error) error {
	return &Failure{Kind: KindValidation, Err: err}
}

func StoreFailure(err error) error {
	return &Failure{Kind: KindStore, Err: err}
}

func SubscriptionFailure(err error) error {
	return &Failure{Kind: KindSubscription, Reason: "live updates interrupted", Err: err}
}

func PartialSendFailure(err error) error {
	return &Failure{Kind: KindPartialSend, Reason: "message sent, but the assistant reply failed", Err: err}
}

// KindOf devuelve la categoría de err; KindUnknown si no es una Failure.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// AsFailure garantiza que err sea una Failure, usando kind cuando no lo es.
func AsFailure(err error, kind FailureKind) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{Kind: kind, Err: err}
}

func IsAuthFailure(err error) bool         { return KindOf(err) == KindAuth }
func IsConnectivityFailure(err error) bool { return KindOf(err) == KindConnectivity }
func IsValidationFailure(err error) bool   { return KindOf(err) == KindValidation }
func IsPartialSendFailure(err error) bool  { return KindOf(err) == KindPartialSend }
func IsSubscriptionFailure(err error) bool { return KindOf(err) == KindSubscription }
func IsStoreFailure(err error) bool        { return KindOf(err) == KindStore }
