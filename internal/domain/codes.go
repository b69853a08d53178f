package domain

import "errors"

// Códigos estables que viajan en las respuestas de error de la API.
var errorCodes = []struct {
	code string
	err  error
}{
	{"invalid_credentials", ErrInvalidCredentials},
	{"email_unverified", ErrEmailUnverified},
	{"session_expired", ErrSessionExpired},
	{"unauthenticated", ErrUnauthenticated},
	{"empty_message", ErrEmptyMessage},
	{"message_too_long", ErrMessageTooLong},
	{"no_active_chat", ErrNoActiveChat},
	{"send_in_flight", ErrSendInFlight},
	{"chat_not_found", ErrChatNotFound},
	{"store_rejected", ErrStoreRejected},
	{"responder_failed", ErrResponderFailed},
}

// CodeOf devuelve el código del primer sentinel que err envuelve, o "".
func CodeOf(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ""
}

// ErrorForCode es la inversa de CodeOf; nil si el código no es conocido.
func ErrorForCode(code string) error {
	for _, e := range errorCodes {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
