package domain

// AuthStatus es el estado de autenticación de tres valores.
type AuthStatus int

const (
	AuthLoading AuthStatus = iota
	AuthAuthenticated
	AuthUnauthenticated
)

func (s AuthStatus) String() string {
	switch s {
	case AuthLoading:
		return "loading"
	case AuthAuthenticated:
		return "authenticated"
	case AuthUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// AuthState combina el estado con el error de conexión opcional.
type AuthState struct {
	Status AuthStatus
	Err    error
}

// ErrorMessage devuelve el mensaje legible del error de conexión, si existe.
func (s AuthState) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
