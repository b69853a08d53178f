package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"vartalap/internal/domain"
	"vartalap/internal/email"
	"vartalap/internal/repository"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrOTPNotRequested  = errors.New("otp not requested")
	ErrOTPExpired       = errors.New("otp expired")
	ErrOTPInvalid       = errors.New("otp invalid")
	ErrEmailSendFailure = errors.New("email send failed")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrWeakPassword     = errors.New("password too short")
	ErrEmailTaken       = errors.New("email already registered")
	ErrAlreadyVerified  = errors.New("email already verified")
)

const (
	otpTTL            = 10 * time.Minute
	minPasswordLength = 8
)

// AuthOptions ajusta las reglas de registro e inicio de sesión.
type AuthOptions struct {
	RequireVerifiedEmail bool
	SignInLimiter        RateLimiter
	OTPLimiter           RateLimiter
}

// AuthService coordina registro, verificación de email y sesiones.
type AuthService struct {
	logger          *zap.Logger
	users           repository.UserRepository
	tokens          *JWTService
	emailSender     email.Sender
	signInLimiter   RateLimiter
	otpLimiter      RateLimiter
	requireVerified bool
	now             func() time.Time
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, tokens *JWTService, sender email.Sender, opts AuthOptions) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SignInLimiter == nil {
		opts.SignInLimiter = NewMemoryRateLimiter(time.Minute, 10)
	}
	if opts.OTPLimiter == nil {
		opts.OTPLimiter = NewMemoryRateLimiter(otpTTL, 3)
	}
	return &AuthService{
		logger:          logger,
		users:           users,
		tokens:          tokens,
		emailSender:     sender,
		signInLimiter:   opts.SignInLimiter,
		otpLimiter:      opts.OTPLimiter,
		requireVerified: opts.RequireVerifiedEmail,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthResult es el resultado de un registro o inicio de sesión. Tokens es nil
// cuando la cuenta todavía debe verificar su email.
type AuthResult struct {
	User                 domain.User
	Tokens               *TokenPair
	VerificationRequired bool
}

func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (AuthResult, error) {
	emailAddr := normalizeEmail(input.Email)
	if !isPlausibleEmail(emailAddr) {
		return AuthResult{}, ErrInvalidEmail
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLength {
		return AuthResult{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}

	var code string
	if s.requireVerified {
		var otpHash string
		var expiresAt time.Time
		code, otpHash, expiresAt, err = s.generateOTP()
		if err != nil {
			return AuthResult{}, err
		}
		user.OtpCodeHash = otpHash
		user.OtpExpiresAt = &expiresAt
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID), zap.Bool("verification_required", s.requireVerified))

	if s.requireVerified {
		if err := s.sendVerification(ctx, user, code); err != nil {
			return AuthResult{}, err
		}
		return AuthResult{User: user, VerificationRequired: true}, nil
	}
	return s.issue(ctx, user)
}

// ResendVerification genera un código nuevo para una cuenta sin verificar.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}
	if !s.otpLimiter.Allow(emailAddr) {
		return ErrRateLimited
	}
	user, err := s.lookupByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user.EmailVerifiedAt != nil {
		return ErrAlreadyVerified
	}
	code, hash, expiresAt, err := s.generateOTP()
	if err != nil {
		return err
	}
	if err := s.users.UpdateOTP(ctx, user.ID, hash, expiresAt); err != nil {
		return err
	}
	user.OtpExpiresAt = &expiresAt
	return s.sendVerification(ctx, user, code)
}

func (s *AuthService) VerifyEmail(ctx context.Context, emailAddr, code string) (AuthResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" {
		return AuthResult{}, ErrInvalidEmail
	}
	if !isValidOTPCode(code) {
		return AuthResult{}, ErrOTPInvalid
	}

	user, err := s.lookupByEmail(ctx, emailAddr)
	if err != nil {
		return AuthResult{}, err
	}
	if user.OtpCodeHash == "" || user.OtpExpiresAt == nil {
		return AuthResult{}, ErrOTPNotRequested
	}
	if s.now().After(*user.OtpExpiresAt) {
		return AuthResult{}, ErrOTPExpired
	}
	if !verifyOTP(code, user.OtpCodeHash) {
		return AuthResult{}, ErrOTPInvalid
	}

	verifiedAt := s.now()
	if err := s.users.VerifyEmail(ctx, user.ID, verifiedAt); err != nil {
		return AuthResult{}, err
	}
	user.EmailVerifiedAt = &verifiedAt
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	return s.issue(ctx, user)
}

func (s *AuthService) SignIn(ctx context.Context, emailAddr, password string) (AuthResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return AuthResult{}, domain.ErrInvalidCredentials
	}
	if !s.signInLimiter.Allow(emailAddr) {
		return AuthResult{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthResult{}, domain.ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if user.PasswordHash == "" {
		return AuthResult{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, domain.ErrInvalidCredentials
	}
	if s.requireVerified && user.EmailVerifiedAt == nil {
		return AuthResult{}, domain.ErrEmailUnverified
	}
	return s.issue(ctx, user)
}

// Refresh rota el refresh token. Un token inválido, vencido o revocado se
// informa como sesión expirada.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	pair, err := s.tokens.RefreshPair(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) {
			return TokenPair{}, domain.ErrSessionExpired
		}
		return TokenPair{}, err
	}
	return pair, nil
}

// SignOut revoca el refresh token. Un token ya inválido no es un error.
func (s *AuthService) SignOut(ctx context.Context, refreshToken string) error {
	err := s.tokens.RevokeRefresh(ctx, refreshToken)
	if errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) {
		return nil
	}
	return err
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// Tokens expone el servicio JWT para validar access tokens.
func (s *AuthService) Tokens() *JWTService {
	return s.tokens
}

func (s *AuthService) issue(ctx context.Context, user domain.User) (AuthResult, error) {
	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate tokens: %w", err)
	}
	return AuthResult{User: user, Tokens: &pair}, nil
}

func (s *AuthService) lookupByEmail(ctx context.Context, emailAddr string) (domain.User, error) {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user domain.User, code string) error {
	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	err := s.emailSender.SendVerification(ctx, email.Verification{
		To:          user.Email,
		DisplayName: user.DisplayName,
		Code:        code,
		ExpiresAt:   *user.OtpExpiresAt,
	})
	if err != nil {
		s.logger.Warn("send verification email failed", zap.Error(err), zap.String("email", user.Email))
		return ErrEmailSendFailure
	}
	return nil
}

func (s *AuthService) generateOTP() (string, string, time.Time, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", "", time.Time{}, err
	}
	code := fmt.Sprintf("%06d", n.Int64())

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", "", time.Time{}, err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	return code, saltStr + ":" + hashOTP(saltStr, code), s.now().Add(otpTTL), nil
}

func hashOTP(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func verifyOTP(code, stored string) bool {
	salt, expected, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashOTP(salt, code)), []byte(expected)) == 1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isPlausibleEmail(email string) bool {
	local, domainPart, ok := strings.Cut(email, "@")
	return ok && local != "" && strings.Contains(domainPart, ".") && !strings.ContainsAny(email, " \t")
}

func isValidOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
