package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator verifies credentials. IdentityService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// sessionClaims are the JWT claims carried by a session token.
type sessionClaims struct {
	Admin bool `json:"adm"`
	jwt.RegisteredClaims
}

// AuthService issues and validates stateless HS256 session tokens.
type AuthService struct {
	identity   Authenticator
	secret     []byte
	now        func() time.Time
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(identity Authenticator, secret []byte, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(identity, secret, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(identity Authenticator, secret []byte, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		identity:   identity,
		secret:     secret,
		now:        now,
		sessionTTL: sessionTTL,
		logger:     defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Login validates credentials and issues a signed session token.
func (s *AuthService) Login(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.identity == nil {
		err = fmt.Errorf("identity service not configured")
		return
	}
	if len(s.secret) == 0 {
		err = fmt.Errorf("session secret not configured")
		return
	}

	logger := s.loggerWith(ctx, "Login", "email", normalizeEmail(params.Email))
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "session issued")
	}()

	var user User
	user, err = s.identity.Authenticate(ctx, params.Email, params.Password)
	if err != nil {
		return
	}

	issued := s.now()
	expires := issued.Add(s.sessionTTL)
	claims := sessionClaims{
		Admin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	var token string
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		err = fmt.Errorf("sign session token: %w", err)
		return
	}

	result = AuthenticateResult{
		User:    user,
		Session: Session{Token: token, IssuedAt: issued, ExpiresAt: expires},
	}
	return
}

// ValidateSession verifies a token and resolves the principal from the
// current account record.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (Principal, error) {
	if s == nil {
		return Principal{}, fmt.Errorf("AuthService is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Principal{}, ErrUnauthenticated
	}

	if s.identity == nil {
		return Principal{UserID: claims.Subject, IsAdmin: claims.Admin}, nil
	}
	user, err := s.identity.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	return Principal{UserID: user.ID, IsAdmin: user.IsAdmin}, nil
}
