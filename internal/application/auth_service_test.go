package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type stubAuthenticator struct {
	user    User
	authErr error
	getErr  error
}

func (s *stubAuthenticator) Authenticate(context.Context, string, string) (User, error) {
	if s.authErr != nil {
		return User{}, s.authErr
	}
	return s.user, nil
}

func (s *stubAuthenticator) GetUser(context.Context, string) (User, error) {
	if s.getErr != nil {
		return User{}, s.getErr
	}
	return s.user, nil
}

type mutableClock struct {
	now time.Time
}

func (c *mutableClock) Now() time.Time { return c.now }

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &mutableClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	secret := []byte("test-secret")

	t.Run("issues a signed token carrying subject and admin flag", func(t *testing.T) {
		t.Parallel()
		identity := &stubAuthenticator{user: User{ID: "user-1", IsAdmin: true}}
		svc := NewAuthServiceWithLogger(identity, secret, clock.Now, time.Hour, discardLogger())

		result, err := svc.Login(ctx, AuthenticateParams{Email: "a@example.com", Password: "pw"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if !result.Session.ExpiresAt.Equal(clock.now.Add(time.Hour)) {
			t.Fatalf("unexpected expiry %s", result.Session.ExpiresAt)
		}

		claims := &sessionClaims{}
		_, err = jwt.ParseWithClaims(result.Session.Token, claims, func(*jwt.Token) (any, error) { return secret, nil },
			jwt.WithTimeFunc(clock.Now))
		if err != nil {
			t.Fatalf("token did not parse: %v", err)
		}
		if claims.Subject != "user-1" || !claims.Admin {
			t.Fatalf("unexpected claims %+v", claims)
		}
	})

	t.Run("propagates invalid credentials", func(t *testing.T) {
		t.Parallel()
		identity := &stubAuthenticator{authErr: ErrInvalidCredentials}
		svc := NewAuthServiceWithLogger(identity, secret, clock.Now, time.Hour, discardLogger())

		if _, err := svc.Login(ctx, AuthenticateParams{Email: "a@example.com", Password: "bad"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("refuses to sign without a secret", func(t *testing.T) {
		t.Parallel()
		svc := NewAuthService(&stubAuthenticator{}, nil, clock.Now, time.Hour)
		if _, err := svc.Login(ctx, AuthenticateParams{}); err == nil {
			t.Fatal("expected an error without a secret")
		}
	})
}

func TestAuthService_ValidateSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	secret := []byte("test-secret")
	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	login := func(t *testing.T, svc *AuthService) string {
		t.Helper()
		result, err := svc.Login(ctx, AuthenticateParams{Email: "a@example.com", Password: "pw"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		return result.Session.Token
	}

	t.Run("resolves the principal from the current account", func(t *testing.T) {
		t.Parallel()
		identity := &stubAuthenticator{user: User{ID: "user-1", IsAdmin: true}}
		clock := &mutableClock{now: issued}
		svc := NewAuthServiceWithLogger(identity, secret, clock.Now, time.Hour, discardLogger())
		token := login(t, svc)

		identity.user.IsAdmin = false
		principal, err := svc.ValidateSession(ctx, token)
		if err != nil {
			t.Fatalf("ValidateSession failed: %v", err)
		}
		if principal.UserID != "user-1" || principal.IsAdmin {
			t.Fatalf("expected demoted principal, got %+v", principal)
		}
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		t.Parallel()
		clock := &mutableClock{now: issued}
		svc := NewAuthServiceWithLogger(&stubAuthenticator{user: User{ID: "user-1"}}, secret, clock.Now, time.Hour, discardLogger())
		token := login(t, svc)

		clock.now = issued.Add(2 * time.Hour)
		if _, err := svc.ValidateSession(ctx, token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("rejects tokens signed with another secret", func(t *testing.T) {
		t.Parallel()
		clock := &mutableClock{now: issued}
		identity := &stubAuthenticator{user: User{ID: "user-1"}}
		other := NewAuthServiceWithLogger(identity, []byte("other-secret"), clock.Now, time.Hour, discardLogger())
		svc := NewAuthServiceWithLogger(identity, secret, clock.Now, time.Hour, discardLogger())

		if _, err := svc.ValidateSession(ctx, login(t, other)); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("rejects unsigned tokens", func(t *testing.T) {
		t.Parallel()
		clock := &mutableClock{now: issued}
		svc := NewAuthServiceWithLogger(&stubAuthenticator{user: User{ID: "user-1"}}, secret, clock.Now, time.Hour, discardLogger())

		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, sessionClaims{
			Admin: true,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("failed to build unsigned token: %v", err)
		}
		if _, err := svc.ValidateSession(ctx, unsigned); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("rejects tokens for accounts that no longer exist", func(t *testing.T) {
		t.Parallel()
		clock := &mutableClock{now: issued}
		identity := &stubAuthenticator{user: User{ID: "user-1"}}
		svc := NewAuthServiceWithLogger(identity, secret, clock.Now, time.Hour, discardLogger())
		token := login(t, svc)

		identity.getErr = ErrNotFound
		if _, err := svc.ValidateSession(ctx, token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("rejects blank tokens", func(t *testing.T) {
		t.Parallel()
		svc := NewAuthService(&stubAuthenticator{}, secret, nil, 0)
		if _, err := svc.ValidateSession(ctx, "  "); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})
}
