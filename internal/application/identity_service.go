package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/appointment-booking/internal/persistence"
)

const minPasswordLength = 8

// IdentityService manages accounts, credentials and the first-run bootstrap.
type IdentityService struct {
	users       persistence.UserRepository
	idGenerator func() string
	now         func() time.Time
	params      PBKDF2Params
	logger      *slog.Logger
}

// NewIdentityService wires dependencies for the identity service.
func NewIdentityService(users persistence.UserRepository, idGenerator func() string, now func() time.Time) *IdentityService {
	return NewIdentityServiceWithLogger(users, idGenerator, now, nil)
}

// NewIdentityServiceWithLogger wires dependencies with a specified logger.
func NewIdentityServiceWithLogger(users persistence.UserRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *IdentityService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &IdentityService{
		users:       users,
		idGenerator: idGenerator,
		now:         now,
		params:      DefaultPBKDF2Params,
		logger:      defaultLogger(logger),
	}
}

// WithPasswordParams overrides the credential derivation parameters.
func (s *IdentityService) WithPasswordParams(params PBKDF2Params) *IdentityService {
	s.params = params
	return s
}

func (s *IdentityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "IdentityService", operation, attrs...)
}

// CreateUser validates input, derives a credential and persists the account.
func (s *IdentityService) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	return s.createUser(ctx, "CreateUser", params.Input, false)
}

// createUser persists the account through CreateFirstUser when first is set,
// so the empty-table check and the insert happen atomically in the store.
func (s *IdentityService) createUser(ctx context.Context, operation string, input UserInput, first bool) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	input = normalizeUserInput(input)
	logger := s.loggerWith(ctx, operation, "email", input.Email, "is_admin", input.IsAdmin)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user created")
	}()

	if vErr := validateUserInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	if _, lookupErr := s.users.GetUserByEmail(ctx, input.Email); lookupErr == nil {
		err = ErrDuplicateEmail
		return
	} else if !errors.Is(lookupErr, persistence.ErrNotFound) {
		err = lookupErr
		return
	}

	credential, err := CreatePasswordHash(input.Password, s.params)
	if err != nil {
		return
	}

	record := persistence.User{
		ID:           s.idGenerator(),
		Name:         input.Name,
		Email:        input.Email,
		Salt:         credential.Salt,
		PasswordHash: credential.Hash,
		IsAdmin:      input.IsAdmin,
		CreatedAt:    s.now(),
	}
	if first {
		err = s.users.CreateFirstUser(ctx, record)
	} else {
		err = s.users.CreateUser(ctx, record)
	}
	if err != nil {
		err = mapUserRepoError(err)
		return
	}

	user = toUser(record)
	return
}

// Register creates a regular account. It is refused until the first admin exists.
func (s *IdentityService) Register(ctx context.Context, input UserInput) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("IdentityService is nil")
	}
	required, err := s.RequiresSetup(ctx)
	if err != nil {
		return User{}, err
	}
	if required {
		return User{}, ErrSetupRequired
	}
	input.IsAdmin = false
	return s.CreateUser(ctx, CreateUserParams{Input: input})
}

// Bootstrap creates the first account as an administrator. Concurrent calls
// race on the store's CreateFirstUser; exactly one wins and the rest get
// ErrSetupCompleted.
func (s *IdentityService) Bootstrap(ctx context.Context, input UserInput) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("IdentityService is nil")
	}
	required, err := s.RequiresSetup(ctx)
	if err != nil {
		return User{}, err
	}
	if !required {
		return User{}, ErrSetupCompleted
	}
	input.IsAdmin = true
	return s.createUser(ctx, "Bootstrap", input, true)
}

// Authenticate returns the account matching the credentials. Every failure
// is reported as ErrInvalidCredentials.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "authentication succeeded")
	}()

	if email == "" || password == "" {
		err = ErrInvalidCredentials
		return
	}

	record, lookupErr := s.users.GetUserByEmail(ctx, email)
	if lookupErr != nil {
		if errors.Is(lookupErr, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
			return
		}
		err = lookupErr
		return
	}

	if verifyErr := VerifyPassword(Credential{Salt: record.Salt, Hash: record.PasswordHash}, password, s.params); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	user = toUser(record)
	return
}

// CountUsers returns the number of accounts.
func (s *IdentityService) CountUsers(ctx context.Context) (int, error) {
	if s == nil || s.users == nil {
		return 0, fmt.Errorf("user repository not configured")
	}
	return s.users.CountUsers(ctx)
}

// RequiresSetup reports whether no account exists yet.
func (s *IdentityService) RequiresSetup(ctx context.Context) (bool, error) {
	count, err := s.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// GetUser returns the account with the given id.
func (s *IdentityService) GetUser(ctx context.Context, id string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	record, err := s.users.GetUser(ctx, id)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}
	return toUser(record), nil
}

func normalizeUserInput(input UserInput) UserInput {
	return UserInput{
		Name:     strings.TrimSpace(input.Name),
		Email:    normalizeEmail(input.Email),
		Password: input.Password,
		IsAdmin:  input.IsAdmin,
	}
}

func validateUserInput(input UserInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Name == "" {
		vErr.add("name", "name is required")
	}
	if input.Email == "" {
		vErr.add("email", "email is required")
	} else if addr, err := mail.ParseAddress(input.Email); err != nil || addr.Address != input.Email {
		vErr.add("email", "email must be a valid address")
	}
	if input.Password == "" {
		vErr.add("password", "password is required")
	} else if utf8.RuneCountInString(input.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return vErr
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUser(record persistence.User) User {
	return User{
		ID:        record.ID,
		Name:      record.Name,
		Email:     record.Email,
		IsAdmin:   record.IsAdmin,
		CreatedAt: record.CreatedAt,
	}
}
