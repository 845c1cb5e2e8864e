// Package auth orchestrates the login, registration, refresh, and logout
// operations over the identity provider, the credential signer, and the
// renewal token service.
package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/eventrian/go-session-service/token/access"
	"github.com/eventrian/go-session-service/token/renewal"
	"github.com/eventrian/go-session-service/users"
)

// Service implements the auth operations. Expected failures (bad password,
// dead token) come back inside the response DTOs; returned errors mean the
// backing stores are unavailable.
type Service struct {
	users    users.Provider
	signer   access.Signer
	renewals *renewal.Service
	logger   zerolog.Logger
}

func NewService(provider users.Provider, signer access.Signer, renewals *renewal.Service, logger zerolog.Logger) (*Service, error) {
	if provider == nil {
		return nil, errors.New("[NewService] users provider is required")
	}
	if signer == nil {
		return nil, errors.New("[NewService] signer is required")
	}
	if renewals == nil {
		return nil, errors.New("[NewService] renewal service is required")
	}
	return &Service{
		users:    provider,
		signer:   signer,
		renewals: renewals,
		logger:   logger.With().Str("component", "auth").Logger(),
	}, nil
}

func (s *Service) Login(ctx context.Context, request LoginRequest) (LoginResponse, error) {
	user, err := s.users.FindByEmail(ctx, request.Email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return failedLogin(InvalidCredentialsErr.Error()), nil
		}
		return LoginResponse{}, errors.Wrap(err, "[Login] user lookup failed")
	}

	ok, err := s.users.VerifyPassword(ctx, user.ID, request.Password)
	if err != nil {
		return LoginResponse{}, errors.Wrap(err, "[Login] password verification failed")
	}
	if !ok {
		return failedLogin(InvalidCredentialsErr.Error()), nil
	}

	return s.establishSession(ctx, user, request.RememberMe, "Login successful.")
}

func (s *Service) Register(ctx context.Context, request RegisterRequest) (LoginResponse, error) {
	if fieldErrors := validateRegistration(request); len(fieldErrors) > 0 {
		return failedLogin("Registration failed.", fieldErrors...), nil
	}

	user, err := s.users.Create(ctx, users.NewUser{
		FirstName: request.FirstName,
		LastName:  request.LastName,
		Email:     request.Email,
		Password:  request.Password,
	})
	if err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			return failedLogin(UserExistsErr.Error()), nil
		}
		return LoginResponse{}, errors.Wrap(err, "[Register] user creation failed")
	}

	// Registration never starts a persistent session; that choice belongs to
	// a later login.
	return s.establishSession(ctx, user, false, "User registered successfully.")
}

func (s *Service) Refresh(ctx context.Context, request RefreshRequest) (RefreshResponse, error) {
	result, err := s.renewals.ValidateAndRotate(ctx, request.RefreshToken)
	if err != nil {
		return RefreshResponse{}, errors.Wrap(err, "[Refresh] rotation failed")
	}
	if !result.Valid {
		return failedRefresh("Invalid or expired refresh token."), nil
	}

	user, err := s.users.FindByID(ctx, result.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.logger.Warn().Str("userId", result.UserID).Msg("refresh succeeded but owning user no longer exists")
			return failedRefresh(UserNotFoundErr.Error()), nil
		}
		return RefreshResponse{}, errors.Wrap(err, "[Refresh] user lookup failed")
	}

	accessToken, err := s.signToken(ctx, user)
	if err != nil {
		return RefreshResponse{}, err
	}

	return RefreshResponse{
		Success:      true,
		AccessToken:  accessToken,
		RefreshToken: result.NewValue,
		Message:      "Token refreshed.",
	}, nil
}

func (s *Service) Logout(ctx context.Context, request LogoutRequest) (LogoutResponse, error) {
	_, err := s.renewals.UserIDForToken(ctx, request.RefreshToken)
	if err != nil {
		if errors.Is(err, renewal.ErrNotFound) {
			return LogoutResponse{Success: false, Message: "Invalid refresh token."}, nil
		}
		return LogoutResponse{}, errors.Wrap(err, "[Logout] token lookup failed")
	}

	if err := s.renewals.Revoke(ctx, request.RefreshToken); err != nil {
		return LogoutResponse{}, errors.Wrap(err, "[Logout] revoke failed")
	}

	return LogoutResponse{Success: true, Message: "Logged out and refresh token invalidated."}, nil
}

func (s *Service) establishSession(ctx context.Context, user *users.User, rememberMe bool, message string) (LoginResponse, error) {
	accessToken, err := s.signToken(ctx, user)
	if err != nil {
		return LoginResponse{}, err
	}

	refreshToken, err := s.renewals.Issue(ctx, user.ID, rememberMe)
	if err != nil {
		return LoginResponse{}, errors.Wrap(err, "[establishSession] failed to issue renewal token")
	}

	return LoginResponse{
		Success:      true,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Email:        user.Email,
		Message:      message,
	}, nil
}

func (s *Service) signToken(ctx context.Context, user *users.User) (string, error) {
	roles, err := s.users.Roles(ctx, user.ID)
	if err != nil {
		return "", errors.Wrap(err, "[signToken] role lookup failed")
	}

	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, string(role))
	}

	token, err := s.signer.Sign(access.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.FullName(),
		Roles:  roleNames,
	})
	if err != nil {
		return "", errors.Wrap(err, "[signToken] failed to sign access token")
	}
	return token, nil
}

func validateRegistration(request RegisterRequest) []string {
	var fieldErrors []string
	if strings.TrimSpace(request.Email) == "" || !strings.Contains(request.Email, "@") {
		fieldErrors = append(fieldErrors, "A valid email address is required.")
	}
	if strings.TrimSpace(request.FirstName) == "" {
		fieldErrors = append(fieldErrors, "First name is required.")
	}
	if strings.TrimSpace(request.LastName) == "" {
		fieldErrors = append(fieldErrors, "Last name is required.")
	}
	if len(request.Password) < 8 {
		fieldErrors = append(fieldErrors, "Password must be at least 8 characters.")
	}
	if request.Password != request.ConfirmPassword {
		fieldErrors = append(fieldErrors, "Passwords do not match.")
	}
	return fieldErrors
}
