package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
	"github.com/jwalitptl/mis-api/pkg/auth"
	apperrors "github.com/jwalitptl/mis-api/pkg/errors"
	"github.com/jwalitptl/mis-api/pkg/metrics"
	"github.com/jwalitptl/mis-api/pkg/security"
)

const (
	msgNoActiveAccount = "No active account found with the given credentials"
	msgTokenInvalid    = "Token is invalid or expired"
	msgTokenBlacklist  = "Token is blacklisted"
	msgUserNotFound    = "User not found"
	msgUserInactive    = "User is inactive"
	msgUsernameTaken   = "A user with that username already exists."
)

type Service struct {
	userRepo  repository.UserRepository
	jwtSvc    auth.JWTService
	hasher    security.PasswordHasher
	blacklist Blacklist
	metrics   *metrics.Metrics
}

func NewService(userRepo repository.UserRepository, jwtSvc auth.JWTService,
	hasher security.PasswordHasher, blacklist Blacklist, m *metrics.Metrics) *Service {
	return &Service{
		userRepo:  userRepo,
		jwtSvc:    jwtSvc,
		hasher:    hasher,
		blacklist: blacklist,
		metrics:   m,
	}
}

// Register stores a new user with the profile matching its role. Admins
// become staff and superuser.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	user, err := s.register(ctx, req)
	s.metrics.ObserveAuth("register", err)
	return user, err
}

func (s *Service) register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	if _, err := s.userRepo.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperrors.FieldError("username", msgUsernameTaken)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Database(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to hash password: %w", err))
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		MiddleName:   req.MiddleName,
		Email:        req.Email,
		Role:         req.Role,
		IsActive:     true,
	}
	if user.Role == model.RoleAdmin {
		user.IsStaff = true
		user.IsSuperuser = true
	}

	if err := s.userRepo.Register(ctx, user); err != nil {
		if errors.Is(err, repository.ErrIntegrity) {
			return nil, apperrors.Integrity(err)
		}
		return nil, apperrors.Database(err)
	}

	log.Ctx(ctx).Info().
		Int64("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("user registered")
	return user, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*model.TokenPair, error) {
	tokens, err := s.login(ctx, username, password)
	s.metrics.ObserveAuth("login", err)
	return tokens, err
}

func (s *Service) login(ctx context.Context, username, password string) (*model.TokenPair, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgNoActiveAccount, err)
		}
		return nil, apperrors.Internal(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.Unauthorized(msgNoActiveAccount, err)
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized(msgNoActiveAccount, nil)
	}

	return s.generateTokens(user)
}

// Refresh rotates a refresh token: the used token is blacklisted until
// it would have expired and a new pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	tokens, err := s.refresh(ctx, refreshToken)
	s.metrics.ObserveAuth("refresh", err)
	return tokens, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(msgTokenInvalid, err)
	}

	blacklisted, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if blacklisted {
		return nil, apperrors.Unauthorized(msgTokenBlacklist, nil)
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.blacklist.Claim(ctx, claims.ID, claims.ExpiresIn(time.Now()))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !claimed {
		return nil, apperrors.Unauthorized(msgTokenBlacklist, nil)
	}

	return s.generateTokens(user)
}

// Authenticate resolves an access token to the currently stored user
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.jwtSvc.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, apperrors.Unauthorized("Given token not valid for any token type", err)
	}
	return s.activeUser(ctx, claims.UserID)
}

func (s *Service) activeUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgUserNotFound, err)
		}
		return nil, apperrors.Internal(err)
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized(msgUserInactive, nil)
	}
	return user, nil
}

func (s *Service) generateTokens(user *model.User) (*model.TokenPair, error) {
	access, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	refresh, err := s.jwtSvc.GenerateRefreshToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &model.TokenPair{Access: access, Refresh: refresh}, nil
}
