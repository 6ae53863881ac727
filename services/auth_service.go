package services

import (
	"bandmate/auth"
	"bandmate/domain"
	"bandmate/errors"
	"bandmate/repositories"
	"fmt"
)

type IAuthService interface {
	Login(email, password string) (Token, error)
	Register(email, password string, role domain.Role) (Token, error)
}

type AuthService struct {
	users  repositories.IUserRepository
	issuer *auth.TokenIssuer
}

type Token string

func NewAuthService(users repositories.IUserRepository, issuer *auth.TokenIssuer) *AuthService {
	return &AuthService{users: users, issuer: issuer}
}

func (s *AuthService) Register(email, password string, role domain.Role) (Token, error) {
	valReq := auth.RegisterRequest{
		Email:    email,
		Password: password,
		Role:     string(role),
	}

	// Validate before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hashing stays in the service layer so the repository never sees a
	// plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.users.CreateUser(email, hashedPassword, role)
	if err != nil {
		return "", err // Propagates ErrUserAlreadyExists when the email is taken
	}

	token, err := s.issuer.Generate(userID, string(role))
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration.
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := s.issuer.Generate(user.ID, string(user.Role))
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}
