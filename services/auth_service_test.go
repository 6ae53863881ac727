package services

import (
	"fmt"
	"testing"
	"time"

	"bandmate/auth"
	"bandmate/domain"
	"bandmate/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	byEmail map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]domain.User)}
}

func (f *fakeUserRepo) CreateUser(email, passwordHash string, role domain.Role) (string, error) {
	if _, ok := f.byEmail[email]; ok {
		return "", errors.ErrUserAlreadyExists
	}
	user := domain.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, Role: role}
	f.byEmail[email] = user
	return user.ID, nil
}

func (f *fakeUserRepo) GetUserByEmail(email string) (domain.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, email)
	}
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(id string) (domain.User, error) {
	for _, user := range f.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
}

func Test_Register_Then_Login(t *testing.T) {
	req := require.New(t)
	repo := newFakeUserRepo()
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	svc := NewAuthService(repo, issuer)

	token, err := svc.Register("alice@band.example", "ComplexPass123!!", domain.RolePerformer)
	req.NoError(err)
	req.NotEmpty(token)

	// The stored hash is not the plain password
	stored := repo.byEmail["alice@band.example"]
	req.NotEqual("ComplexPass123!!", stored.PasswordHash)

	token, err = svc.Login("alice@band.example", "ComplexPass123!!")
	req.NoError(err)

	claims, err := issuer.Validate(string(token))
	req.NoError(err)
	req.Equal(stored.ID, claims.UserID)
	req.Equal(string(domain.RolePerformer), claims.Role)
}

func Test_Register_Rejects_Weak_Password_And_Duplicates(t *testing.T) {
	req := require.New(t)
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, auth.NewTokenIssuer("test-secret", time.Hour))

	_, err := svc.Register("alice@band.example", "weak", domain.RolePerformer)
	req.ErrorIs(err, errors.ErrInvalidPassword)

	_, err = svc.Register("alice@band.example", "ComplexPass123!!", domain.RolePerformer)
	req.NoError(err)

	_, err = svc.Register("alice@band.example", "ComplexPass123!!", domain.RoleVenueOwner)
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func Test_Login_Failures_Are_Indistinguishable(t *testing.T) {
	req := require.New(t)
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, auth.NewTokenIssuer("test-secret", time.Hour))

	_, err := svc.Register("alice@band.example", "ComplexPass123!!", domain.RolePerformer)
	req.NoError(err)

	// Unknown account and wrong password yield the same generic error
	_, unknownErr := svc.Login("nobody@band.example", "ComplexPass123!!")
	req.ErrorIs(unknownErr, errors.ErrInvalidCredentials)

	_, wrongErr := svc.Login("alice@band.example", "WrongPass123!!!")
	req.ErrorIs(wrongErr, errors.ErrInvalidCredentials)

	req.Equal(unknownErr, wrongErr)
}
