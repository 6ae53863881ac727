//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"bandmate/domain"
	"bandmate/errors"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, passwordHash string, role domain.Role) (string, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUserByID(id string) (domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type diskUser struct {
	ID           string    `cbor:"id"`
	Email        string    `cbor:"email"`
	PasswordHash string    `cbor:"password_hash"`
	Role         string    `cbor:"role"`
	CreatedAt    time.Time `cbor:"created_at"`
}

// CreateUser persists a new account and returns its generated id. The email
// key doubles as the uniqueness check, performed inside the transaction.
func (u *UserRepository) CreateUser(email, passwordHash string, role domain.Role) (string, error) {
	rec := diskUser{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         string(role),
		CreatedAt:    time.Now().UTC(),
	}
	data, err := recordEnc.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}
	err = update(u.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(userEmailKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(userEmailKey(email), data); err != nil {
			return err
		}
		return txn.Set(userIDKey(rec.ID), []byte(email))
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (u *UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var rec diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: user %s", errors.ErrNotFound, email)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return toUser(rec), nil
}

func (u *UserRepository) GetUserByID(id string) (domain.User, error) {
	var email string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			email = string(val)
			return nil
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return u.GetUserByEmail(email)
}

func toUser(rec diskUser) domain.User {
	return domain.User{
		ID:           rec.ID,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         domain.ParseRole(rec.Role),
		CreatedAt:    rec.CreatedAt.UTC(),
	}
}
