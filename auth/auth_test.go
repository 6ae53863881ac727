package auth

import (
	"strings"
	"testing"
	"time"

	"bandmate/errors"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MonMotDePasseTr0pSûr!"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	// Test de la comparaison négative (mauvais mot de passe)
	match, err = ComparePassword("MauvaisMDP", hash)
	req.NoError(err)
	req.False(match)
}

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("unit-test-secret", time.Hour)

	token, err := issuer.Generate("user-42", "PERFORMER")
	req.NoError(err)

	claims, err := issuer.Validate(token)
	req.NoError(err)
	req.Equal("user-42", claims.UserID)
	req.Equal("PERFORMER", claims.Role)
	req.Equal("bandmate", claims.Issuer)
}

func TestTokenRejections(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("unit-test-secret", time.Hour)

	// Wrong secret
	other := NewTokenIssuer("different-secret", time.Hour)
	token, err := other.Generate("user-42", "PERFORMER")
	req.NoError(err)
	_, err = issuer.Validate(token)
	req.Error(err)

	// Expired token
	expired := NewTokenIssuer("unit-test-secret", -time.Minute)
	token, err = expired.Generate("user-42", "PERFORMER")
	req.NoError(err)
	_, err = issuer.Validate(token)
	req.Error(err)

	// Garbage
	_, err = issuer.Validate("not.a.token")
	req.Error(err)
}

func TestRegistrationValidation(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"test@example.com", "ComplexPass123!!", "PERFORMER"}, false},
		{"Valid venue owner", RegisterRequest{"venue@example.com", "ComplexPass123!!", "VENUE_OWNER"}, false},
		{"Invalid email", RegisterRequest{"notanemail", "ComplexPass123!!", "PERFORMER"}, true},
		{"Unknown role", RegisterRequest{"test@example.com", "ComplexPass123!!", "ROADIE"}, true},
		{"Password too short", RegisterRequest{"test@example.com", "Short1!", "PERFORMER"}, true},
		{"Missing digit", RegisterRequest{"test@example.com", "NoDigitPassword!", "PERFORMER"}, true},
		{"Missing special char", RegisterRequest{"test@example.com", "NoSpecialChar123", "PERFORMER"}, true},
		{"Missing uppercase", RegisterRequest{"test@example.com", "nouppercase123!!", "PERFORMER"}, true},
		{"Password too long (edge case)", RegisterRequest{"test@example.com", strings.Repeat("a", 73), "PERFORMER"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				req.Error(err)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestComplexityErrorIsTyped(t *testing.T) {
	req := require.New(t)
	err := ValidateRegister(RegisterRequest{"test@example.com", "nouppercase123!!", "PERFORMER"})
	req.ErrorIs(err, errors.ErrInvalidPassword)
}

// BenchmarkHashPassword permet de mesurer l'impact CPU/RAM (Crucial pour K8s)
func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
