package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	i.now = func() time.Time { return now }
	return i
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	i := newTestIssuer(t, time.Now())
	tok, id, err := i.Issue("  Ada ")
	require.NoError(t, err)
	assert.Equal(t, "Ada", id.Name)
	assert.NotEmpty(t, id.UserID)

	got, err := i.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestVerifyRejects(t *testing.T) {
	start := time.Now()
	i := newTestIssuer(t, start)
	tok, _, err := i.Issue("Bo")
	require.NoError(t, err)

	other := newTestIssuer(t, start)
	other.secret = []byte("different")
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.Verify(tok[:len(tok)-2])
	assert.ErrorIs(t, err, ErrInvalidToken)

	i.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	i := newTestIssuer(t, time.Now())
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString(i.secret)
	require.NoError(t, err)
	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerValidates(t *testing.T) {
	_, err := NewIssuer(" ", time.Hour)
	assert.Error(t, err)
	_, err = NewIssuer("x", 0)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)
	tok, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)
	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("")
	assert.False(t, ok)
}
