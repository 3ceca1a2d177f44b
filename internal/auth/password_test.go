package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("p@ssw0rd!", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "p@ssw0rd!", hash)

	assert.NoError(t, ComparePassword(hash, "p@ssw0rd!"))
	assert.Error(t, ComparePassword(hash, "wrong"))
	assert.Error(t, ComparePassword(hash, ""))
}

func TestHashPassword_Salted(t *testing.T) {
	first, err := HashPassword("same", bcrypt.MinCost)
	require.NoError(t, err)
	second, err := HashPassword("same", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHashPassword_CostOutOfRangeUsesDefault(t *testing.T) {
	hash, err := HashPassword("secret", 99)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestHashPassword_LongPasswordTruncated(t *testing.T) {
	long := strings.Repeat("p", 73)

	hash, err := HashPassword(long, bcrypt.MinCost)
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, long))
	assert.NoError(t, ComparePassword(hash, long[:72]), "bytes past 72 are ignored")
	assert.Error(t, ComparePassword(hash, long[:71]))
}
