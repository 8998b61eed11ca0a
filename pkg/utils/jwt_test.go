package utils

import (
	"testing"
	"time"

	"go-direct-chat/pkg/config"

	"github.com/stretchr/testify/assert"
)

func setupJWTConfig() {
	config.GlobalConfig.JWT = config.JWTConfig{
		Secret:     "unit-test-secret",
		Expiration: time.Hour,
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	setupJWTConfig()

	token, err := GenerateToken(42)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ParseToken(token)
	assert.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
}

func TestParseToken_Tampered(t *testing.T) {
	setupJWTConfig()

	token, err := GenerateToken(42)
	assert.NoError(t, err)

	// Flip a character in the signature segment.
	tampered := token[:len(token)-2] + "xx"
	_, err = ParseToken(tampered)
	assert.Error(t, err)
}

func TestParseToken_WrongSecret(t *testing.T) {
	setupJWTConfig()
	token, err := GenerateToken(7)
	assert.NoError(t, err)

	config.GlobalConfig.JWT.Secret = "some-other-secret"
	_, err = ParseToken(token)
	assert.Error(t, err)
}
