package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken(map[string]string{"Authorization": "Bearer abc"}))
	assert.Equal(t, "abc", BearerToken(map[string]string{"authorization": "Bearer abc"}))
	assert.Equal(t, "", BearerToken(map[string]string{}))
}
