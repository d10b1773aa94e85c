package auth

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithAuthorizer(authorizer map[string]interface{}) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: authorizer,
		},
	}
}

func TestExtractClaims_NestedClaims(t *testing.T) {
	request := requestWithAuthorizer(map[string]interface{}{
		"claims": map[string]interface{}{
			"user_id":           "42",
			"email":             "cashier@example.com",
			"sub":               "a1b2c3",
			"role_code":         "cashier",
			"hierarchy_level":   float64(20),
			"primary_branch_id": "7",
			"isSuperAdmin":      false,
		},
	})

	claims, err := ExtractClaimsFromRequest(request)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "cashier@example.com", claims.Email)
	assert.Equal(t, "a1b2c3", claims.CognitoID)
	assert.Equal(t, "cashier", claims.RoleCode)
	assert.Equal(t, 20, claims.HierarchyLevel)
	assert.Equal(t, int64(7), claims.PrimaryBranchID)
	assert.False(t, claims.IsSuperAdmin)
}

func TestExtractClaims_FlatAuthorizer(t *testing.T) {
	request := requestWithAuthorizer(map[string]interface{}{
		"user_id":      float64(9),
		"email":        "admin@example.com",
		"sub":          "d4e5f6",
		"isSuperAdmin": "true",
	})

	claims, err := ExtractClaimsFromRequest(request)
	require.NoError(t, err)

	assert.Equal(t, int64(9), claims.UserID)
	assert.True(t, claims.IsSuperAdmin)
	assert.Empty(t, claims.RoleCode)
}

func TestExtractClaims_MissingUserID(t *testing.T) {
	request := requestWithAuthorizer(map[string]interface{}{
		"claims": map[string]interface{}{
			"email": "x@example.com",
			"sub":   "sub",
		},
	})

	_, err := ExtractClaimsFromRequest(request)
	assert.Error(t, err)
}

func TestExtractClaims_NoAuthorizer(t *testing.T) {
	_, err := ExtractClaimsFromRequest(events.APIGatewayProxyRequest{})
	assert.Error(t, err)
}
