package auth

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// Claims represents the JWT claims extracted from the API Gateway authorizer
// context. The token customizer puts the role and branch context there at
// login time; everything else is standard Cognito material.
type Claims struct {
	UserID          int64  `json:"user_id"`
	Email           string `json:"email"`
	CognitoID       string `json:"sub"`
	RoleCode        string `json:"role_code"`
	HierarchyLevel  int    `json:"hierarchy_level"`
	PrimaryBranchID int64  `json:"primary_branch_id"`
	IsSuperAdmin    bool   `json:"isSuperAdmin"`
}

// ExtractClaimsFromRequest extracts and parses JWT claims from an API Gateway request
func ExtractClaimsFromRequest(request events.APIGatewayProxyRequest) (*Claims, error) {
	var claimsMap map[string]interface{}
	var ok bool

	// Try different possible claim locations in the authorizer context
	if authClaims, exists := request.RequestContext.Authorizer["claims"]; exists {
		claimsMap, ok = authClaims.(map[string]interface{})
	}

	// If claims not found, try direct access to authorizer (some API Gateway configurations)
	if !ok {
		claimsMap = request.RequestContext.Authorizer
		ok = (claimsMap != nil)
	}

	if !ok || claimsMap == nil {
		return nil, fmt.Errorf("claims not found in authorizer context")
	}

	userID, err := parseInt64Claim(claimsMap, "user_id")
	if err != nil {
		return nil, err
	}

	email, ok := claimsMap["email"].(string)
	if !ok {
		return nil, fmt.Errorf("email not found or invalid in claims")
	}

	cognitoID, ok := claimsMap["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("sub not found or invalid in claims")
	}

	// Role context is optional; users awaiting role assignment have none.
	roleCode, _ := claimsMap["role_code"].(string)
	hierarchyLevel, _ := parseInt64Claim(claimsMap, "hierarchy_level")
	primaryBranchID, _ := parseInt64Claim(claimsMap, "primary_branch_id")

	var isSuperAdmin bool
	if superAdminValue, exists := claimsMap["isSuperAdmin"]; exists {
		if isSuperAdmin, ok = superAdminValue.(bool); !ok {
			if superAdminStr, ok := superAdminValue.(string); ok && superAdminStr == "true" {
				isSuperAdmin = true
			}
		}
	}

	return &Claims{
		UserID:          userID,
		Email:           email,
		CognitoID:       cognitoID,
		RoleCode:        roleCode,
		HierarchyLevel:  int(hierarchyLevel),
		PrimaryBranchID: primaryBranchID,
		IsSuperAdmin:    isSuperAdmin,
	}, nil
}

// parseInt64Claim reads a numeric claim that may arrive as a JSON number or a
// string, depending on the API Gateway configuration.
func parseInt64Claim(claims map[string]interface{}, key string) (int64, error) {
	value, exists := claims[key]
	if !exists {
		return 0, fmt.Errorf("%s not found in claims", key)
	}

	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s string: %w", key, err)
		}
		return parsed, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%s has unexpected type", key)
	}
}

// ToJSON converts claims to JSON string for logging
func (c *Claims) ToJSON() string {
	data, _ := json.Marshal(c)
	return string(data)
}
