package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"

	"backoffice/lib/api"
	"backoffice/lib/auth"
	"backoffice/lib/data"
	"backoffice/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func (h *Handler) createUser(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", h.Logger), nil
	}

	if !claims.IsSuperAdmin {
		h.Logger.WithField("user_id", claims.UserID).Warn("Non-super admin attempted to create user")
		return api.ErrorResponse(http.StatusForbidden, "Super admin access required", h.Logger), nil
	}

	var createRequest models.CreateUserRequest
	if err := json.Unmarshal([]byte(request.Body), &createRequest); err != nil {
		h.Logger.WithError(err).Error("Failed to parse create user request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", h.Logger), nil
	}

	if createRequest.Username == "" || createRequest.Email == "" || createRequest.FullName == "" {
		return api.ErrorResponse(http.StatusBadRequest, "Username, email and full name are required", h.Logger), nil
	}

	// Validate the role before touching Cognito.
	if createRequest.RoleID > 0 {
		if _, err := h.Roles.GetRoleByID(ctx, createRequest.RoleID); err != nil {
			if errors.Is(err, data.ErrRoleNotFound) {
				return api.ErrorResponse(http.StatusBadRequest, "Unknown role", h.Logger), nil
			}
			h.Logger.WithError(err).Error("Failed to validate role for new user")
			return api.ErrorResponse(http.StatusInternalServerError, "Failed to create user", h.Logger), nil
		}
	}

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to start transaction for user creation")
		return api.ErrorResponse(http.StatusInternalServerError, "Internal server error", h.Logger), nil
	}
	defer tx.Rollback()

	// Create the Cognito account first; the database row references its sub.
	tempPassword, cognitoID, err := h.createCognitoUser(ctx, createRequest.Email, createRequest.FullName)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to create user in Cognito")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to create user account", h.Logger), nil
	}

	user := &models.User{
		Username:  createRequest.Username,
		Email:     createRequest.Email,
		FullName:  createRequest.FullName,
		CognitoID: cognitoID,
	}
	if createRequest.RoleID > 0 {
		user.RoleID = sql.NullInt64{Int64: createRequest.RoleID, Valid: true}
	}

	createdUser, err := h.Users.CreateUser(ctx, tx, user)
	if err != nil {
		// The Cognito account must not outlive a failed database insert.
		h.deleteCognitoUser(ctx, cognitoID)
		h.Logger.WithError(err).Error("Failed to create user in database")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to create user", h.Logger), nil
	}

	if err = tx.Commit(); err != nil {
		h.deleteCognitoUser(ctx, cognitoID)
		h.Logger.WithError(err).Error("Failed to commit user creation transaction")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to create user", h.Logger), nil
	}

	h.Logger.WithFields(logrus.Fields{
		"user_id":  createdUser.UserID,
		"username": createdUser.Username,
	}).Info("Successfully created user")

	return api.SuccessResponse(http.StatusCreated, map[string]interface{}{
		"user":               createdUser,
		"temporary_password": tempPassword,
		"message":            "User created successfully. Temporary password sent via email.",
	}, h.Logger), nil
}

func (h *Handler) listUsers(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := auth.ExtractClaimsFromRequest(request); err != nil {
		h.Logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", h.Logger), nil
	}

	users, err := h.Users.ListUsers(ctx)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to list users")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to retrieve users", h.Logger), nil
	}

	response := models.UserListResponse{
		Users: users,
		Total: len(users),
	}

	return api.SuccessResponse(http.StatusOK, response, h.Logger), nil
}

func (h *Handler) getUserByID(ctx context.Context, request events.APIGatewayProxyRequest, userIDStr string) (events.APIGatewayProxyResponse, error) {
	if _, err := auth.ExtractClaimsFromRequest(request); err != nil {
		h.Logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", h.Logger), nil
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", h.Logger), nil
	}

	user, err := h.Users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", h.Logger), nil
		}
		h.Logger.WithError(err).Error("Failed to get user")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to retrieve user", h.Logger), nil
	}

	return api.SuccessResponse(http.StatusOK, user, h.Logger), nil
}

func (h *Handler) deleteUser(ctx context.Context, request events.APIGatewayProxyRequest, userIDStr string) (events.APIGatewayProxyResponse, error) {
	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", h.Logger), nil
	}

	if !claims.IsSuperAdmin {
		h.Logger.WithField("user_id", claims.UserID).Warn("Non-super admin attempted to delete user")
		return api.ErrorResponse(http.StatusForbidden, "Super admin access required", h.Logger), nil
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", h.Logger), nil
	}

	if userID == claims.UserID {
		return api.ErrorResponse(http.StatusBadRequest, "Cannot delete your own account", h.Logger), nil
	}

	deleted, err := h.Users.DeleteUser(ctx, userID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", h.Logger), nil
		}
		h.Logger.WithError(err).Error("Failed to delete user")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to delete user", h.Logger), nil
	}

	if err = h.deleteCognitoUser(ctx, deleted.CognitoID); err != nil {
		h.Logger.WithError(err).Warn("Failed to delete user from Cognito, but database deletion succeeded")
	}

	h.Cache.Invalidate(ctx, userID)

	return api.SuccessResponse(http.StatusOK, map[string]string{
		"message": "User deleted successfully",
	}, h.Logger), nil
}

func (h *Handler) getEffectivePermissions(ctx context.Context, request events.APIGatewayProxyRequest, userIDStr string) (events.APIGatewayProxyResponse, error) {
	if _, err := auth.ExtractClaimsFromRequest(request); err != nil {
		h.Logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", h.Logger), nil
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", h.Logger), nil
	}

	// The resolver maps an unknown user to an empty set; the admin view
	// should distinguish that from a user with no permissions.
	if _, err := h.Users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", h.Logger), nil
		}
		h.Logger.WithError(err).Error("Failed to look up user for permission resolution")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to resolve permissions", h.Logger), nil
	}

	codes, err := h.Resolver.Resolve(ctx, userID)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to resolve effective permissions")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to resolve permissions", h.Logger), nil
	}

	response := models.EffectivePermissionsResponse{
		UserID:      userID,
		Permissions: codes,
	}

	return api.SuccessResponse(http.StatusOK, response, h.Logger), nil
}

func (h *Handler) getPermissionReview(ctx context.Context, request events.APIGatewayProxyRequest, userIDStr string) (events.APIGatewayProxyResponse, error) {
	if _, err := auth.ExtractClaimsFromRequest(request); err != nil {
		h.Logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", h.Logger), nil
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", h.Logger), nil
	}

	user, err := h.Users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", h.Logger), nil
		}
		h.Logger.WithError(err).Error("Failed to get user for permission review")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to build permission review", h.Logger), nil
	}

	review, err := h.buildPermissionReview(ctx, user)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to build permission review")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to build permission review", h.Logger), nil
	}

	return api.SuccessResponse(http.StatusOK, review, h.Logger), nil
}

// buildPermissionReview joins the full catalog against the user's role grants
// and overrides so the settings screen can render every permission with its
// current state for this user.
func (h *Handler) buildPermissionReview(ctx context.Context, user *models.User) (*models.UserPermissionReviewResponse, error) {
	catalog, err := h.Permissions.GetPermissions(ctx, "")
	if err != nil {
		return nil, err
	}

	roleCodes := map[string]bool{}
	if user.RoleID.Valid {
		codes, err := h.Roles.GetRolePermissionCodes(ctx, user.RoleID.Int64)
		if err != nil {
			return nil, err
		}
		for _, code := range codes {
			roleCodes[code] = true
		}
	}

	overrides, err := h.Overrides.GetUserOverrides(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	overrideStatus := map[string]string{}
	for _, code := range overrides.Granted {
		overrideStatus[code] = "granted"
	}
	for _, code := range overrides.Revoked {
		overrideStatus[code] = "revoked"
	}

	reviews := make([]models.PermissionReview, 0, len(catalog))
	moduleSet := map[string]bool{}
	for _, permission := range catalog {
		reviews = append(reviews, models.PermissionReview{
			Permission:        permission,
			HasRolePermission: roleCodes[permission.PermissionCode],
			OverrideStatus:    overrideStatus[permission.PermissionCode],
		})
		moduleSet[permission.Module] = true
	}

	modules := make([]string, 0, len(moduleSet))
	for module := range moduleSet {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	response := &models.UserPermissionReviewResponse{
		UserID:      user.UserID,
		Username:    user.Username,
		Permissions: reviews,
		Modules:     modules,
	}
	if user.RoleName.Valid {
		response.RoleName = user.RoleName.String
	}

	return response, nil
}

func (h *Handler) replaceOverrides(ctx context.Context, request events.APIGatewayProxyRequest, userIDStr string) (events.APIGatewayProxyResponse, error) {
	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", h.Logger), nil
	}

	if !claims.IsSuperAdmin {
		h.Logger.WithField("user_id", claims.UserID).Warn("Non-super admin attempted to replace overrides")
		return api.ErrorResponse(http.StatusForbidden, "Super admin access required", h.Logger), nil
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", h.Logger), nil
	}

	var replaceRequest models.ReplaceOverridesRequest
	if err := json.Unmarshal([]byte(request.Body), &replaceRequest); err != nil {
		h.Logger.WithError(err).Error("Failed to parse replace overrides request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", h.Logger), nil
	}

	overrides := make([]models.PermissionOverride, 0, len(replaceRequest.Overrides))
	for _, entry := range replaceRequest.Overrides {
		if entry.PermissionID <= 0 {
			return api.ErrorResponse(http.StatusBadRequest, "Permission ids must be positive", h.Logger), nil
		}
		if entry.IsGranted == nil {
			return api.ErrorResponse(http.StatusBadRequest, "Each override must state is_granted", h.Logger), nil
		}
		overrides = append(overrides, models.PermissionOverride{
			PermissionID: entry.PermissionID,
			IsGranted:    *entry.IsGranted,
		})
	}

	count, err := h.Overrides.ReplaceUserOverrides(ctx, userID, overrides)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", h.Logger), nil
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return api.ErrorResponse(http.StatusBadRequest, "Unknown permission id in overrides", h.Logger), nil
		}
		h.Logger.WithError(err).Error("Failed to replace user overrides")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to replace overrides", h.Logger), nil
	}

	h.Cache.Invalidate(ctx, userID)

	return api.SuccessResponse(http.StatusOK, map[string]interface{}{
		"user_id":        userID,
		"override_count": count,
	}, h.Logger), nil
}

// Helper function to create user in Cognito
func (h *Handler) createCognitoUser(ctx context.Context, email, fullName string) (tempPassword, cognitoID string, err error) {
	tempPassword, err = generateTempPassword()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate temporary password: %w", err)
	}

	input := &cognitoidentityprovider.AdminCreateUserInput{
		UserPoolId:        aws.String(h.UserPoolID),
		Username:          aws.String(email),
		TemporaryPassword: aws.String(tempPassword),
		MessageAction:     types.MessageActionType("SEND"),
		UserAttributes: []types.AttributeType{
			{
				Name:  aws.String("email"),
				Value: aws.String(email),
			},
			{
				Name:  aws.String("name"),
				Value: aws.String(fullName),
			},
			{
				Name:  aws.String("email_verified"),
				Value: aws.String("true"),
			},
		},
	}

	result, err := h.CognitoClient.AdminCreateUser(ctx, input)
	if err != nil {
		return "", "", fmt.Errorf("failed to create user in Cognito: %w", err)
	}

	for _, attr := range result.User.Attributes {
		if *attr.Name == "sub" {
			cognitoID = *attr.Value
			break
		}
	}

	if cognitoID == "" {
		return "", "", fmt.Errorf("failed to get Cognito user ID from response")
	}

	return tempPassword, cognitoID, nil
}

// Helper function to delete user from Cognito
func (h *Handler) deleteCognitoUser(ctx context.Context, cognitoID string) error {
	input := &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(h.UserPoolID),
		Username:   aws.String(cognitoID),
	}

	_, err := h.CognitoClient.AdminDeleteUser(ctx, input)
	return err
}

// generateTempPassword builds a 16-character password satisfying the pool's
// policy of mixed case, digits and a symbol.
func generateTempPassword() (string, error) {
	const (
		lower   = "abcdefghjkmnpqrstuvwxyz"
		upper   = "ABCDEFGHJKMNPQRSTUVWXYZ"
		digits  = "23456789"
		symbols = "!@#$%"
		all     = lower + upper + digits + symbols
	)

	pick := func(set string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, err
		}
		return set[n.Int64()], nil
	}

	password := make([]byte, 0, 16)
	for _, set := range []string{lower, upper, digits, symbols} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}
	for len(password) < 16 {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}

	return string(password), nil
}
