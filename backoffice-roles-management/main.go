package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"backoffice/lib/api"
	"backoffice/lib/auth"
	"backoffice/lib/cache"
	"backoffice/lib/clients"
	"backoffice/lib/constants"
	"backoffice/lib/data"
	"backoffice/lib/models"
	"backoffice/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger          *logrus.Logger
	isLocal         bool
	ssmRepository   data.SSMRepository
	ssmParams       map[string]string
	sqlDB           *sql.DB
	roleRepository  data.RoleRepository
	userRepository  data.UserRepository
	permissionCache cache.PermissionCache
)

func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "Handler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
	}).Info("Roles management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", logger), nil
	}

	if request.HTTPMethod != http.MethodGet && !claims.IsSuperAdmin {
		logger.WithField("user_id", claims.UserID).Warn("Non-super admin attempted role mutation")
		return api.ErrorResponse(http.StatusForbidden, "Super admin access required", logger), nil
	}

	pathSegments := strings.Split(strings.Trim(request.Path, "/"), "/")

	switch request.HTTPMethod {
	case http.MethodPost:
		// POST /roles - Create new role
		return handleCreateRole(ctx, request.Body), nil

	case http.MethodGet:
		if len(pathSegments) >= 2 && pathSegments[1] != "" {
			roleID, err := strconv.ParseInt(pathSegments[1], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
			}
			// Both GET /roles/{id} and GET /roles/{id}/permissions return the
			// role with its grant set.
			return handleGetRoleWithPermissions(ctx, roleID), nil
		}
		// GET /roles - Get all roles
		return handleGetRoles(ctx), nil

	case http.MethodPut:
		if len(pathSegments) < 2 || pathSegments[1] == "" {
			return api.ErrorResponse(http.StatusBadRequest, "Role ID required for update", logger), nil
		}
		roleID, err := strconv.ParseInt(pathSegments[1], 10, 64)
		if err != nil {
			return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
		}
		if len(pathSegments) >= 3 && pathSegments[2] == "permissions" {
			// PUT /roles/{id}/permissions - Replace the role's grant set
			return handleReplacePermissions(ctx, roleID, request.Body), nil
		}
		// PUT /roles/{id} - Update role
		return handleUpdateRole(ctx, roleID, request.Body), nil

	default:
		return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
	}
}

// handleCreateRole handles POST /roles
func handleCreateRole(ctx context.Context, body string) events.APIGatewayProxyResponse {
	var createReq models.CreateRoleRequest
	if err := json.Unmarshal([]byte(body), &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create role request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if createReq.RoleCode == "" || createReq.RoleName == "" {
		return api.ErrorResponse(http.StatusBadRequest, "Role code and name are required", logger)
	}
	if !models.ValidHierarchyLevel(createReq.HierarchyLevel) {
		return api.ErrorResponse(http.StatusBadRequest, "Hierarchy level must be between 1 and 100", logger)
	}

	role := &models.Role{
		RoleCode:       createReq.RoleCode,
		RoleName:       createReq.RoleName,
		HierarchyLevel: createReq.HierarchyLevel,
	}
	if createReq.ApprovalLimit != nil {
		role.ApprovalLimit = sql.NullFloat64{Float64: *createReq.ApprovalLimit, Valid: true}
	}

	created, err := roleRepository.CreateRole(ctx, role)
	if err != nil {
		if errors.Is(err, data.ErrDuplicateCode) {
			return api.ErrorResponse(http.StatusConflict, "Role code already exists", logger)
		}
		if errors.Is(err, data.ErrCheckViolation) {
			return api.ErrorResponse(http.StatusBadRequest, "Role fields violate a constraint", logger)
		}
		logger.WithError(err).Error("Failed to create role")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to create role", logger)
	}

	return api.SuccessResponse(http.StatusCreated, created, logger)
}

// handleGetRoles handles GET /roles
func handleGetRoles(ctx context.Context) events.APIGatewayProxyResponse {
	roles, err := roleRepository.GetRoles(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to get roles")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to retrieve roles", logger)
	}

	response := models.RoleListResponse{
		Roles: roles,
		Total: len(roles),
	}

	return api.SuccessResponse(http.StatusOK, response, logger)
}

// handleGetRoleWithPermissions handles GET /roles/{id}
func handleGetRoleWithPermissions(ctx context.Context, roleID int64) events.APIGatewayProxyResponse {
	roleWithPermissions, err := roleRepository.GetRoleWithPermissions(ctx, roleID)
	if err != nil {
		if errors.Is(err, data.ErrRoleNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "Role not found", logger)
		}
		logger.WithError(err).Error("Failed to get role with permissions")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to retrieve role", logger)
	}

	return api.SuccessResponse(http.StatusOK, roleWithPermissions, logger)
}

// handleUpdateRole handles PUT /roles/{id}
func handleUpdateRole(ctx context.Context, roleID int64, body string) events.APIGatewayProxyResponse {
	var updateReq models.UpdateRoleRequest
	if err := json.Unmarshal([]byte(body), &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update role request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if updateReq.HierarchyLevel != nil && !models.ValidHierarchyLevel(*updateReq.HierarchyLevel) {
		return api.ErrorResponse(http.StatusBadRequest, "Hierarchy level must be between 1 and 100", logger)
	}

	updated, err := roleRepository.UpdateRole(ctx, roleID, &updateReq)
	if err != nil {
		if errors.Is(err, data.ErrRoleNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "Role not found", logger)
		}
		if errors.Is(err, data.ErrCheckViolation) {
			return api.ErrorResponse(http.StatusBadRequest, "Role fields violate a constraint", logger)
		}
		logger.WithError(err).Error("Failed to update role")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to update role", logger)
	}

	// Deactivating a role or changing its level alters what its holders can
	// do, so their cached permission sets are stale.
	invalidateRoleHolders(ctx, roleID)

	return api.SuccessResponse(http.StatusOK, updated, logger)
}

// handleReplacePermissions handles PUT /roles/{id}/permissions
func handleReplacePermissions(ctx context.Context, roleID int64, body string) events.APIGatewayProxyResponse {
	var replaceReq models.ReplaceRolePermissionsRequest
	if err := json.Unmarshal([]byte(body), &replaceReq); err != nil {
		logger.WithError(err).Error("Failed to parse replace permissions request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	for _, permissionID := range replaceReq.PermissionIDs {
		if permissionID <= 0 {
			return api.ErrorResponse(http.StatusBadRequest, "Permission ids must be positive", logger)
		}
	}

	count, err := roleRepository.ReplaceRolePermissions(ctx, roleID, replaceReq.PermissionIDs)
	if err != nil {
		if errors.Is(err, data.ErrRoleNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "Role not found", logger)
		}
		logger.WithError(err).Error("Failed to replace role permissions")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to replace role permissions", logger)
	}

	invalidateRoleHolders(ctx, roleID)

	return api.SuccessResponse(http.StatusOK, map[string]interface{}{
		"role_id":     roleID,
		"grant_count": count,
	}, logger)
}

// invalidateRoleHolders drops the cached permission sets of every user
// holding the role. Best effort: the TTL bounds staleness if this fails.
func invalidateRoleHolders(ctx context.Context, roleID int64) {
	userIDs, err := userRepository.ListUserIDsByRole(ctx, roleID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Warn("Failed to list role holders for cache invalidation")
		return
	}
	permissionCache.Invalidate(ctx, userIDs...)
}

// main is the Lambda function entry point
func main() {
	lambda.Start(Handler)
}

func init() {
	var err error

	isLocal = parseIsLocal()

	// Logger Setup
	logger = setupLogger(isLocal)

	// Initialize AWS SSM Parameter Store client
	ssmClient := clients.NewSSMClient(isLocal)
	ssmRepository = &data.SSMDao{
		SSM:    ssmClient,
		Logger: logger,
	}

	// Retrieve all required configuration parameters from SSM
	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error while getting SSM params from parameter store")
	}

	// Initialize PostgreSQL database connection
	err = setupPostgresSQLClient(ssmParams)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	// Initialize the shared permission cache
	redisClient, err := clients.NewRedisClient(
		ssmParams[constants.REDIS_ENDPOINT],
		ssmParams[constants.REDIS_PASSWORD],
	)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error setting up Redis client")
	}
	permissionCache = cache.NewRedisPermissionCache(redisClient, logger)

	logger.WithField("operation", "init").Info("Roles Management Lambda initialization completed successfully")
}

func parseIsLocal() bool {
	isLocal, _ := strconv.ParseBool(os.Getenv("IS_LOCAL"))
	return isLocal
}

func setupLogger(isLocal bool) *logrus.Logger {
	logger := logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: isLocal})
	return logger
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	sqlDB, err = clients.NewPostgresSQLClient(
		ssmParams[constants.DATABASE_RDS_ENDPOINT],
		ssmParams[constants.DATABASE_PORT],
		ssmParams[constants.DATABASE_NAME],
		ssmParams[constants.DATABASE_USERNAME],
		ssmParams[constants.DATABASE_PASSWORD],
		ssmParams[constants.SSL_MODE],
	)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	roleRepository = &data.RoleDao{
		DB:     sqlDB,
		Logger: logger,
	}

	userRepository = &data.UserDao{
		DB:     sqlDB,
		Logger: logger,
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	}
	return nil
}
