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
	logger               *logrus.Logger
	isLocal              bool
	ssmRepository        data.SSMRepository
	ssmParams            map[string]string
	sqlDB                *sql.DB
	permissionRepository data.PermissionRepository
	permissionCache      cache.PermissionCache
)

func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "Handler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
	}).Info("Permissions management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", logger), nil
	}

	// Catalog mutations are reserved for super admins; reads pass through
	// because the authorizer already required permissions.view.
	if request.HTTPMethod != http.MethodGet && !claims.IsSuperAdmin {
		logger.WithField("user_id", claims.UserID).Warn("Non-super admin attempted catalog mutation")
		return api.ErrorResponse(http.StatusForbidden, "Super admin access required", logger), nil
	}

	pathSegments := strings.Split(strings.Trim(request.Path, "/"), "/")

	switch request.HTTPMethod {
	case http.MethodGet:
		return handleGetPermissions(ctx, request.QueryStringParameters["module"]), nil

	case http.MethodPost:
		return handleCreatePermission(ctx, request.Body), nil

	case http.MethodPut:
		permissionID, err := parseIDSegment(pathSegments)
		if err != nil {
			return api.ErrorResponse(http.StatusBadRequest, "Invalid permission ID", logger), nil
		}
		return handleUpdatePermission(ctx, permissionID, request.Body), nil

	case http.MethodDelete:
		permissionID, err := parseIDSegment(pathSegments)
		if err != nil {
			return api.ErrorResponse(http.StatusBadRequest, "Invalid permission ID", logger), nil
		}
		return handleDeletePermission(ctx, permissionID), nil

	default:
		return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
	}
}

// parseIDSegment reads the trailing numeric id from /permissions/{id}.
func parseIDSegment(pathSegments []string) (int64, error) {
	if len(pathSegments) < 2 || pathSegments[1] == "" {
		return 0, errors.New("id segment missing")
	}
	return strconv.ParseInt(pathSegments[1], 10, 64)
}

// handleGetPermissions handles GET /permissions with an optional module filter
func handleGetPermissions(ctx context.Context, module string) events.APIGatewayProxyResponse {
	permissions, err := permissionRepository.GetPermissions(ctx, module)
	if err != nil {
		logger.WithError(err).Error("Failed to get permissions")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to retrieve permissions", logger)
	}

	response := models.PermissionListResponse{
		Permissions: permissions,
		Total:       len(permissions),
	}

	return api.SuccessResponse(http.StatusOK, response, logger)
}

// handleCreatePermission handles POST /permissions
func handleCreatePermission(ctx context.Context, body string) events.APIGatewayProxyResponse {
	var createReq models.CreatePermissionRequest
	if err := json.Unmarshal([]byte(body), &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create permission request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if createReq.PermissionCode == "" || createReq.PermissionName == "" ||
		createReq.Module == "" || createReq.Action == "" {
		return api.ErrorResponse(http.StatusBadRequest,
			"Permission code, name, module and action are required", logger)
	}

	if createReq.PermissionCode != createReq.Module+"."+createReq.Action {
		return api.ErrorResponse(http.StatusBadRequest,
			"Permission code must be module.action", logger)
	}

	permission := &models.Permission{
		PermissionCode: createReq.PermissionCode,
		PermissionName: createReq.PermissionName,
		Module:         createReq.Module,
		Action:         createReq.Action,
	}
	if createReq.TableRef != "" {
		permission.TableRef = sql.NullString{String: createReq.TableRef, Valid: true}
	}
	if createReq.Description != "" {
		permission.Description = sql.NullString{String: createReq.Description, Valid: true}
	}

	created, err := permissionRepository.CreatePermission(ctx, permission)
	if err != nil {
		if errors.Is(err, data.ErrDuplicateCode) {
			return api.ErrorResponse(http.StatusConflict, "Permission code already exists", logger)
		}
		logger.WithError(err).Error("Failed to create permission")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to create permission", logger)
	}

	return api.SuccessResponse(http.StatusCreated, created, logger)
}

// handleUpdatePermission handles PUT /permissions/{id}
func handleUpdatePermission(ctx context.Context, permissionID int64, body string) events.APIGatewayProxyResponse {
	var updateReq models.UpdatePermissionRequest
	if err := json.Unmarshal([]byte(body), &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update permission request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	updated, err := permissionRepository.UpdatePermission(ctx, permissionID, &updateReq)
	if err != nil {
		if errors.Is(err, data.ErrPermissionNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "Permission not found", logger)
		}
		logger.WithError(err).Error("Failed to update permission")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to update permission", logger)
	}

	return api.SuccessResponse(http.StatusOK, updated, logger)
}

// handleDeletePermission handles DELETE /permissions/{id}
func handleDeletePermission(ctx context.Context, permissionID int64) events.APIGatewayProxyResponse {
	err := permissionRepository.DeletePermission(ctx, permissionID)
	if err != nil {
		if errors.Is(err, data.ErrPermissionNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "Permission not found", logger)
		}
		if errors.Is(err, data.ErrPermissionInUse) {
			return api.ErrorResponse(http.StatusConflict,
				"Permission is still referenced by role grants or user overrides", logger)
		}
		logger.WithError(err).Error("Failed to delete permission")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to delete permission", logger)
	}

	// A catalog row only deletes when nothing references it, but cached sets
	// may still carry its code until they expire; drop them now.
	permissionCache.InvalidateAll(ctx)

	return api.SuccessResponse(http.StatusOK, map[string]string{
		"message": "Permission deleted successfully",
	}, logger)
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

	logger.WithField("operation", "init").Info("Permissions Management Lambda initialization completed successfully")
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

	permissionRepository = &data.PermissionDao{
		DB:     sqlDB,
		Logger: logger,
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	}
	return nil
}
