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

	"backoffice/lib/api"
	"backoffice/lib/auth"
	"backoffice/lib/clients"
	"backoffice/lib/constants"
	"backoffice/lib/data"
	"backoffice/lib/models"
	"backoffice/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger           *logrus.Logger
	isLocal          bool
	ssmRepository    data.SSMRepository
	ssmParams        map[string]string
	sqlDB            *sql.DB
	branchRepository data.BranchRepository
	roleRepository   data.RoleRepository
	userRepository   data.UserRepository
)

func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "Handler",
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
	}).Info("Branch access request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Failed to extract JWT claims")
		return api.ErrorResponse(http.StatusUnauthorized, "Unauthorized", logger), nil
	}

	userID, err := strconv.ParseInt(request.PathParameters["id"], 10, 64)
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", logger), nil
	}

	method := request.HTTPMethod

	switch {
	case method == http.MethodGet && request.Resource == "/users/{id}/branches":
		return handleGetAssignments(ctx, userID), nil

	case method == http.MethodPost && request.Resource == "/users/{id}/branches":
		if !claims.IsSuperAdmin {
			logger.WithField("user_id", claims.UserID).Warn("Non-super admin attempted branch assignment")
			return api.ErrorResponse(http.StatusForbidden, "Super admin access required", logger), nil
		}
		return handleAssignBranch(ctx, userID, request.Body), nil

	case method == http.MethodPut && request.Resource == "/users/{id}/branches/primary":
		if !claims.IsSuperAdmin {
			logger.WithField("user_id", claims.UserID).Warn("Non-super admin attempted primary branch switch")
			return api.ErrorResponse(http.StatusForbidden, "Super admin access required", logger), nil
		}
		return handleSetPrimaryBranch(ctx, userID, request.Body), nil

	default:
		return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
	}
}

// handleGetAssignments handles GET /users/{id}/branches
func handleGetAssignments(ctx context.Context, userID int64) events.APIGatewayProxyResponse {
	if _, err := userRepository.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", logger)
		}
		logger.WithError(err).Error("Failed to look up user for branch listing")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to retrieve branch assignments", logger)
	}

	assignments, err := branchRepository.GetUserAssignments(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("Failed to get branch assignments")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to retrieve branch assignments", logger)
	}

	response := models.BranchAssignmentListResponse{
		Assignments: assignments,
		Total:       len(assignments),
	}

	return api.SuccessResponse(http.StatusOK, response, logger)
}

// handleAssignBranch handles POST /users/{id}/branches
func handleAssignBranch(ctx context.Context, userID int64, body string) events.APIGatewayProxyResponse {
	var assignReq models.AssignBranchRequest
	if err := json.Unmarshal([]byte(body), &assignReq); err != nil {
		logger.WithError(err).Error("Failed to parse assign branch request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if assignReq.BranchID <= 0 || assignReq.RoleID <= 0 {
		return api.ErrorResponse(http.StatusBadRequest, "Branch and role are required", logger)
	}

	if _, err := roleRepository.GetRoleByID(ctx, assignReq.RoleID); err != nil {
		if errors.Is(err, data.ErrRoleNotFound) {
			return api.ErrorResponse(http.StatusBadRequest, "Unknown role", logger)
		}
		logger.WithError(err).Error("Failed to validate role for branch assignment")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to assign branch", logger)
	}

	err := branchRepository.AssignBranch(ctx, userID, assignReq.BranchID, assignReq.RoleID, assignReq.MakePrimary)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", logger)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return api.ErrorResponse(http.StatusBadRequest, "Unknown branch", logger)
		}
		logger.WithError(err).Error("Failed to assign branch")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to assign branch", logger)
	}

	return handleGetAssignments(ctx, userID)
}

// handleSetPrimaryBranch handles PUT /users/{id}/branches/primary
func handleSetPrimaryBranch(ctx context.Context, userID int64, body string) events.APIGatewayProxyResponse {
	var setReq models.SetPrimaryBranchRequest
	if err := json.Unmarshal([]byte(body), &setReq); err != nil {
		logger.WithError(err).Error("Failed to parse set primary branch request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if setReq.BranchID <= 0 {
		return api.ErrorResponse(http.StatusBadRequest, "Branch is required", logger)
	}

	err := branchRepository.SetPrimaryBranch(ctx, userID, setReq.BranchID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return api.ErrorResponse(http.StatusNotFound, "User not found", logger)
		}
		if errors.Is(err, data.ErrBranchNotAssigned) {
			return api.ErrorResponse(http.StatusNotFound, "User is not assigned to that branch", logger)
		}
		logger.WithError(err).Error("Failed to set primary branch")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to set primary branch", logger)
	}

	return handleGetAssignments(ctx, userID)
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

	logger.WithField("operation", "init").Info("Branch Access Lambda initialization completed successfully")
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

	branchRepository = &data.BranchDao{
		DB:     sqlDB,
		Logger: logger,
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
