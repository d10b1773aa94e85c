// Package main implements the Cognito Pre Token Generation V2.0 trigger that
// stamps back-office tokens with the user's role and branch context. The API
// authorizer and the frontend both read these claims, so a login is the only
// time the database is consulted for them.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"backoffice/lib/access"
	"backoffice/lib/clients"
	"backoffice/lib/constants"
	"backoffice/lib/data"
	"backoffice/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger           *logrus.Logger
	isLocal          bool
	ssmRepository    data.SSMRepository
	ssmParams        map[string]string
	sqlDB            *sql.DB
	userRepository   data.UserRepository
	branchRepository data.BranchRepository
	resolver         *access.Resolver
)

func Handler(ctx context.Context, event events.CognitoEventUserPoolsPreTokenGenV2_0) (events.CognitoEventUserPoolsPreTokenGenV2_0, error) {
	logger.WithFields(logrus.Fields{
		"trigger_source": event.TriggerSource,
		"user_pool_id":   event.UserPoolID,
		"operation":      "Handler",
	}).Debug("Processing Cognito Pre Token Generation V2.0 event")

	if !isValidTriggerSourceV2(event.TriggerSource) {
		logger.WithField("trigger_source", event.TriggerSource).
			Warn("Invalid trigger source for V2.0, returning event unchanged")
		return event, nil
	}

	// event.UserName carries the Cognito sub for token generation triggers.
	cognitoID := event.UserName
	if cognitoID == "" {
		logger.WithField("operation", "Handler").Error("Username (cognito_id) is empty in event")
		return event, errors.New("username cannot be empty")
	}

	// Database problems must not block authentication; the user still gets a
	// token, just without back-office claims, and the authorizer denies from
	// there.
	user, err := userRepository.GetUserByCognitoID(ctx, cognitoID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"cognito_id": cognitoID,
			"error":      err.Error(),
		}).Error("Failed to fetch user, proceeding without custom claims")
		return event, nil
	}

	claimsToAdd, err := buildCustomClaims(ctx, user.UserID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"user_id": user.UserID,
			"error":   err.Error(),
		}).Error("Failed to build custom claims, proceeding without custom claims")
		return event, nil
	}

	groups := []string{}
	if roleCode, ok := claimsToAdd["role_code"].(string); ok && roleCode != "" {
		groups = append(groups, roleCode)
	}

	event.Response.ClaimsAndScopeOverrideDetails = events.ClaimsAndScopeOverrideDetailsV2_0{
		IDTokenGeneration: events.IDTokenGenerationV2_0{
			ClaimsToAddOrOverride: claimsToAdd,
			ClaimsToSuppress:      []string{},
		},
		AccessTokenGeneration: events.AccessTokenGenerationV2_0{
			ClaimsToAddOrOverride: claimsToAdd,
			ClaimsToSuppress:      []string{},
			ScopesToAdd:           []string{},
			ScopesToSuppress:      []string{},
		},
		GroupOverrideDetails: events.GroupConfigurationV2_0{
			GroupsToOverride:   groups,
			IAMRolesToOverride: []string{},
			PreferredRole:      nil,
		},
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithFields(logrus.Fields{
			"user_id":    user.UserID,
			"cognito_id": cognitoID,
			"operation":  "Handler",
		}).Debug("Successfully added custom claims to token")
	}

	return event, nil
}

// isValidTriggerSourceV2 accepts only the V2.0 token generation triggers.
func isValidTriggerSourceV2(triggerSource string) bool {
	validSources := []string{
		"TokenGeneration_HostedAuth",
		"TokenGeneration_Authentication",
		"TokenGeneration_NewPasswordChallenge",
		"TokenGeneration_AuthenticateDevice",
		"TokenGeneration_RefreshTokens",
	}

	for _, valid := range validSources {
		if triggerSource == valid {
			return true
		}
	}
	return false
}

// buildCustomClaims assembles the role, branch and permission claims for a
// user. Numeric values become strings for JWT compatibility; the effective
// permission set is JSON-encoded so the frontend can decode it in one step.
func buildCustomClaims(ctx context.Context, userID int64) (map[string]interface{}, error) {
	userAccess, err := userRepository.GetUserAccess(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user access: %w", err)
	}

	codes, err := resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective permissions: %w", err)
	}

	permissionsJSON, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permission set: %w", err)
	}

	var primaryBranchID int64
	assignments, err := branchRepository.GetUserAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get branch assignments: %w", err)
	}
	for _, assignment := range assignments {
		if assignment.IsPrimary {
			primaryBranchID = assignment.BranchID
			break
		}
	}

	roleCode := ""
	hierarchyLevel := 0
	if userAccess.RoleActive {
		roleCode = userAccess.RoleCode
		hierarchyLevel = userAccess.HierarchyLevel
	}

	return map[string]interface{}{
		"user_id":           strconv.FormatInt(userID, 10),
		"role_code":         roleCode,
		"hierarchy_level":   strconv.Itoa(hierarchyLevel),
		"primary_branch_id": strconv.FormatInt(primaryBranchID, 10),
		"isSuperAdmin":      roleCode == constants.SuperAdminRoleCode,
		"permissions":       string(permissionsJSON),
	}, nil
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

	logger.WithField("operation", "init").Info("Token Customizer Lambda initialization completed successfully")
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

	users := &data.UserDao{DB: sqlDB, Logger: logger}
	userRepository = users
	branchRepository = &data.BranchDao{
		DB:     sqlDB,
		Logger: logger,
	}

	// Token generation resolves straight from the database; the shared cache
	// is not wired here so a fresh login always sees the latest grants.
	resolver = &access.Resolver{
		Users:     users,
		Roles:     &data.RoleDao{DB: sqlDB, Logger: logger},
		Overrides: &data.OverrideDao{DB: sqlDB, Logger: logger},
		Logger:    logger,
	}

	return nil
}
