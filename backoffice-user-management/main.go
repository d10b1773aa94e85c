package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"strings"

	"backoffice/lib/access"
	"backoffice/lib/api"
	"backoffice/lib/cache"
	"backoffice/lib/clients"
	"backoffice/lib/constants"
	"backoffice/lib/data"
	"backoffice/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/sirupsen/logrus"
)

// Handler bundles everything the user routes need. User provisioning spans
// Cognito and the database, so the Cognito client and pool id live here next
// to the repositories.
type Handler struct {
	DB            *sql.DB
	Logger        *logrus.Logger
	CognitoClient *cognitoidentityprovider.Client
	UserPoolID    string
	Users         data.UserRepository
	Roles         data.RoleRepository
	Permissions   data.PermissionRepository
	Overrides     data.OverrideRepository
	Resolver      *access.Resolver
	Cache         cache.PermissionCache
}

// Global variables for Lambda cold start optimization
var (
	logger        *logrus.Logger
	isLocal       bool
	ssmRepository data.SSMRepository
	ssmParams     map[string]string
	handler       *Handler
)

func HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "HandleRequest",
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
	}).Info("User management request received")

	method := request.HTTPMethod
	pathParams := request.PathParameters

	switch {
	case method == http.MethodPost && request.Resource == "/users":
		return handler.createUser(ctx, request)
	case method == http.MethodGet && request.Resource == "/users":
		return handler.listUsers(ctx, request)
	case method == http.MethodGet && request.Resource == "/users/{id}":
		return handler.getUserByID(ctx, request, pathParams["id"])
	case method == http.MethodDelete && request.Resource == "/users/{id}":
		return handler.deleteUser(ctx, request, pathParams["id"])
	case method == http.MethodGet && request.Resource == "/users/{id}/permissions":
		return handler.getEffectivePermissions(ctx, request, pathParams["id"])
	case method == http.MethodGet && request.Resource == "/users/{id}/permissions/overrides":
		return handler.getPermissionReview(ctx, request, pathParams["id"])
	case method == http.MethodPut && request.Resource == "/users/{id}/permissions/overrides":
		return handler.replaceOverrides(ctx, request, pathParams["id"])
	default:
		return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
	}
}

// main is the Lambda function entry point
func main() {
	lambda.Start(HandleRequest)
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
	sqlDB, err := clients.NewPostgresSQLClient(
		ssmParams[constants.DATABASE_RDS_ENDPOINT],
		ssmParams[constants.DATABASE_PORT],
		ssmParams[constants.DATABASE_NAME],
		ssmParams[constants.DATABASE_USERNAME],
		ssmParams[constants.DATABASE_PASSWORD],
		ssmParams[constants.SSL_MODE],
	)
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
	permissionCache := cache.NewRedisPermissionCache(redisClient, logger)

	userPoolID := ssmParams[constants.COGNITO_USER_POOL_ID]
	if strings.TrimSpace(userPoolID) == "" {
		logger.WithField("operation", "init").Fatal("Cognito user pool id missing from SSM parameters")
	}

	users := &data.UserDao{DB: sqlDB, Logger: logger}
	roles := &data.RoleDao{DB: sqlDB, Logger: logger}
	overrides := &data.OverrideDao{DB: sqlDB, Logger: logger}

	handler = &Handler{
		DB:            sqlDB,
		Logger:        logger,
		CognitoClient: clients.NewCognitoClient(isLocal),
		UserPoolID:    userPoolID,
		Users:         users,
		Roles:         roles,
		Permissions:   &data.PermissionDao{DB: sqlDB, Logger: logger},
		Overrides:     overrides,
		Resolver: &access.Resolver{
			Users:     users,
			Roles:     roles,
			Overrides: overrides,
			Cache:     permissionCache,
			Logger:    logger,
		},
		Cache: permissionCache,
	}

	logger.WithField("operation", "init").Info("User Management Lambda initialization completed successfully")
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
