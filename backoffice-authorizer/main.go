package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"

	"backoffice/lib/access"
	"backoffice/lib/auth"
	"backoffice/lib/cache"
	"backoffice/lib/clients"
	"backoffice/lib/constants"
	"backoffice/lib/data"
	"backoffice/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger        *logrus.Logger
	isLocal       bool
	ssmRepository data.SSMRepository
	ssmParams     map[string]string
	sqlDB         *sql.DB
	verifier      *auth.Verifier
	guard         *access.Guard
)

// errUnauthorized makes API Gateway answer 401 instead of 403. It is used
// only when the token is missing or fails verification; permission failures
// come back as an explicit Deny policy.
var errUnauthorized = errors.New("Unauthorized")

func Handler(ctx context.Context, request events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	correlationID := uuid.New().String()
	log := logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"method":         request.HTTPMethod,
		"resource":       request.Resource,
	})

	log.Info("Authorization request received")

	// This is the trust boundary: the signature must verify against the
	// pool's JWKS before any claim is believed.
	claims, err := verifier.Verify(auth.BearerToken(request.Headers))
	if err != nil {
		log.WithError(err).Warn("Token failed verification")
		return events.APIGatewayCustomAuthorizerResponse{}, errUnauthorized
	}

	userID, err := claims.UserID.Int64()
	if err != nil || userID <= 0 {
		log.Warn("Token carries no usable user_id claim")
		return events.APIGatewayCustomAuthorizerResponse{}, errUnauthorized
	}

	hierarchyLevel, _ := claims.HierarchyLevel.Int64()
	subject := access.Subject{
		UserID:         userID,
		RoleCode:       claims.RoleCode,
		HierarchyLevel: int(hierarchyLevel),
	}

	// Route lookup and permission resolution both fail closed.
	err = guard.AuthorizeRoute(ctx, subject, request.HTTPMethod, request.Resource)
	allowed := err == nil

	log.WithFields(logrus.Fields{
		"user_id": userID,
		"allowed": allowed,
	}).Info("Authorization decision made")

	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID: claims.Sub,
		PolicyDocument: events.APIGatewayCustomAuthorizerPolicy{
			Version: "2012-10-17",
			Statement: []events.IAMPolicyStatement{
				{
					Action:   []string{"execute-api:Invoke"},
					Effect:   policyEffect(allowed),
					Resource: []string{request.MethodArn},
				},
			},
		},
		Context: map[string]interface{}{
			"user_id":        strconv.FormatInt(userID, 10),
			"sub":            claims.Sub,
			"email":          claims.Email,
			"role_code":      claims.RoleCode,
			"isSuperAdmin":   claims.IsSuperAdmin,
			"correlation_id": correlationID,
		},
	}, nil
}

func policyEffect(allowed bool) string {
	if allowed {
		return "Allow"
	}
	return "Deny"
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
	sqlDB, err = clients.NewPostgresSQLClient(
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

	verifier = auth.NewCognitoVerifier(clients.Region(), ssmParams[constants.COGNITO_USER_POOL_ID])

	guard = &access.Guard{
		Resolver: &access.Resolver{
			Users:     &data.UserDao{DB: sqlDB, Logger: logger},
			Roles:     &data.RoleDao{DB: sqlDB, Logger: logger},
			Overrides: &data.OverrideDao{DB: sqlDB, Logger: logger},
			Cache:     cache.NewRedisPermissionCache(redisClient, logger),
			Logger:    logger,
		},
		Routes: access.DefaultRouteTable(),
		Logger: logger,
	}

	logger.WithField("operation", "init").Info("Authorizer Lambda initialization completed successfully")
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
