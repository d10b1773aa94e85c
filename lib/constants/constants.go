package constants

const (
	DATABASE_RDS_ENDPOINT = "/backoffice/DATABASE_RDS_ENDPOINT"
	DATABASE_PORT         = "/backoffice/DATABASE_PORT"
	DATABASE_NAME         = "/backoffice/DATABASE_NAME"
	DATABASE_USERNAME     = "/backoffice/DATABASE_USERNAME"
	DATABASE_PASSWORD     = "/backoffice/DATABASE_PASSWORD"
	SSL_MODE              = "/backoffice/SSL_MODE"
	REDIS_ENDPOINT        = "/backoffice/REDIS_ENDPOINT"
	REDIS_PASSWORD        = "/backoffice/REDIS_PASSWORD"
	COGNITO_USER_POOL_ID  = "/backoffice/COGNITO_USER_POOL_ID"
	SSM_PARAMETER_PATH    = "/backoffice"
	DRIVER_NAME           = "postgres"

	// SuperAdminRoleCode is the reserved role code whose members bypass
	// permission checks entirely.
	SuperAdminRoleCode = "super_admin"

	// WildcardPermission is the wire sentinel meaning "all permissions pass".
	// Consumers receive it as the single-element array ["*"].
	WildcardPermission = "*"
)
