package config

const (
	EnvPrefix = "HAULBID"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "HAULBID_APP_ENV"
	EnvPort   = "HAULBID_APP_PORT"

	EnvDBDSN  = "HAULBID_DB_DSN"
	EnvDBHost = "HAULBID_DB_HOST"
	EnvDBUser = "HAULBID_DB_USER"
	EnvDBName = "HAULBID_DB_NAME"

	EnvRedisURL = "HAULBID_REDIS_URL"

	EnvJWTSecret = "HAULBID_JWT_SECRET"
	EnvJWTIssuer = "HAULBID_JWT_ISSUER"

	EnvChangeFeedDriver = "HAULBID_CHANGEFEED_DRIVER"
	EnvNATSURL          = "HAULBID_NATS_URL"

	EnvIdentityURL            = "HAULBID_IDENTITY_URL"
	EnvIdentityServiceRoleKey = "HAULBID_IDENTITY_SERVICE_ROLE_KEY"

	EnvCascadeAtomic = "HAULBID_CASCADE_ATOMIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
