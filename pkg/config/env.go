package config

// EnvPrefix is passed to envconfig; individual fields carry explicit
// STARFALL_-prefixed names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvDBDSN  = "STARFALL_DB_DSN"
	EnvDBHost = "STARFALL_DB_HOST"
	EnvDBUser = "STARFALL_DB_USER"
	EnvDBName = "STARFALL_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
