package constants

const (
	AppName            = "habitus"
	Version            = "v0.6.0"
	DefaultConfigDir   = "~/.config/habitus"
	DefaultDBName      = "habitus.db"
	DefaultConfigFile  = "config.toml"
	DefaultSessionFile = "session.json"
	LockfileName       = "habitus.lock"

	// Keyring entries
	KeyringConnectionUser = "database-connection"
	KeyringSessionUser    = "session-user-id"

	// DatabaseFromKeyring selects Postgres with the keyring connection string.
	DatabaseFromKeyring = "keyring"

	// Session backends
	SessionBackendFile    = "file"
	SessionBackendKeyring = "keyring"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "habitus-"
	BackupFileSuffix = ".db"
)
