package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds application configuration loaded from environment variables
// and an optional .env file.
type AppConfig struct {
	// Data directory for the encrypted connection store, auth store and
	// vault key file.
	DataDir string

	// Monitoring config
	MonitorInterval time.Duration // delay between health monitor ticks
	ProbeTimeout    time.Duration // per-connection probe deadline
	QueryTimeout    time.Duration // deadline for user-issued SQL

	// Event bus buffer size
	EventBufferSize int

	// Logging config
	LogLevel      string
	LogFile       string
	LogMaxSize    int // MB
	LogMaxBackups int
	LogMaxAge     int // days
	LogCompress   bool

	// Session / auth config, consumed by the external session layer.
	SessionLifetime time.Duration
	AuthMode        string // local or ldap
	LDAPURL         string
	LDAPBaseDN      string
	LDAPBindDN      string
	LDAPBindPass    string
	LDAPUserFilter  string
}

// Cfg is the global application configuration instance.
var Cfg AppConfig

// LoadConfig loads application configuration from .env and environment
// variables, applying defaults for everything unset.
func LoadConfig() error {
	if err := godotenv.Load(); err != nil {
		// Use standard log here since logger is not initialized yet
		log.Printf("[WARN] .env file not found or cannot be loaded: %v", err)
	}

	Cfg.DataDir = getEnv("DB_MONITOR_DATA_DIR", filepath.Join(".", "data"))

	Cfg.MonitorInterval = time.Duration(getEnvInt("MONITOR_INTERVAL", 5)) * time.Second
	Cfg.ProbeTimeout = time.Duration(getEnvInt("PROBE_TIMEOUT", 5)) * time.Second
	Cfg.QueryTimeout = time.Duration(getEnvInt("QUERY_TIMEOUT", 30)) * time.Second

	Cfg.EventBufferSize = getEnvInt("EVENT_BUFFER_SIZE", 256)

	Cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	Cfg.LogFile = getEnv("LOG_FILE", filepath.Join(Cfg.DataDir, "dbmonitor.log"))
	Cfg.LogMaxSize = getEnvInt("LOG_MAX_SIZE", 10)
	Cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", 3)
	Cfg.LogMaxAge = getEnvInt("LOG_MAX_AGE", 28)
	Cfg.LogCompress = getEnvBool("LOG_COMPRESS", true)

	Cfg.SessionLifetime = time.Duration(getEnvInt("SESSION_LIFETIME", 7*24*3600)) * time.Second
	Cfg.AuthMode = getEnv("AUTH_MODE", "local")
	if Cfg.AuthMode != "local" && Cfg.AuthMode != "ldap" {
		Cfg.AuthMode = "local"
	}
	Cfg.LDAPURL = getEnv("LDAP_URL", "")
	Cfg.LDAPBaseDN = getEnv("LDAP_BASE_DN", "")
	Cfg.LDAPBindDN = getEnv("LDAP_BIND_DN", "")
	Cfg.LDAPBindPass = getEnv("LDAP_BIND_PASSWORD", "")
	Cfg.LDAPUserFilter = getEnv("LDAP_USER_FILTER", "")

	log.Printf("[INFO] Config loaded - DataDir: %s, MonitorInterval: %v, ProbeTimeout: %v, AuthMode: %s",
		Cfg.DataDir, Cfg.MonitorInterval, Cfg.ProbeTimeout, Cfg.AuthMode)

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
