package config

import (
	"fmt"
	"os"
	"strconv"
)

// Encryption mode selects who holds the cipher.
const (
	// ModeServer derives/generates keys server-side and encrypts on ingest.
	ModeServer = "server"
	// ModeClient passes through bytes the client already encrypted.
	ModeClient = "client"
)

// Salt mode selects the passphrase-derivation salt.
const (
	// SaltRandom uses a fresh per-transfer salt ("Key A").
	SaltRandom = "random"
	// SaltFixed uses the legacy shared constant. Weaker; compatibility only.
	SaltFixed = "fixed"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string
	ServiceName string
	ChunkSizeMB int

	// Transfer protocol configuration
	EncryptionMode string
	SaltMode       string
	OTPLength      int

	// Storage selection
	StorageBackend  string // minio | disk | memory
	RegistryBackend string // memory | mysql
	FileStorageDir  string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// MySQL configuration (registry backend)
	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	// Redis configuration (metadata cache)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Admin login
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string

	// Jaeger configuration
	JaegerEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		// Service defaults
		ServicePort: getEnv("SERVICE_PORT", "4000"),
		ServiceName: getEnv("SERVICE_NAME", "secdrop-relay"),
		ChunkSizeMB: getEnvAsInt("CHUNK_SIZE_MB", 1),

		// Protocol defaults
		EncryptionMode: getEnv("ENCRYPTION_MODE", ModeServer),
		SaltMode:       getEnv("SALT_MODE", SaltRandom),
		OTPLength:      getEnvAsInt("OTP_LENGTH", 6),

		// Storage defaults
		StorageBackend:  getEnv("STORAGE_BACKEND", "disk"),
		RegistryBackend: getEnv("REGISTRY_BACKEND", "memory"),
		FileStorageDir:  getEnv("FILE_STORAGE", "data"),

		// MinIO defaults
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "secdrop"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		// MySQL defaults
		MySQLHost:     getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:     getEnv("MYSQL_PORT", "3306"),
		MySQLUser:     getEnv("MYSQL_USER", "root"),
		MySQLPassword: getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase: getEnv("MYSQL_DATABASE", "secdrop"),

		// Redis defaults
		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Admin defaults
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),

		// Jaeger defaults
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:4318"),
	}

	if config.EncryptionMode != ModeServer && config.EncryptionMode != ModeClient {
		return nil, fmt.Errorf("invalid ENCRYPTION_MODE %q", config.EncryptionMode)
	}
	if config.SaltMode != SaltRandom && config.SaltMode != SaltFixed {
		return nil, fmt.Errorf("invalid SALT_MODE %q", config.SaltMode)
	}

	return config, nil
}

// GetDSN returns the MySQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.MySQLUser,
		c.MySQLPassword,
		c.MySQLHost,
		c.MySQLPort,
		c.MySQLDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetChunkSizeBytes returns chunk size in bytes
func (c *Config) GetChunkSizeBytes() int64 {
	return int64(c.ChunkSizeMB) * 1024 * 1024
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
