// ============================================================================
// backend/internal/shared/config.go
// Configuration loading, validation and startup print
// ============================================================================

package shared

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// Config holds the configuration for the LMS server
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"lms-server"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	HealthPort  string `env:"GRPC_HEALTH_PORT" envDefault:"50051"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Storage   StorageConfig
	MongoDB   MongoConfig
	Security  SecurityConfig
	CORS      CORSConfig
	Lifecycle LifecycleConfig
	Mail      MailConfig
	Telemetry TelemetryConfig
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Driver   string `env:"STORAGE_DRIVER" envDefault:"mongo"` // mongo, bolt
	BoltPath string `env:"BOLT_PATH" envDefault:"data/lms.db"`
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string        `env:"MONGO_URI"`
	Database       string        `env:"MONGO_DB_NAME" envDefault:"lms"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"20s"`
	MaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE" envDefault:"50"`
	MinPoolSize    uint64        `env:"MONGO_MIN_POOL_SIZE" envDefault:"10"`
	MaxIdleTime    time.Duration `env:"MONGO_MAX_IDLE_TIME" envDefault:"30s"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	JWTSecret          string `env:"JWT_SECRET"`
	JWTExpirationHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`
	BCryptCost         int    `env:"BCRYPT_COST" envDefault:"10"` // BCrypt hashing cost (10-12 recommended)
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envDefault:"GET,POST,PUT,PATCH,DELETE,OPTIONS" envSeparator:","`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envDefault:"Content-Type,Authorization" envSeparator:","`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"` // in seconds
}

// LifecycleConfig tunes submission policy and the side-effect pipeline
type LifecycleConfig struct {
	SubmissionsLatePolicy string        `env:"LATE_POLICY_SUBMISSIONS" envDefault:"strict"`
	AssignmentsLatePolicy string        `env:"LATE_POLICY_ASSIGNMENTS" envDefault:"assignment"`
	EventBufferSize       int           `env:"EVENT_BUFFER_SIZE" envDefault:"256"`
	EventWorkers          int           `env:"EVENT_WORKERS" envDefault:"2"`
	PublishTimeout        time.Duration `env:"EVENT_PUBLISH_TIMEOUT" envDefault:"50ms"`
}

// MailConfig holds outbound e-mail configuration
type MailConfig struct {
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	FromAddress    string `env:"MAIL_FROM_ADDRESS" envDefault:"no-reply@lms.local"`
	FromName       string `env:"MAIL_FROM_NAME" envDefault:"LMS"`
}

// TelemetryConfig holds tracing and error reporting configuration
type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	RollbarToken string `env:"ROLLBAR_TOKEN"`
}

// Late submission policies
const (
	LatePolicyStrict     = "strict"
	LatePolicyAssignment = "assignment"
	LatePolicyPenalty    = "penalty"
)

// IsValidLatePolicy checks a late policy name
func IsValidLatePolicy(policy string) bool {
	switch policy {
	case LatePolicyStrict, LatePolicyAssignment, LatePolicyPenalty:
		return true
	}
	return false
}

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv loads environment variables from .env file
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Warning: %s file not found, using system environment variables", envFile)
		return err
	}

	log.Printf("Successfully loaded environment from %s", envFile)
	return nil
}

// LoadConfig parses the process environment into a Config
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

// ============================================================================
// Configuration Validation
// ============================================================================

// ValidateConfig validates server configuration
func ValidateConfig(config *Config) error {
	if config.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if config.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	switch config.Storage.Driver {
	case "mongo":
		if config.MongoDB.URI == "" {
			return fmt.Errorf("MongoDB URI is required")
		}
		if config.MongoDB.Database == "" {
			return fmt.Errorf("MongoDB database name is required")
		}
	case "bolt":
		if config.Storage.BoltPath == "" {
			return fmt.Errorf("bolt path is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	if config.Security.JWTSecret == "" && !config.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET environment variable is required outside development")
	}

	if !IsValidLatePolicy(config.Lifecycle.SubmissionsLatePolicy) {
		return fmt.Errorf("invalid LATE_POLICY_SUBMISSIONS %q", config.Lifecycle.SubmissionsLatePolicy)
	}
	if !IsValidLatePolicy(config.Lifecycle.AssignmentsLatePolicy) {
		return fmt.Errorf("invalid LATE_POLICY_ASSIGNMENTS %q", config.Lifecycle.AssignmentsLatePolicy)
	}

	return nil
}

// ============================================================================
// Configuration Display (for debugging)
// ============================================================================

// PrintConfig prints configuration (sanitized) for debugging
func PrintConfig(config *Config) {
	log.Println("=== Service Configuration ===")
	log.Printf("Service Name: %s", config.ServiceName)
	log.Printf("HTTP Port: %s", config.HTTPPort)
	log.Printf("Health Port: %s", config.HealthPort)
	log.Printf("Environment: %s", config.Environment)
	log.Printf("Log Level: %s", config.LogLevel)
	log.Println("=== Storage Configuration ===")
	log.Printf("Driver: %s", config.Storage.Driver)
	if config.Storage.Driver == "bolt" {
		log.Printf("Bolt Path: %s", config.Storage.BoltPath)
	} else {
		log.Printf("Database: %s", config.MongoDB.Database)
		log.Printf("Max Pool Size: %d", config.MongoDB.MaxPoolSize)
		log.Printf("Min Pool Size: %d", config.MongoDB.MinPoolSize)
	}
	log.Println("=== Security Configuration ===")
	log.Printf("JWT Expiration: %d hours", config.Security.JWTExpirationHours)
	log.Printf("BCrypt Cost: %d", config.Security.BCryptCost)
	log.Println("=== Lifecycle Configuration ===")
	log.Printf("Late Policy (/submissions): %s", config.Lifecycle.SubmissionsLatePolicy)
	log.Printf("Late Policy (/assignments): %s", config.Lifecycle.AssignmentsLatePolicy)
	log.Printf("Event Buffer: %d, Workers: %d", config.Lifecycle.EventBufferSize, config.Lifecycle.EventWorkers)
	log.Println("=== CORS Configuration ===")
	log.Printf("Allowed Origins: %v", config.CORS.AllowedOrigins)
	log.Printf("Allow Credentials: %t", config.CORS.AllowCredentials)
	log.Println("=== Integrations ===")
	log.Printf("SendGrid: %t", config.Mail.SendGridAPIKey != "")
	log.Printf("Rollbar: %t", config.Telemetry.RollbarToken != "")
	log.Printf("OTLP Endpoint: %s", config.Telemetry.OTLPEndpoint)
	log.Println("=============================")
}

// ============================================================================
// Environment-Specific Configuration
// ============================================================================

// IsDevelopment checks if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
