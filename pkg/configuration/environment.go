package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/wholesale/pkg/logging"
	"github.com/iota-uz/wholesale/pkg/outbox"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files found in the working directory, falling back to
// the nearest directory holding a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if wd, err := os.Getwd(); err == nil {
			if root, ok := findGoModRoot(wd); ok {
				existing = existingFiles(root, envFiles)
			}
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, envFiles []string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			out = append(out, path)
		}
	}
	return out
}

func findGoModRoot(start string) (string, bool) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"wholesale"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type WholesaleOptions struct {
	ModelGroup      string `env:"WHOLESALE_MODEL_GROUP" envDefault:"core"`
	PolicyPath      string `env:"WHOLESALE_POLICY_PATH" envDefault:"config/wholesale/policy.yaml"`
	M2MDelimiter    string `env:"WHOLESALE_M2M_DELIMITER" envDefault:","`
	MetricsTextfile string `env:"WHOLESALE_METRICS_TEXTFILE"`
}

func (w *WholesaleOptions) Validate() error {
	if strings.TrimSpace(w.ModelGroup) == "" {
		return fmt.Errorf("WHOLESALE_MODEL_GROUP must not be empty")
	}
	if w.M2MDelimiter == "" {
		return fmt.Errorf("WHOLESALE_M2M_DELIMITER must not be empty")
	}
	if w.M2MDelimiter == `"` || w.M2MDelimiter == "\n" || w.M2MDelimiter == "\r" {
		return fmt.Errorf("WHOLESALE_M2M_DELIMITER=%q collides with the CSV dialect", w.M2MDelimiter)
	}
	return nil
}

type StorageOptions struct {
	Backend     string `env:"WHOLESALE_STORAGE_BACKEND" envDefault:"local"`
	LocalDir    string `env:"WHOLESALE_STORAGE_DIR" envDefault:"uploads"`
	S3Bucket    string `env:"WHOLESALE_S3_BUCKET"`
	S3Region    string `env:"WHOLESALE_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"WHOLESALE_S3_ENDPOINT"`
	S3AccessKey string `env:"WHOLESALE_S3_ACCESS_KEY"`
	S3SecretKey string `env:"WHOLESALE_S3_SECRET_KEY"`
	S3UseSSL    bool   `env:"WHOLESALE_S3_USE_SSL" envDefault:"true"`
}

// Validate checks the storage configuration for errors
func (s *StorageOptions) Validate() error {
	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	switch backend {
	case StorageLocal:
		if strings.TrimSpace(s.LocalDir) == "" {
			return fmt.Errorf("WHOLESALE_STORAGE_DIR is required when backend is 'local'")
		}
	case StorageS3:
		if strings.TrimSpace(s.S3Bucket) == "" {
			return fmt.Errorf("WHOLESALE_S3_BUCKET is required when backend is 's3'")
		}
	default:
		return fmt.Errorf("invalid WHOLESALE_STORAGE_BACKEND=%q (expected local|s3)", s.Backend)
	}
	s.Backend = backend
	return nil
}

type OutboxOptions struct {
	Table        string        `env:"WHOLESALE_OUTBOX_TABLE" envDefault:"wholesale_outbox"`
	PollInterval time.Duration `env:"WHOLESALE_OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"WHOLESALE_OUTBOX_BATCH_SIZE" envDefault:"100"`
	MaxAttempts  int           `env:"WHOLESALE_OUTBOX_MAX_ATTEMPTS" envDefault:"25"`
	Retention    time.Duration `env:"WHOLESALE_OUTBOX_RETENTION" envDefault:"168h"`

	Identifier pgx.Identifier `env:"-"`
}

func (o *OutboxOptions) Validate() error {
	ident, err := outbox.ParseTable(o.Table)
	if err != nil {
		return fmt.Errorf("WHOLESALE_OUTBOX_TABLE: %w", err)
	}
	if o.BatchSize <= 0 || o.MaxAttempts <= 0 {
		return fmt.Errorf("WHOLESALE_OUTBOX_BATCH_SIZE and WHOLESALE_OUTBOX_MAX_ATTEMPTS must be positive")
	}
	o.Identifier = ident
	return nil
}

type Configuration struct {
	Database  DatabaseOptions
	Wholesale WholesaleOptions
	Storage   StorageOptions
	Outbox    OutboxOptions

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath  string `env:"LOG_PATH"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Wholesale.Validate(); err != nil {
		return fmt.Errorf("wholesale configuration error: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration error: %w", err)
	}
	if err := c.Outbox.Validate(); err != nil {
		return fmt.Errorf("outbox configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
