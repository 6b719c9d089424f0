package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"certificate-portal/certificate-portal-backend/internal/document"
	"certificate-portal/certificate-portal-backend/internal/ledger"
	"certificate-portal/certificate-portal-backend/internal/notifications"
	"certificate-portal/certificate-portal-backend/pkg/convert"
	"certificate-portal/certificate-portal-backend/pkg/qrcode"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Template  TemplateConfig  `json:"template" yaml:"template"`
	QRCode    qrcode.Options  `json:"qrcode" yaml:"qrcode"`
	Document  DocumentConfig  `json:"document" yaml:"document"`
	Converter ConverterConfig `json:"converter" yaml:"converter"`
	Mail      MailConfig      `json:"mail" yaml:"mail"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Admin     AdminConfig     `json:"admin" yaml:"admin"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Snapshot  SnapshotConfig  `json:"snapshot" yaml:"snapshot"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
	Timeouts  TimeoutsConfig  `json:"timeouts" yaml:"timeouts"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string   `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port            int      `json:"port" yaml:"port" env:"SERVER_PORT,PORT"`
	Mode            string   `json:"mode" yaml:"mode" env:"GIN_MODE"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    Duration `json:"write_timeout" yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     Duration `json:"idle_timeout" yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	// ScratchDir is where per-request working directories are created
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir" env:"SCRATCH_DIR"`
}

// TemplateConfig locates the certificate template. Base64 wins over Path.
type TemplateConfig struct {
	Path   string `json:"path" yaml:"path" env:"CERT_TEMPLATE_PATH"`
	Base64 string `json:"-" yaml:"-" env:"CERT_TEMPLATE_BASE64"`
}

// DocumentConfig configures rendering
type DocumentConfig struct {
	ImageSizeCM float64 `json:"image_size_cm" yaml:"image_size_cm" env:"CERT_IMAGE_SIZE_CM"`
}

// ConverterConfig configures PDF conversion
type ConverterConfig struct {
	Strategy string `json:"strategy" yaml:"strategy" env:"CONVERTER_STRATEGY"`
	// Cloud
	BaseURL      string `json:"base_url" yaml:"base_url" env:"CONVERTER_BASE_URL"`
	TokenURL     string `json:"token_url" yaml:"token_url" env:"CONVERTER_TOKEN_URL"`
	ClientID     string `json:"client_id" yaml:"client_id" env:"CONVERTER_CLIENT_ID"`
	ClientSecret string `json:"-" yaml:"-" env:"CONVERTER_CLIENT_SECRET"`
	// Local
	OfficeBinary string `json:"office_binary" yaml:"office_binary" env:"CONVERTER_OFFICE_BINARY"`
}

// MailConfig configures certificate delivery
type MailConfig struct {
	Transport    string `json:"transport" yaml:"transport" env:"MAIL_TRANSPORT"`
	FromAddress  string `json:"from_address" yaml:"from_address" env:"MAIL_FROM"`
	FromName     string `json:"from_name" yaml:"from_name" env:"MAIL_FROM_NAME"`
	Organization string `json:"organization" yaml:"organization" env:"MAIL_ORGANIZATION"`

	SMTPHost       string   `json:"smtp_host" yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort       int      `json:"smtp_port" yaml:"smtp_port" env:"SMTP_PORT"`
	SMTPUsername   string   `json:"smtp_username" yaml:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword   string   `json:"-" yaml:"-" env:"SMTP_PASSWORD"`
	SMTPRequireTLS bool     `json:"smtp_require_tls" yaml:"smtp_require_tls" env:"SMTP_REQUIRE_TLS"`
	SMTPTimeout    Duration `json:"smtp_timeout" yaml:"smtp_timeout" env:"SMTP_TIMEOUT"`

	SESRegion    string `json:"ses_region" yaml:"ses_region" env:"SES_REGION"`
	ResendAPIKey string `json:"-" yaml:"-" env:"RESEND_API_KEY"`
}

// LedgerConfig selects the ledger backend
type LedgerConfig struct {
	Backend string `json:"backend" yaml:"backend" env:"LEDGER_BACKEND"`
	Path    string `json:"path" yaml:"path" env:"LEDGER_PATH"`

	SpreadsheetID   string `json:"spreadsheet_id" yaml:"spreadsheet_id" env:"SHEETS_SPREADSHEET_ID"`
	SheetName       string `json:"sheet_name" yaml:"sheet_name" env:"SHEETS_SHEET_NAME"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	CredentialsJSON string `json:"-" yaml:"-" env:"SHEETS_CREDENTIALS_JSON"`

	DynamoDBTable    string `json:"dynamodb_table" yaml:"dynamodb_table" env:"DYNAMODB_TABLE"`
	DynamoDBRegion   string `json:"dynamodb_region" yaml:"dynamodb_region" env:"DYNAMODB_REGION"`
	DynamoDBEndpoint string `json:"dynamodb_endpoint" yaml:"dynamodb_endpoint" env:"DYNAMODB_ENDPOINT"`

	PostgresDSN   string `json:"-" yaml:"-" env:"DATABASE_URL"`
	PostgresTable string `json:"postgres_table" yaml:"postgres_table" env:"LEDGER_TABLE"`
}

// AdminConfig configures the ledger panel. KeyHash, a bcrypt hash, is used
// instead of Key when set.
type AdminConfig struct {
	Key           string   `json:"-" yaml:"-" env:"ADMIN_KEY"`
	KeyHash       string   `json:"-" yaml:"-" env:"ADMIN_KEY_HASH"`
	SessionSecret string   `json:"-" yaml:"-" env:"ADMIN_SESSION_SECRET"`
	SessionTTL    Duration `json:"session_ttl" yaml:"session_ttl" env:"ADMIN_SESSION_TTL"`
	SecureCookie  bool     `json:"secure_cookie" yaml:"secure_cookie" env:"ADMIN_SECURE_COOKIE"`
}

// StorageConfig configures the optional S3 archive of delivered artifacts
type StorageConfig struct {
	Bucket    string `json:"bucket" yaml:"bucket" env:"S3_BUCKET"`
	Region    string `json:"region" yaml:"region" env:"S3_REGION"`
	Endpoint  string `json:"endpoint" yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKey string `json:"-" yaml:"-" env:"S3_ACCESS_KEY"`
	SecretKey string `json:"-" yaml:"-" env:"S3_SECRET_KEY"`
	PathStyle bool   `json:"path_style" yaml:"path_style" env:"S3_PATH_STYLE"`
	Prefix    string `json:"prefix" yaml:"prefix" env:"S3_PREFIX"`
}

// SnapshotConfig schedules ledger exports to the storage bucket. An empty
// Cron disables them.
type SnapshotConfig struct {
	Cron     string `json:"cron" yaml:"cron" env:"LEDGER_SNAPSHOT_CRON"`
	Format   string `json:"format" yaml:"format" env:"LEDGER_SNAPSHOT_FORMAT"`
	Timezone string `json:"timezone" yaml:"timezone" env:"LEDGER_SNAPSHOT_TZ"`
	Prefix   string `json:"prefix" yaml:"prefix" env:"LEDGER_SNAPSHOT_PREFIX"`
}

// AlertsConfig routes failed-workflow alerts to an SNS topic. An empty topic
// disables them.
type AlertsConfig struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn" env:"ALERTS_TOPIC_ARN"`
	Region   string `json:"region" yaml:"region" env:"ALERTS_REGION"`
}

// TimeoutsConfig bounds the remote workflow steps
type TimeoutsConfig struct {
	Encode  Duration `json:"encode" yaml:"encode" env:"TIMEOUT_ENCODE"`
	Convert Duration `json:"convert" yaml:"convert" env:"TIMEOUT_CONVERT"`
	Notify  Duration `json:"notify" yaml:"notify" env:"TIMEOUT_NOTIFY"`
	Ledger  Duration `json:"ledger" yaml:"ledger" env:"TIMEOUT_LEDGER"`
	Archive Duration `json:"archive" yaml:"archive" env:"TIMEOUT_ARCHIVE"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" env:"LOG_LEVEL"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(3 * time.Minute),
			IdleTimeout:     Duration(time.Minute),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Template: TemplateConfig{Path: "certificate_template.docx"},
		QRCode:   qrcode.DefaultOptions(),
		Document: DocumentConfig{ImageSizeCM: document.DefaultOptions().ImageSizeCM},
		Converter: ConverterConfig{
			Strategy: convert.StrategyNone,
		},
		Mail: MailConfig{
			Transport:      notifications.TransportSMTP,
			FromName:       "Internship Program",
			Organization:   "Internship Program",
			SMTPPort:       587,
			SMTPRequireTLS: true,
			SMTPTimeout:    Duration(30 * time.Second),
		},
		Ledger: LedgerConfig{
			Backend:       ledger.BackendCSV,
			Path:          "certificate_log.csv",
			SheetName:     "Sheet1",
			PostgresTable: "certificate_ledger",
		},
		Admin: AdminConfig{
			SessionTTL:   Duration(time.Hour),
			SecureCookie: true,
		},
		Storage:  StorageConfig{Prefix: "certificates"},
		Snapshot: SnapshotConfig{Format: "csv", Prefix: "ledger-snapshots"},
		Timeouts: TimeoutsConfig{
			Encode:  Duration(10 * time.Second),
			Convert: Duration(2 * time.Minute),
			Notify:  Duration(time.Minute),
			Ledger:  Duration(30 * time.Second),
			Archive: Duration(time.Minute),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from defaults, then the file at configPath
// (JSON, or YAML for .yaml/.yml), then a .env file in the working directory,
// then environment variables. A missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := decodeFile(configPath, data, config); err != nil {
				return nil, err
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Variables already in the environment win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if _, err := env.UnmarshalFromEnviron(config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return config, nil
}

func decodeFile(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return nil
}

// Validate checks backend names and the secrets each backend needs
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Template.Path == "" && c.Template.Base64 == "" {
		errs = append(errs, errors.New("template.path or CERT_TEMPLATE_BASE64 is required"))
	}

	switch strings.ToLower(c.Converter.Strategy) {
	case convert.StrategyNone, convert.StrategyLocal, "":
	case convert.StrategyCloud:
		if c.Converter.BaseURL == "" || c.Converter.ClientID == "" || c.Converter.ClientSecret == "" {
			errs = append(errs, errors.New("cloud converter needs base_url, client_id and CONVERTER_CLIENT_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown converter strategy %q", c.Converter.Strategy))
	}

	if c.Mail.FromAddress == "" {
		errs = append(errs, errors.New("mail.from_address is required"))
	}
	switch strings.ToLower(c.Mail.Transport) {
	case notifications.TransportSMTP, "":
		if c.Mail.SMTPHost == "" {
			errs = append(errs, errors.New("smtp transport needs mail.smtp_host"))
		}
	case notifications.TransportSES:
	case notifications.TransportResend:
		if c.Mail.ResendAPIKey == "" {
			errs = append(errs, errors.New("resend transport needs RESEND_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail transport %q", c.Mail.Transport))
	}

	switch strings.ToLower(c.Ledger.Backend) {
	case ledger.BackendCSV, ledger.BackendXLSX, "":
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("file ledgers need ledger.path"))
		}
	case ledger.BackendSheets:
		if c.Ledger.SpreadsheetID == "" {
			errs = append(errs, errors.New("sheets ledger needs ledger.spreadsheet_id"))
		}
	case ledger.BackendDynamoDB:
		if c.Ledger.DynamoDBTable == "" {
			errs = append(errs, errors.New("dynamodb ledger needs ledger.dynamodb_table"))
		}
	case ledger.BackendPostgres:
		if c.Ledger.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres ledger needs DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %s", ledger.ErrUnknownBackend, c.Ledger.Backend))
	}

	if c.Admin.Key == "" && c.Admin.KeyHash == "" {
		errs = append(errs, errors.New("ADMIN_KEY or ADMIN_KEY_HASH is required"))
	}

	if c.Snapshot.Cron != "" && c.Storage.Bucket == "" {
		errs = append(errs, errors.New("ledger snapshots need storage.bucket"))
	}

	return errors.Join(errs...)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConverterOptions maps the section onto convert.Options
func (c *Config) ConverterOptions() convert.Options {
	return convert.Options{
		Strategy: c.Converter.Strategy,
		Cloud: convert.CloudOptions{
			BaseURL:      c.Converter.BaseURL,
			TokenURL:     c.Converter.TokenURL,
			ClientID:     c.Converter.ClientID,
			ClientSecret: c.Converter.ClientSecret,
			Timeout:      c.Timeouts.Convert.Std(),
		},
		Local: convert.LocalOptions{Binary: c.Converter.OfficeBinary},
	}
}

// MailOptions maps the section onto notifications.Config
func (c *Config) MailOptions() notifications.Config {
	return notifications.Config{
		Transport:    c.Mail.Transport,
		FromAddress:  c.Mail.FromAddress,
		FromName:     c.Mail.FromName,
		Organization: c.Mail.Organization,
		SMTP: notifications.SMTPConfig{
			Host:       c.Mail.SMTPHost,
			Port:       c.Mail.SMTPPort,
			Username:   c.Mail.SMTPUsername,
			Password:   c.Mail.SMTPPassword,
			RequireTLS: c.Mail.SMTPRequireTLS,
			Timeout:    c.Mail.SMTPTimeout.Std(),
		},
		SES:    notifications.SESConfig{Region: c.Mail.SESRegion},
		Resend: notifications.ResendConfig{APIKey: c.Mail.ResendAPIKey},
	}
}

// LedgerOptions maps the section onto ledger.Options
func (c *Config) LedgerOptions() ledger.Options {
	return ledger.Options{
		Backend: c.Ledger.Backend,
		Path:    c.Ledger.Path,
		Sheets: ledger.SheetsOptions{
			SpreadsheetID:   c.Ledger.SpreadsheetID,
			SheetName:       c.Ledger.SheetName,
			CredentialsFile: c.Ledger.CredentialsFile,
			CredentialsJSON: c.Ledger.CredentialsJSON,
		},
		DynamoDB: ledger.DynamoDBOptions{
			Table:    c.Ledger.DynamoDBTable,
			Region:   c.Ledger.DynamoDBRegion,
			Endpoint: c.Ledger.DynamoDBEndpoint,
		},
		Postgres: ledger.PostgresOptions{
			DSN:   c.Ledger.PostgresDSN,
			Table: c.Ledger.PostgresTable,
		},
	}
}

// DocumentOptions maps the section onto document.Options
func (c *Config) DocumentOptions() document.Options {
	return document.Options{ImageSizeCM: c.Document.ImageSizeCM}
}
