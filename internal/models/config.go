package models

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Port        string            `yaml:"port"`
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Notify      NotifyConfig      `yaml:"notify"`
	Resize      ResizeConfig      `yaml:"resize"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

type ObjectStoreConfig struct {
	Driver          string `yaml:"driver"` // s3, minio or memory
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	Endpoint        string `yaml:"endpoint"` // minio only
	UseSSL          bool   `yaml:"use_ssl"`
	PublicBase      string `yaml:"public_base"`
}

type KafkaConfig struct {
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`
	GroupID string `yaml:"group_id"`
}

type NotifyConfig struct {
	// PublishOnUpload makes the upload endpoint announce new objects on the
	// Kafka topic itself, for stores without bucket notifications.
	PublishOnUpload bool `yaml:"publish_on_upload"`
}

type ResizeConfig struct {
	MaxWidth    int `yaml:"max_width"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

// LoadConfig reads the YAML file at path (skipped when path is empty or the
// file is missing), then applies .env and environment overrides.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")

	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	if v, ok := os.LookupEnv("DB_MAX_CONNS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Database.MaxConns = int32(n)
		}
	}

	setString(&c.ObjectStore.Driver, "OBJECT_STORE_DRIVER")
	setString(&c.ObjectStore.Region, "AWS_REGION")
	setString(&c.ObjectStore.Bucket, "AWS_BUCKET_NAME")
	setString(&c.ObjectStore.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.ObjectStore.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.ObjectStore.SessionToken, "AWS_SESSION_TOKEN")
	setString(&c.ObjectStore.Endpoint, "MINIO_ENDPOINT")
	setString(&c.ObjectStore.PublicBase, "MINIO_PUBLIC_BASE")
	setBool(&c.ObjectStore.UseSSL, "MINIO_USE_SSL")

	setString(&c.Kafka.Broker, "KAFKA_BROKER")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Kafka.GroupID, "KAFKA_GROUP_ID")

	setBool(&c.Notify.PublishOnUpload, "NOTIFY_PUBLISH_ON_UPLOAD")
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "3000"
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.ObjectStore.Driver == "" {
		c.ObjectStore.Driver = "s3"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "image-processor-group"
	}
	if c.Resize.MaxWidth <= 0 {
		c.Resize.MaxWidth = 1920
	}
	if c.Resize.JPEGQuality <= 0 || c.Resize.JPEGQuality > 100 {
		c.Resize.JPEGQuality = 85
	}
}

// DSN returns the explicit database URL, or one assembled from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
