package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultRegion = "us-east-1"
)

// Config holds everything the CDK app reads from the environment.
type Config struct {
	Account          string
	Region           string
	BucketName       string
	StateMachineArn  string
	Prefix           string
	Suffix           string
	AssetPath        string
	AlarmEmail       string
	CanaryDeployment bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	prefix, err := checkEnv("S3_PREFIX")
	if err != nil {
		return nil, err
	}
	suffix, err := checkEnv("S3_SUFFIX")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Account:         os.Getenv("ACCOUNT_ID"),
		Region:          getEnv("ACCOUNT_REGION", defaultRegion),
		BucketName:      os.Getenv("RESOURCE_BUCKET_NAME"),
		StateMachineArn: os.Getenv("STATE_MACHINE_ARN"),
		Prefix:          prefix,
		Suffix:          suffix,
		AssetPath:       os.Getenv("TRIGGER_ASSET_PATH"),
		AlarmEmail:      os.Getenv("ALARM_EMAIL"),
	}

	if v := os.Getenv("CANARY_DEPLOYMENT"); v != "" {
		canary, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CANARY_DEPLOYMENT must be a boolean, got %q: %w", v, err)
		}
		cfg.CanaryDeployment = canary
	}

	return cfg, nil
}

// checkEnv returns the value of a required variable. Set-but-empty counts as
// set, so an empty prefix or suffix can be requested explicitly.
func checkEnv(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return value, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
