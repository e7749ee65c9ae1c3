package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	defaultSimilarityThreshold = 0.75
	defaultMinClusterSize      = 2
	defaultMaxClusterSize      = 50
	defaultClusterAlgorithm    = "greedy_v1"

	defaultAutoAssignThreshold   = 0.99
	defaultConfirmationThreshold = 0.75
	defaultBoxMatchThreshold     = 0.8

	defaultMaxConcurrentJobs = 2
	defaultUploadConcurrency = 3
	defaultUploadRetries     = 3

	defaultTrainingIntervalMinutes = 60
	defaultMinFacesForAutoTrain    = 5
	defaultQueuePollSeconds        = 30
)

type Config struct {
	// source directory (where original user images live; face crops are cut
	// from these before upload)
	RootDirectory string

	// database path
	DatabasePath string

	// external recognition engine
	RecognitionURL    string
	RecognitionAPIKey string

	// clustering settings
	SimilarityThreshold float64
	MinClusterSize      int
	MaxClusterSize      int
	ClusterAlgorithm    string

	// batch-recognition confidence tiers: at or above AutoAssignThreshold a
	// match is applied automatically; between ConfirmationThreshold and
	// AutoAssignThreshold it is surfaced for human confirmation
	AutoAssignThreshold   float64
	ConfirmationThreshold float64
	BoxMatchThreshold     float64

	// training queue settings
	MaxConcurrentJobs int
	UploadConcurrency int
	UploadRetries     int

	// auto-training settings
	TrainingInterval     time.Duration
	MinFacesForAutoTrain int
	QueuePollInterval    time.Duration
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 || val > 1 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	root := getEnvOrDefault("ROOT_DIRECTORY", ".")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for root directory '%s': %w", root, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "faces.db")

	recognitionURL := getEnvOrDefault("RECOGNITION_URL", "http://localhost:8000")
	recognitionKey := os.Getenv("RECOGNITION_API_KEY")
	if recognitionKey == "" {
		log.Printf("Warning: RECOGNITION_API_KEY is not set; external engine calls will likely be rejected")
	}

	cfg := Config{
		RootDirectory: absRoot,
		DatabasePath:  dbPath,

		RecognitionURL:    recognitionURL,
		RecognitionAPIKey: recognitionKey,

		SimilarityThreshold: getEnvFloatOrDefault("SIMILARITY_THRESHOLD", defaultSimilarityThreshold),
		MinClusterSize:      getEnvIntOrDefault("MIN_CLUSTER_SIZE", defaultMinClusterSize),
		MaxClusterSize:      getEnvIntOrDefault("MAX_CLUSTER_SIZE", defaultMaxClusterSize),
		ClusterAlgorithm:    getEnvOrDefault("CLUSTER_ALGORITHM", defaultClusterAlgorithm),

		AutoAssignThreshold:   getEnvFloatOrDefault("AUTO_ASSIGN_THRESHOLD", defaultAutoAssignThreshold),
		ConfirmationThreshold: getEnvFloatOrDefault("CONFIRMATION_THRESHOLD", defaultConfirmationThreshold),
		BoxMatchThreshold:     getEnvFloatOrDefault("BOX_MATCH_THRESHOLD", defaultBoxMatchThreshold),

		MaxConcurrentJobs: getEnvIntOrDefault("MAX_CONCURRENT_JOBS", defaultMaxConcurrentJobs),
		UploadConcurrency: getEnvIntOrDefault("UPLOAD_CONCURRENCY", defaultUploadConcurrency),
		UploadRetries:     getEnvIntOrDefault("UPLOAD_RETRIES", defaultUploadRetries),

		TrainingInterval:     time.Duration(getEnvIntOrDefault("TRAINING_INTERVAL_MINUTES", defaultTrainingIntervalMinutes)) * time.Minute,
		MinFacesForAutoTrain: getEnvIntOrDefault("MIN_FACES_FOR_AUTO_TRAIN", defaultMinFacesForAutoTrain),
		QueuePollInterval:    time.Duration(getEnvIntOrDefault("QUEUE_POLL_SECONDS", defaultQueuePollSeconds)) * time.Second,
	}

	if cfg.MinClusterSize < 2 {
		return Config{}, fmt.Errorf("MIN_CLUSTER_SIZE must be at least 2, got %d", cfg.MinClusterSize)
	}
	if cfg.MaxClusterSize < cfg.MinClusterSize {
		return Config{}, fmt.Errorf("MAX_CLUSTER_SIZE (%d) must not be smaller than MIN_CLUSTER_SIZE (%d)", cfg.MaxClusterSize, cfg.MinClusterSize)
	}
	if cfg.ConfirmationThreshold > cfg.AutoAssignThreshold {
		return Config{}, fmt.Errorf("CONFIRMATION_THRESHOLD (%g) must not exceed AUTO_ASSIGN_THRESHOLD (%g)", cfg.ConfirmationThreshold, cfg.AutoAssignThreshold)
	}

	return cfg, nil
}
