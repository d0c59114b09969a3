package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// CorpusStorage reads raw law documents (one JSON file per law) from a
// backing store.
type CorpusStorage interface {
	// List returns the document names in the corpus, sorted.
	List(ctx context.Context) ([]string, error)

	// Read returns the raw bytes of one document.
	Read(ctx context.Context, name string) ([]byte, error)
}

// StorageType represents the storage backend type.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for corpus storage.
type StorageConfig struct {
	Type         StorageType
	LocalPath    string // for local storage
	S3Bucket     string // for S3 storage
	S3Prefix     string
	S3Region     string
	AWSAccessKey string
	AWSSecretKey string
}

// NewCorpusStorage creates a corpus storage instance based on configuration.
func NewCorpusStorage(cfg StorageConfig) (CorpusStorage, error) {
	switch cfg.Type {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeS3:
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewCorpusStorageFromEnv creates a corpus storage instance from environment
// variables.
func NewCorpusStorageFromEnv() (CorpusStorage, error) {
	storageType := os.Getenv("CORPUS_STORAGE_TYPE")
	if storageType == "" {
		storageType = "local" // default to local for development
	}

	switch StorageType(storageType) {
	case StorageTypeLocal:
		localPath := os.Getenv("CORPUS_LOCAL_PATH")
		if localPath == "" {
			localPath = "./corpus"
		}
		return NewLocalStorage(localPath)

	case StorageTypeS3:
		cfg := StorageConfig{
			Type:         StorageTypeS3,
			S3Bucket:     os.Getenv("AWS_S3_BUCKET"),
			S3Prefix:     os.Getenv("AWS_S3_PREFIX"),
			S3Region:     os.Getenv("AWS_REGION"),
			AWSAccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			AWSSecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1"
		}
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for S3 storage")
		}
		return NewS3Storage(cfg)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}
