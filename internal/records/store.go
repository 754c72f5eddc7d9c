// Copyright 2024 AI Health Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package records

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Supported storage backends
const (
	StorageTypeNone   = "none"
	StorageTypeFile   = "file"
	StorageTypeSQLite = "sqlite"
	StorageTypeMongo  = "mongo"
)

// Store writes records to a backend
type Store interface {
	Save(ctx context.Context, rec Record) error
	Ping(ctx context.Context) error
	Name() string
	Close() error
}

// Config holds configuration for record persistence
type Config struct {
	StorageType     string        `mapstructure:"storage_type"`
	FilePath        string        `mapstructure:"file_path"`
	DBPath          string        `mapstructure:"db_path"`
	MongoURI        string        `mapstructure:"mongo_uri"`
	MongoDatabase   string        `mapstructure:"mongo_database"`
	MongoCollection string        `mapstructure:"mongo_collection"`
	QueueSize       int           `mapstructure:"queue_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// NewStore opens the configured backend. StorageTypeNone yields a nil store.
func NewStore(ctx context.Context, config Config, logger *zap.Logger) (Store, error) {
	switch config.StorageType {
	case StorageTypeNone, "":
		return nil, nil
	case StorageTypeFile:
		store, err := NewFileStore(config.FilePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
		return store, nil
	case StorageTypeSQLite:
		store, err := NewSQLiteStore(config.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		return store, nil
	case StorageTypeMongo:
		store, err := NewMongoStore(ctx, config.MongoURI, config.MongoDatabase, config.MongoCollection, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.StorageType)
	}
}
