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

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Mongo defaults
const (
	DefaultMongoDatabase   = "health_assistant"
	DefaultMongoCollection = "healthrecords"
)

// mongoRecord is the stored document shape; input and analysis are kept as
// sub-documents instead of JSON strings
type mongoRecord struct {
	Record   `bson:",inline"`
	Input    bson.M `bson:"input"`
	Analysis bson.M `bson:"analysis"`
}

// MongoStore writes records to a MongoDB collection
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoStore connects to MongoDB and verifies the connection
func NewMongoStore(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB",
		zap.String("database", database),
		zap.String("collection", collection))

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}, nil
}

// Name implements Store
func (s *MongoStore) Name() string { return StorageTypeMongo }

// Save inserts one document
func (s *MongoStore) Save(ctx context.Context, rec Record) error {
	doc, err := toMongoRecord(rec)
	if err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert record into MongoDB: %w", err)
	}

	s.logger.Debug("Record written to MongoDB",
		zap.String("id", rec.ID),
		zap.String("record_type", string(rec.RecordType)))
	return nil
}

func toMongoRecord(rec Record) (mongoRecord, error) {
	doc := mongoRecord{Record: rec}
	if len(rec.Input) > 0 {
		if err := bson.UnmarshalExtJSON(rec.Input, false, &doc.Input); err != nil {
			return doc, fmt.Errorf("failed to convert record input: %w", err)
		}
	}
	if len(rec.Analysis) > 0 {
		if err := bson.UnmarshalExtJSON(rec.Analysis, false, &doc.Analysis); err != nil {
			return doc, fmt.Errorf("failed to convert record analysis: %w", err)
		}
	}
	return doc, nil
}

// Ping implements Store
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
