package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PaginationParams holds pagination configuration
type PaginationParams struct {
	Page     int64 `json:"page"`     // Current page (1-based)
	PageSize int64 `json:"pageSize"` // Items per page
}

// PaginatedResult holds paginated query results
type PaginatedResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int64 `json:"page"`
	PageSize   int64 `json:"pageSize"`
	TotalPages int64 `json:"totalPages"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Repository provides generic operations for one MongoDB collection
type Repository[T any] struct {
	collection *mongo.Collection
}

// NewRepository creates a new generic repository
func NewRepository[T any](db *mongo.Database, collectionName string) *Repository[T] {
	return &Repository[T]{
		collection: db.Collection(collectionName),
	}
}

// OpenConnection connects to uri and verifies the deployment with a ping.
func OpenConnection(uri string, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client.Database(database), nil
}

// Create inserts a new document
func (r *Repository[T]) Create(ctx context.Context, document *T) (*mongo.InsertOneResult, error) {
	return r.collection.InsertOne(ctx, document)
}

// FindOne finds a single document matching the filter
func (r *Repository[T]) FindOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*T, error) {
	var result T
	err := r.collection.FindOne(ctx, filter, opts...).Decode(&result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FindAll finds all documents matching the filter
func (r *Repository[T]) FindAll(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := make([]T, 0)
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// FindOneAndUpdate applies update to the first match and returns the post-image.
func (r *Repository[T]) FindOneAndUpdate(ctx context.Context, filter bson.M, update bson.M, arrayFilters ...interface{}) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if len(arrayFilters) > 0 {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}

	var result T
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateOne applies a raw update document (operators included) to the first match
func (r *Repository[T]) UpdateOne(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return r.collection.UpdateOne(ctx, filter, update)
}

// Paginate slices items in memory. A page below 1 returns everything.
func Paginate[T any](items []T, params PaginationParams) *PaginatedResult[T] {
	total := int64(len(items))
	if params.Page < 1 {
		return &PaginatedResult[T]{
			Data:       items,
			Total:      total,
			Page:       1,
			PageSize:   total,
			TotalPages: 1,
		}
	}

	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	// Compare before multiplying so a huge page cannot overflow.
	start := total
	if params.Page-1 <= total/params.PageSize {
		start = min((params.Page-1)*params.PageSize, total)
	}
	end := total
	if total-start > params.PageSize {
		end = start + params.PageSize
	}

	totalPages := total / params.PageSize
	if total%params.PageSize > 0 {
		totalPages++
	}

	return &PaginatedResult[T]{
		Data:       items[start:end],
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}
}
