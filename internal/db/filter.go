package db

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FilterBuilder helps build MongoDB filters fluently
type FilterBuilder struct {
	filter bson.M
}

// NewFilter creates a new FilterBuilder
func NewFilter() *FilterBuilder {
	return &FilterBuilder{filter: bson.M{}}
}

// Eq adds an equality condition
func (f *FilterBuilder) Eq(field string, value interface{}) *FilterBuilder {
	f.filter[field] = value
	return f
}

// Ne adds a not-equal condition
func (f *FilterBuilder) Ne(field string, value interface{}) *FilterBuilder {
	f.filter[field] = bson.M{"$ne": value}
	return f
}

// All matches array fields containing every value
func (f *FilterBuilder) All(field string, values ...interface{}) *FilterBuilder {
	f.filter[field] = bson.M{"$all": values}
	return f
}

// Size matches array fields with exactly n elements
func (f *FilterBuilder) Size(field string, n int) *FilterBuilder {
	f.filter[field] = bson.M{"$size": n}
	return f
}

// Contains adds a case-insensitive contains search. pattern must already be quoted.
func (f *FilterBuilder) Contains(field string, pattern string) *FilterBuilder {
	f.filter[field] = bson.M{"$regex": pattern, "$options": "i"}
	return f
}

// Exists checks if field exists
func (f *FilterBuilder) Exists(field string, exists bool) *FilterBuilder {
	f.filter[field] = bson.M{"$exists": exists}
	return f
}

// ObjectID adds an _id style equality on an already parsed id
func (f *FilterBuilder) ObjectID(field string, id primitive.ObjectID) *FilterBuilder {
	f.filter[field] = id
	return f
}

// Or combines multiple filters with OR
func (f *FilterBuilder) Or(filters ...bson.M) *FilterBuilder {
	if len(filters) > 0 {
		f.filter["$or"] = filters
	}
	return f
}

// Build returns the final bson.M filter
func (f *FilterBuilder) Build() bson.M {
	return f.filter
}
