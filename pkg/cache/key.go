package cache

import (
	"strings"
)

// KeyPrefix starts every cache key.
const KeyPrefix = "hub"

// CacheKey identifies one cached resolved data items lookup.
type CacheKey struct {
	Namespace  string
	DataViewID string

	// QueryID is the data view query whose items were resolved
	// (e.g. "Asset_value").
	QueryID string
}

// String generates a deterministic cache key string. Identifiers are
// case-insensitive on the hub and are lowercased.
// Format: hub:namespace:dataviews:id:items:query
//
// Example:
//
//	hub:fermentation:dataviews:hubdv_fermenter_1:items:asset_value
func (k CacheKey) String() string {
	parts := []string{KeyPrefix, strings.ToLower(k.Namespace), "dataviews", strings.ToLower(k.DataViewID)}
	if k.QueryID != "" {
		parts = append(parts, "items", strings.ToLower(k.QueryID))
	}
	return strings.Join(parts, ":")
}

// Pattern returns a SCAN pattern matching every key of the same data view.
func (k CacheKey) Pattern() string {
	return CacheKey{Namespace: k.Namespace, DataViewID: k.DataViewID}.String() + ":*"
}
