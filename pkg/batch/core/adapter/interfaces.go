// Package adapter defines the contracts shared by every resource adapter (databases, storage).
package adapter

// ResourceConnection represents a generic connection to any resource (e.g., database, storage).
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g., "sqlite", "local").
	Type() string
	// Name returns the connection name (e.g., "emissions", "reports").
	Name() string
}
