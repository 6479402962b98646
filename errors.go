package playsync

import (
	"playsync/feed"
	"playsync/retry"
	"playsync/storage"
)

// Error handling types exported for library users.
//
// All error types support the standard error handling patterns:
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, feed.ErrFeedNotFound) {
//		fmt.Println("Feed not found")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var provErr *feed.ProviderError
//	if errors.As(err, &provErr) {
//		fmt.Printf("Fetch failed for %s: %v\n", provErr.Source, provErr.Err)
//	}

// Exported error types from sub-packages:
//
// From feed package:
//   - feed.ErrFeedNotFound: Feed does not exist
//   - feed.ErrRateLimited: Rate limit exceeded
//   - feed.ErrNetworkTimeout: Network timeout occurred
//   - feed.ErrInvalidURI: Invalid feed URI
//   - feed.ErrNoProvider: No provider registered for the source kind
//   - feed.Provider: Interface for feed listing
//   - feed.ProviderError: Error during feed listing
//
// From retry package:
//   - retry.ErrFeedNotFound: Feed not found (permanent error)
//   - retry.ErrInvalidURI: Invalid URI (permanent error)
//   - retry.RetryableError: Error after max retries exceeded
//
// From storage package:
//   - storage.ErrNotFound: Entity not found in storage
//   - storage.ErrAlreadyExists: Entity already exists
//   - storage.ErrInvalidInput: Invalid input provided
//   - storage.ErrStorageCorrupt: Data corruption detected
//   - storage.ErrLockTimeout: File lock timeout
//   - storage.StorageError: General storage operation error

// Type aliases for convenient error handling.
type (
	// ProviderError wraps errors during feed listing.
	ProviderError = feed.ProviderError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrFeedNotFound indicates the external feed does not exist.
	ErrFeedNotFound = feed.ErrFeedNotFound
	// ErrRateLimited indicates the operation was rate limited.
	ErrRateLimited = feed.ErrRateLimited
	// ErrNetworkTimeout indicates a network timeout occurred.
	ErrNetworkTimeout = feed.ErrNetworkTimeout
	// ErrInvalidURI indicates the provided feed URI is invalid.
	ErrInvalidURI = feed.ErrInvalidURI
	// ErrNoProvider indicates no provider is registered for a source kind.
	ErrNoProvider = feed.ErrNoProvider

	// Storage errors
	// ErrNotFound indicates an entity was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrAlreadyExists indicates an entity already exists in storage.
	ErrAlreadyExists = storage.ErrAlreadyExists
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = storage.ErrInvalidInput
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
// It returns false for permanent errors like ErrFeedNotFound.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
