package config

import (
	"fmt"
)

// Validate checks configuration ranges and cross-field constraints.
// Returns sentinel errors wrapped with detail so callers can use errors.Is.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [0,1], got %g", ErrInvalidThreshold, c.Threshold)
	}

	switch c.IndexBackend {
	case IndexBackendMemory, IndexBackendPostgres:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidIndexBackend, c.IndexBackend, IndexBackendMemory, IndexBackendPostgres)
	}

	if c.PostgresHost == "" || c.PostgresDBName == "" || c.PostgresUser == "" {
		return fmt.Errorf("%w: host, user, and db name are required", ErrInvalidPostgres)
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}

	return nil
}

// ValidateServe checks the additional requirements of serve mode.
func (c *Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("%w: secret must be at least 32 bytes", ErrMissingJWTSecret)
	}
	return nil
}
