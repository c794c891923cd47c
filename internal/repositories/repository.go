package repositories

import "context"

// Repository aggregates the per-entity repositories the quiz engine depends
// on. Persistence stays swappable; services only see these interfaces.
type Repository interface {
	QuestionSet() QuestionSetRepository
	Test() TestRepository
	Instance() InstanceRepository
	Group() GroupRepository

	// User domain (read-only, owned by the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
