package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/edulab/quiz-engine/internal/cache"
	"github.com/edulab/quiz-engine/internal/events"
	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

// ServiceManagerDeps bundles everything the services share. Clock and Rng are
// overridable so tests can pin time and draws; nil picks the real ones.
type ServiceManagerDeps struct {
	Repo      repositories.Repository
	Logger    *slog.Logger
	Validator *validator.Validator
	Authz     AuthorizationPort
	Publisher events.EventPublisher
	Cache     *cache.CacheManager
	Clock     utils.Clock
	Rng       *rand.Rand
}

type serviceManager struct {
	deps ServiceManagerDeps

	testService        TestService
	allocatorService   AllocatorService
	sessionService     SessionService
	scoringService     ScoringService
	questionSetService QuestionSetService
	exportService      ExportService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

func NewServiceManager(deps ServiceManagerDeps) ServiceManager {
	if deps.Clock == nil {
		deps.Clock = utils.RealClock()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewCacheManager(nil)
	}
	return &serviceManager{deps: deps}
}

func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.deps.Logger.Info("Initializing service manager")

	guard := NewAccessGuard(sm.deps.Authz)

	sm.testService = NewTestService(sm.deps.Repo, sm.deps.Logger, sm.deps.Validator, sm.deps.Authz, sm.deps.Cache)
	sm.allocatorService = NewAllocatorService(sm.deps.Repo, sm.deps.Logger, sm.deps.Validator, sm.deps.Authz, sm.deps.Publisher, sm.deps.Clock, sm.deps.Rng)
	sm.sessionService = NewSessionService(sm.deps.Repo, sm.deps.Logger, sm.deps.Validator, guard, sm.allocatorService, sm.deps.Publisher, sm.deps.Clock)
	sm.scoringService = NewScoringService(sm.deps.Repo, sm.deps.Logger, guard, sm.deps.Cache)
	sm.questionSetService = NewQuestionSetService(sm.deps.Repo, sm.deps.Logger, sm.deps.Validator, sm.deps.Authz, sm.deps.Cache)
	sm.exportService = NewExportService(sm.deps.Repo, sm.deps.Logger, sm.deps.Authz)

	sm.initialized = true
	sm.deps.Logger.Info("Service manager initialized")

	return nil
}

func (sm *serviceManager) get() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

func (sm *serviceManager) Test() TestService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get()
	return sm.testService
}

func (sm *serviceManager) Allocator() AllocatorService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get()
	return sm.allocatorService
}

func (sm *serviceManager) Session() SessionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get()
	return sm.sessionService
}

func (sm *serviceManager) Scoring() ScoringService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get()
	return sm.scoringService
}

func (sm *serviceManager) QuestionSet() QuestionSetService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get()
	return sm.questionSetService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get()
	return sm.exportService
}

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.deps.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.deps.Logger.Info("Shutting down service manager")

	if sm.deps.Publisher != nil {
		if err := sm.deps.Publisher.Close(); err != nil {
			sm.deps.Logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if err := sm.deps.Repo.Close(); err != nil {
		sm.deps.Logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.deps.Logger.Info("Service manager shut down")

	return nil
}
