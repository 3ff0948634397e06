// Package repositories implements persistence over Reindexer.
package repositories

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/restream/reindexer/v4"
	// cproto is the RPC binding; faster than the HTTP one.
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
	"github.com/Yoav-S/legal-analyzer-backend/internal/resultcache"
)

const (
	documentsNamespace = "documents"
	analysesNamespace  = "analyses"

	defaultMaxRetries     = 3
	defaultRetryDelay     = time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// admissionStatuses are the statuses from which a document may enter
// processing. Everything else is either already running or terminal.
var admissionStatuses = []domain.DocumentStatus{
	domain.StatusUploaded,
	domain.StatusParsing,
	domain.StatusWaitingInQueue,
}

// HealthStatus is the connection state exposed to health checks.
type HealthStatus struct {
	IsHealthy bool
	LastCheck time.Time
	LastError error
}

// DocumentStore persists documents and analyses in Reindexer. It owns the
// status timestamp invariants and the compare-and-set admission gate.
type DocumentStore struct {
	dsn    string
	logger *zap.Logger
	cache  *resultcache.Cache

	mu sync.RWMutex
	db *reindexer.Reindexer

	// read lock-free by health checks
	healthStatus atomic.Value // *HealthStatus

	namespacesReady bool
	namespacesMu    sync.Mutex
}

// NewDocumentStore connects to Reindexer with retries and prepares the
// namespaces. The cache is optional; nil disables analysis read caching.
func NewDocumentStore(dsn string, cache *resultcache.Cache, logger *zap.Logger) (*DocumentStore, error) {
	s := &DocumentStore{
		dsn:    dsn,
		logger: logger,
		cache:  cache,
	}
	s.healthStatus.Store(&HealthStatus{IsHealthy: false, LastCheck: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := s.connectWithRetry(ctx, defaultMaxRetries); err != nil {
		return nil, errors.Wrap(err, "connect to reindexer")
	}
	if err := s.EnsureNamespaces(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DocumentStore) connectWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			s.logger.Info("retrying reindexer connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			time.Sleep(delay)
		}

		db := reindexer.NewReindex(s.dsn, reindexer.WithCreateDBIfMissing())
		if err := db.Status().Err; err != nil {
			lastErr = err
			db.Close()
			s.logger.Warn("reindexer connection test failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		s.mu.Lock()
		if s.db != nil {
			s.db.Close()
		}
		s.db = db
		s.mu.Unlock()

		s.updateHealth(true, nil)
		s.logger.Info("connected to reindexer")
		return nil
	}

	s.updateHealth(false, lastErr)
	return errors.Wrapf(lastErr, "no connection after %d attempts", maxRetries)
}

// EnsureNamespaces opens (and creates when missing) the documents and
// analyses namespaces.
func (s *DocumentStore) EnsureNamespaces(ctx context.Context) error {
	if s.namespacesReady {
		return nil
	}

	s.namespacesMu.Lock()
	defer s.namespacesMu.Unlock()
	if s.namespacesReady {
		return nil
	}

	db := s.conn()
	if db == nil {
		return errors.New("no database connection")
	}

	opts := reindexer.DefaultNamespaceOptions()
	if err := db.OpenNamespace(documentsNamespace, opts, domain.Document{}); err != nil {
		return errors.Wrapf(err, "open namespace %s", documentsNamespace)
	}
	if err := db.OpenNamespace(analysesNamespace, opts, domain.AnalysisResult{}); err != nil {
		return errors.Wrapf(err, "open namespace %s", analysesNamespace)
	}

	s.namespacesReady = true
	s.logger.Info("namespaces ready",
		zap.String("documents", documentsNamespace),
		zap.String("analyses", analysesNamespace),
	)
	return nil
}

func (s *DocumentStore) conn() *reindexer.Reindexer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *DocumentStore) updateHealth(healthy bool, err error) {
	s.healthStatus.Store(&HealthStatus{
		IsHealthy: healthy,
		LastCheck: time.Now(),
		LastError: err,
	})
}

// Health returns the last observed connection state.
func (s *DocumentStore) Health() *HealthStatus {
	if status, ok := s.healthStatus.Load().(*HealthStatus); ok {
		return status
	}
	return &HealthStatus{IsHealthy: false}
}

// Create stores a new document.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := s.conn()
	if db == nil {
		return errors.New("no database connection")
	}

	if err := db.Upsert(documentsNamespace, doc); err != nil {
		s.updateHealth(false, err)
		return errors.Wrapf(err, "create document %s", doc.ID)
	}
	return nil
}

// GetByID retrieves a document, scoped to userID when non-empty. Fails with
// domain.ErrNotFound when no row matches.
func (s *DocumentStore) GetByID(ctx context.Context, id, userID string) (*domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := s.conn()
	if db == nil {
		return nil, errors.New("no database connection")
	}

	query := db.Query(documentsNamespace).Where("id", reindexer.EQ, id)
	if userID != "" {
		query = query.Where("user_id", reindexer.EQ, userID)
	}

	iter := query.Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		s.updateHealth(false, err)
		return nil, errors.Wrapf(err, "query document %s", id)
	}

	for iter.Next() {
		if doc, ok := iter.Object().(*domain.Document); ok {
			out := *doc
			return &out, nil
		}
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "id %s", id)
}

// UpdateStatus transitions a document and maintains the timestamp
// invariants: processing_started_at is set once on the first transition to
// processing, processing_completed_at is set exactly on terminal transitions.
// Completed and failed are terminal; transitioning out of them fails with
// domain.ErrTerminalStatus.
func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errorMessage string) error {
	doc, err := s.GetByID(ctx, id, "")
	if err != nil {
		return err
	}
	if doc.Status.IsTerminal() {
		return errors.Wrapf(domain.ErrTerminalStatus, "document %s is %s", id, doc.Status)
	}

	now := time.Now().UTC()
	doc.Status = status
	doc.ErrorMessage = errorMessage
	doc.UpdatedAt = now

	if status == domain.StatusProcessing && doc.ProcessingStartedAt == nil {
		doc.ProcessingStartedAt = &now
	}
	if status.IsTerminal() {
		doc.ProcessingCompletedAt = &now
	}

	return s.upsertDocument(doc)
}

// BeginProcessing is the compare-and-set admission gate: it moves the
// document into processing iff its current status allows it. A lost race or
// an already-running analysis fails with domain.ErrAlreadyProcessing.
func (s *DocumentStore) BeginProcessing(ctx context.Context, id string) error {
	db := s.conn()
	if db == nil {
		return errors.New("no database connection")
	}

	statuses := make([]interface{}, len(admissionStatuses))
	for i, st := range admissionStatuses {
		statuses[i] = string(st)
	}

	updated := db.Query(documentsNamespace).
		Where("id", reindexer.EQ, id).
		Where("status", reindexer.SET, statuses).
		Set("status", string(domain.StatusProcessing)).
		Update()
	defer updated.Close()

	if err := updated.Error(); err != nil {
		s.updateHealth(false, err)
		return errors.Wrapf(err, "admit document %s", id)
	}
	if updated.Count() == 0 {
		if _, err := s.GetByID(ctx, id, ""); err != nil {
			return err
		}
		return errors.Wrapf(domain.ErrAlreadyProcessing, "id %s", id)
	}

	// won the race; stamp the start time without disturbing an earlier one
	doc, err := s.GetByID(ctx, id, "")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.UpdatedAt = now
	if doc.ProcessingStartedAt == nil {
		doc.ProcessingStartedAt = &now
	}
	return s.upsertDocument(doc)
}

// SetRiskScore records the computed score on the document row.
func (s *DocumentStore) SetRiskScore(ctx context.Context, id string, score int) error {
	doc, err := s.GetByID(ctx, id, "")
	if err != nil {
		return err
	}
	doc.RiskScore = &score
	doc.UpdatedAt = time.Now().UTC()
	return s.upsertDocument(doc)
}

// SaveAnalysis persists the final analysis and primes the read cache.
func (s *DocumentStore) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := s.conn()
	if db == nil {
		return errors.New("no database connection")
	}

	if err := db.Upsert(analysesNamespace, result); err != nil {
		s.updateHealth(false, err)
		return errors.Wrapf(err, "save analysis for document %s", result.DocumentID)
	}

	if s.cache != nil {
		s.cache.Put(result)
	}
	return nil
}

// GetAnalysisByDocumentID returns the stored analysis for a document,
// serving from the cache when possible. Fails with domain.ErrNotFound when
// the document has no analysis yet.
func (s *DocumentStore) GetAnalysisByDocumentID(ctx context.Context, documentID string) (*domain.AnalysisResult, error) {
	if s.cache != nil {
		if result, ok := s.cache.Get(documentID); ok {
			return result, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := s.conn()
	if db == nil {
		return nil, errors.New("no database connection")
	}

	iter := db.Query(analysesNamespace).
		Where("document_id", reindexer.EQ, documentID).
		Sort("created_at", true).
		Limit(1).
		Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		s.updateHealth(false, err)
		return nil, errors.Wrapf(err, "query analysis for document %s", documentID)
	}

	for iter.Next() {
		if result, ok := iter.Object().(*domain.AnalysisResult); ok {
			out := *result
			if s.cache != nil {
				s.cache.Put(&out)
			}
			return &out, nil
		}
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "no analysis for document %s", documentID)
}

func (s *DocumentStore) upsertDocument(doc *domain.Document) error {
	db := s.conn()
	if db == nil {
		return errors.New("no database connection")
	}
	if err := db.Upsert(documentsNamespace, doc); err != nil {
		s.updateHealth(false, err)
		return errors.Wrapf(err, "update document %s", doc.ID)
	}
	return nil
}

// CheckConnection pings the database for external health checks.
func (s *DocumentStore) CheckConnection(ctx context.Context) error {
	db := s.conn()
	if db == nil {
		return errors.New("no database connection")
	}
	if err := db.Status().Err; err != nil {
		s.updateHealth(false, err)
		return errors.Wrap(err, "reindexer ping")
	}
	s.updateHealth(true, nil)
	return nil
}

// Close shuts the database connection down.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.updateHealth(false, errors.New("connection closed"))
	return nil
}

var _ domain.DocumentStore = (*DocumentStore)(nil)
