// Package belief implements dataNERD's persistent belief store: per-user
// semantic memory backed by SQLite with embedding-based recall and lazy
// exponential confidence decay.
//
// Beliefs are immutable rows. Confidence decay is never written back;
// EffectiveConfidence is computed from created_at at read time, so a belief
// ages without a single UPDATE. Similarity search uses sqlite-vec's
// vec_distance_cosine when the extension is available (sqlite_vec build tag)
// and falls back to an in-process cosine scan otherwise. Both paths return
// identical results because every stored vector is unit length.
//
// Example usage:
//
//	engine, _ := embedding.NewEngine(cfg.Embedding)
//	store, err := belief.NewStore(cfg.Beliefs, engine)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer store.Close()
//
//	// User tells us something they already know
//	store.MarkKnown(ctx, "user-1", "sales-q3", "revenue dips every July")
//
//	// Recall memory relevant to a new question
//	context, _ := store.RecallContext(ctx, "user-1", "sales-q3", "seasonal revenue patterns", 5)
//
//	// Score how surprising a candidate insight is against memory
//	surprisal, neighbors, _ := store.ComputeSurprisal(ctx, "user-1", "sales-q3", insightVec)
package belief

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"datanerd/internal/config"
	"datanerd/internal/embedding"
	"datanerd/internal/logging"
	"datanerd/internal/types"

	"github.com/google/uuid"
)

// =============================================================================
// SCHEMA
// =============================================================================

const beliefSchema = `
CREATE TABLE IF NOT EXISTS beliefs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	dataset_id  TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL,
	embedding   BLOB,
	source      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	created_at  TEXT NOT NULL,
	decay_rate  REAL NOT NULL
)`

var beliefIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_beliefs_user ON beliefs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_beliefs_user_dataset ON beliefs(user_id, dataset_id)`,
	`CREATE INDEX IF NOT EXISTS idx_beliefs_source ON beliefs(source)`,
	`CREATE INDEX IF NOT EXISTS idx_beliefs_created ON beliefs(created_at)`,
}

// beliefColumns is the select list every row scan uses.
const beliefColumns = `id, user_id, dataset_id, text, embedding, source, confidence, created_at, decay_rate`

// timeLayout is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering of the TEXT column;
// the fixed width keeps ORDER BY created_at chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite-backed belief memory. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	engine    embedding.Engine
	vectorExt bool // sqlite-vec scalar functions available on this connection

	decayRate    float64 // default per-day decay for new beliefs
	chunkSize    int     // document ingestion chunk size, characters
	chunkOverlap int
}

// NewStore opens (creating if needed) the belief database at the configured
// path and prepares the schema. The embedding engine is required; every
// belief is stored with a unit-length vector of the engine's dimensionality.
func NewStore(cfg config.BeliefsConfig, engine embedding.Engine) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "belief.NewStore")
	defer timer.Stop()

	if engine == nil {
		return nil, fmt.Errorf("belief store requires an embedding engine")
	}

	path := cfg.DatabasePath
	if path == "" {
		path = filepath.Join("data", "datanerd.db")
	}
	logging.Store("Initializing belief store at path: %s", path)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{
		db:           db,
		dbPath:       path,
		engine:       engine,
		decayRate:    cfg.DecayRate,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
	if s.decayRate <= 0 {
		s.decayRate = types.DefaultDecayRate
	}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		s.chunkOverlap = DefaultChunkOverlap
	}

	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize belief schema: %v", err)
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected; using SQL-side similarity search")
	} else {
		logging.StoreDebug("sqlite-vec not available; using in-process cosine scan")
	}

	logging.Store("Belief store ready (engine=%s, dims=%d, decay=%.4f/day)",
		engine.Name(), engine.Dimensions(), s.decayRate)
	return s, nil
}

// initialize creates the beliefs table and its indexes.
func (s *Store) initialize() error {
	if _, err := s.db.Exec(beliefSchema); err != nil {
		return fmt.Errorf("failed to create beliefs table: %w", err)
	}
	for _, idx := range beliefIndexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// detectVecExtension probes for the vec_distance_cosine scalar function,
// which is all the similarity path needs.
func (s *Store) detectVecExtension() {
	if s.db == nil {
		return
	}
	probe := encodeEmbedding([]float32{1, 0, 0, 0})
	var dist float64
	if err := s.db.QueryRow("SELECT vec_distance_cosine(?, ?)", probe, probe).Scan(&dist); err == nil {
		s.vectorExt = true
	}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logging.Store("Belief store closed")
	return err
}

// VectorSearchEnabled reports whether sqlite-vec is serving similarity
// queries in SQL rather than the Go-side scan.
func (s *Store) VectorSearchEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectorExt
}

// EngineName identifies the embedding engine backing this store.
func (s *Store) EngineName() string {
	return s.engine.Name()
}

func unavailable(op string, err error) error {
	return &types.BeliefStoreUnavailableError{Op: op, Err: err}
}

// =============================================================================
// WRITES
// =============================================================================

// AddBelief records one belief, embedding the text if no vector is supplied.
// Zero-valued fields are filled in: ID, CreatedAt, DecayRate, and Confidence
// (from the source's default). Returns the belief as stored.
func (s *Store) AddBelief(ctx context.Context, b types.Belief) (types.Belief, error) {
	if err := s.fillDefaults(ctx, &b); err != nil {
		return types.Belief{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return types.Belief{}, unavailable("add_belief", fmt.Errorf("store closed"))
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO beliefs (`+beliefColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.DatasetID, b.Text, encodeEmbedding(b.Embedding),
		string(b.Source), b.Confidence, b.CreatedAt.Format(timeLayout), b.DecayRate)
	if err != nil {
		logging.Get(logging.CategoryBelief).Error("Failed to insert belief for user %s: %v", b.UserID, err)
		logging.Audit().BeliefOp(logging.AuditBeliefAdd, b.UserID, 0, false, err.Error())
		return types.Belief{}, unavailable("add_belief", err)
	}

	logging.BeliefDebug("Stored belief %s (user=%s, source=%s, confidence=%.2f)",
		b.ID, b.UserID, b.Source, b.Confidence)
	logging.Audit().BeliefOp(logging.AuditBeliefAdd, b.UserID, 1, true, "")
	return b, nil
}

// fillDefaults validates the belief and stamps ID, timestamp, decay rate,
// confidence, and embedding. Validation failures are plain errors; embedding
// failures surface as store unavailability.
func (s *Store) fillDefaults(ctx context.Context, b *types.Belief) error {
	b.Text = strings.TrimSpace(b.Text)
	if b.UserID == "" {
		return fmt.Errorf("belief requires a user_id")
	}
	if b.Text == "" {
		return fmt.Errorf("belief requires non-empty text")
	}
	if !types.ValidBeliefSource(b.Source) {
		return fmt.Errorf("unknown belief source %q", b.Source)
	}
	if b.Confidence < 0 || b.Confidence > 1 {
		return fmt.Errorf("confidence %.3f out of range [0,1]", b.Confidence)
	}
	if b.Confidence == 0 {
		b.Confidence = types.DefaultConfidence(b.Source)
	}
	if b.DecayRate < 0 {
		return fmt.Errorf("decay rate must be >= 0, got %.4f", b.DecayRate)
	}
	if b.DecayRate == 0 {
		b.DecayRate = s.decayRate
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	} else {
		b.CreatedAt = b.CreatedAt.UTC()
	}

	if b.Embedding == nil {
		vec, err := s.engine.Embed(ctx, b.Text)
		if err != nil {
			logging.Get(logging.CategoryBelief).Error("Failed to embed belief text: %v", err)
			return unavailable("embed_belief", err)
		}
		b.Embedding = vec
	}
	if len(b.Embedding) != s.engine.Dimensions() {
		return fmt.Errorf("embedding has %d dimensions, store expects %d",
			len(b.Embedding), s.engine.Dimensions())
	}
	return nil
}

// MarkKnown records a statement the user explicitly confirmed they already
// know. Stored near certainty so matching insights score as not novel.
func (s *Store) MarkKnown(ctx context.Context, userID, datasetID, text string) (types.Belief, error) {
	logging.Belief("MarkKnown (user=%s): %.80s", userID, text)
	return s.AddBelief(ctx, types.Belief{
		UserID:    userID,
		DatasetID: datasetID,
		Text:      text,
		Source:    types.SourceUserConfirmed,
	})
}

// DismissInsight records an insight the user waved away. Dismissal is as
// strong a signal as confirmation: the user does not want to see it again,
// so it is stored near certainty under its own provenance.
func (s *Store) DismissInsight(ctx context.Context, userID, datasetID, text string) (types.Belief, error) {
	logging.Belief("DismissInsight (user=%s): %.80s", userID, text)
	return s.AddBelief(ctx, types.Belief{
		UserID:    userID,
		DatasetID: datasetID,
		Text:      text,
		Source:    types.SourceUserDismissed,
	})
}

// AcceptInsight records an approved insight the user kept, so future runs
// treat it as known territory rather than rediscovering it.
func (s *Store) AcceptInsight(ctx context.Context, userID, datasetID string, insight types.InsightState) (types.Belief, error) {
	if strings.TrimSpace(insight.Description) == "" {
		return types.Belief{}, fmt.Errorf("insight has no description to remember")
	}
	logging.Belief("AcceptInsight (user=%s, type=%s): %.80s", userID, insight.InsightType, insight.Description)
	return s.AddBelief(ctx, types.Belief{
		UserID:    userID,
		DatasetID: datasetID,
		Text:      insight.Description,
		Source:    types.SourceUserAccepted,
	})
}

// IngestDocument chunks a document, embeds every chunk in one batch, and
// stores each chunk as a document_ingested belief. Returns the number of
// chunks stored. An empty document stores nothing and returns 0.
func (s *Store) IngestDocument(ctx context.Context, userID, datasetID, name, content string) (int, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "IngestDocument")
	defer timer.Stop()

	if userID == "" {
		return 0, fmt.Errorf("document ingestion requires a user_id")
	}
	chunks := ChunkText(content, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		logging.IngestDebug("Document %q is empty after chunking, nothing to ingest", name)
		return 0, nil
	}
	logging.Ingest("Ingesting document %q for user %s: %d chunks", name, userID, len(chunks))

	vecs, err := s.engine.EmbedBatch(ctx, chunks)
	if err != nil {
		logging.Get(logging.CategoryIngest).Error("Failed to embed document %q: %v", name, err)
		return 0, unavailable("ingest_document", err)
	}
	if len(vecs) != len(chunks) {
		return 0, unavailable("ingest_document",
			fmt.Errorf("engine returned %d vectors for %d chunks", len(vecs), len(chunks)))
	}

	now := time.Now().UTC()
	created := now.Format(timeLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, unavailable("ingest_document", fmt.Errorf("store closed"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("ingest_document", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO beliefs (`+beliefColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, unavailable("ingest_document", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if len(vecs[i]) != s.engine.Dimensions() {
			tx.Rollback()
			return 0, fmt.Errorf("chunk %d embedding has %d dimensions, store expects %d",
				i, len(vecs[i]), s.engine.Dimensions())
		}
		_, err := stmt.ExecContext(ctx,
			uuid.NewString(), userID, datasetID, chunk, encodeEmbedding(vecs[i]),
			string(types.SourceDocumentIngested),
			types.DefaultConfidence(types.SourceDocumentIngested),
			created, s.decayRate)
		if err != nil {
			tx.Rollback()
			return 0, unavailable("ingest_document", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("ingest_document", err)
	}

	logging.Ingest("Document %q ingested: %d beliefs stored", name, len(chunks))
	logging.Audit().BeliefOp(logging.AuditBeliefIngest, userID, len(chunks), true, "")
	return len(chunks), nil
}

// =============================================================================
// SIMILARITY QUERIES
// =============================================================================

// QuerySimilar returns the topK beliefs for the user most similar to the
// query vector, highest similarity first. When datasetID is non-empty the
// results are limited to that dataset plus dataset-agnostic beliefs; when
// empty, all of the user's beliefs are candidates. Each result carries its
// decayed confidence evaluated at query time.
func (s *Store) QuerySimilar(ctx context.Context, userID, datasetID string, queryVec []float32, topK int) ([]types.ScoredBelief, error) {
	if topK <= 0 {
		topK = 5
	}
	if len(queryVec) != s.engine.Dimensions() {
		return nil, fmt.Errorf("query vector has %d dimensions, store expects %d",
			len(queryVec), s.engine.Dimensions())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, unavailable("query_similar", fmt.Errorf("store closed"))
	}

	if s.vectorExt {
		return s.querySimilarVec(ctx, userID, datasetID, queryVec, topK)
	}
	return s.querySimilarScan(ctx, userID, datasetID, queryVec, topK)
}

// querySimilarVec ranks beliefs in SQL via vec_distance_cosine.
func (s *Store) querySimilarVec(ctx context.Context, userID, datasetID string, queryVec []float32, topK int) ([]types.ScoredBelief, error) {
	where := "user_id = ?"
	args := []interface{}{encodeEmbedding(queryVec), userID}
	if datasetID != "" {
		where += " AND (dataset_id = '' OR dataset_id = ?)"
		args = append(args, datasetID)
	}
	args = append(args, topK)

	query := `SELECT ` + beliefColumns + `,
		vec_distance_cosine(embedding, ?) AS distance
		FROM beliefs
		WHERE ` + where + `
		ORDER BY distance ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query_similar", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var results []types.ScoredBelief
	for rows.Next() {
		var b types.Belief
		var blob []byte
		var createdAt string
		var distance float64
		if err := rows.Scan(&b.ID, &b.UserID, &b.DatasetID, &b.Text, &blob,
			&b.Source, &b.Confidence, &createdAt, &b.DecayRate, &distance); err != nil {
			return nil, unavailable("query_similar", err)
		}
		if b.CreatedAt, err = parseCreatedAt(createdAt); err != nil {
			logging.Get(logging.CategoryBelief).Warn("Skipping belief %s with bad timestamp: %v", b.ID, err)
			continue
		}
		if b.Embedding, err = decodeEmbedding(blob); err != nil {
			logging.Get(logging.CategoryBelief).Warn("Skipping belief %s with bad embedding: %v", b.ID, err)
			continue
		}
		// Cosine distance is 1 - similarity. Anti-similar beliefs carry no
		// recall value, so similarity is clamped to [0,1].
		sim := 1.0 - distance
		if sim < 0 {
			sim = 0
		}
		results = append(results, types.ScoredBelief{
			Belief:     b,
			Similarity: sim,
			Effective:  b.EffectiveConfidence(now),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query_similar", err)
	}
	logging.BeliefDebug("QuerySimilar (vec): user=%s dataset=%s returned %d of topK=%d",
		userID, datasetID, len(results), topK)
	return results, nil
}

// querySimilarScan ranks beliefs with an in-process cosine scan. Candidate
// sets are per-user, so the scan stays small in practice.
func (s *Store) querySimilarScan(ctx context.Context, userID, datasetID string, queryVec []float32, topK int) ([]types.ScoredBelief, error) {
	where := "user_id = ?"
	args := []interface{}{userID}
	if datasetID != "" {
		where += " AND (dataset_id = '' OR dataset_id = ?)"
		args = append(args, datasetID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE `+where, args...)
	if err != nil {
		return nil, unavailable("query_similar", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var results []types.ScoredBelief
	for rows.Next() {
		var b types.Belief
		var blob []byte
		var createdAt string
		if err := rows.Scan(&b.ID, &b.UserID, &b.DatasetID, &b.Text, &blob,
			&b.Source, &b.Confidence, &createdAt, &b.DecayRate); err != nil {
			return nil, unavailable("query_similar", err)
		}
		if b.CreatedAt, err = parseCreatedAt(createdAt); err != nil {
			logging.Get(logging.CategoryBelief).Warn("Skipping belief %s with bad timestamp: %v", b.ID, err)
			continue
		}
		if b.Embedding, err = decodeEmbedding(blob); err != nil {
			logging.Get(logging.CategoryBelief).Warn("Skipping belief %s with bad embedding: %v", b.ID, err)
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVec, b.Embedding)
		if err != nil {
			logging.Get(logging.CategoryBelief).Warn("Skipping belief %s: %v", b.ID, err)
			continue
		}
		if sim < 0 {
			sim = 0
		}
		results = append(results, types.ScoredBelief{
			Belief:     b,
			Similarity: sim,
			Effective:  b.EffectiveConfidence(now),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query_similar", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	logging.BeliefDebug("QuerySimilar (scan): user=%s dataset=%s returned %d of topK=%d",
		userID, datasetID, len(results), topK)
	return results, nil
}

// ComputeSurprisal scores how unfamiliar a vector is against the user's
// memory: 1 - max(similarity) over the topK nearest neighbors. An empty
// memory yields exactly 1.0. The neighbors are returned so callers can
// reuse them for confidence-weighted scoring without a second query.
func (s *Store) ComputeSurprisal(ctx context.Context, userID, datasetID string, vec []float32, topK int) (float64, []types.ScoredBelief, error) {
	neighbors, err := s.QuerySimilar(ctx, userID, datasetID, vec, topK)
	if err != nil {
		return 0, nil, err
	}
	if len(neighbors) == 0 {
		return 1.0, nil, nil
	}
	maxSim := 0.0
	for _, n := range neighbors {
		if n.Similarity > maxSim {
			maxSim = n.Similarity
		}
	}
	surprisal := 1.0 - maxSim
	if surprisal < 0 {
		surprisal = 0
	}
	logging.BeliefDebug("Surprisal for user %s: %.3f (max similarity %.3f over %d neighbors)",
		userID, surprisal, maxSim, len(neighbors))
	return surprisal, neighbors, nil
}

// QuerySimilarText embeds the text and returns the user's most similar
// beliefs, excluding any whose decayed confidence falls below minConfidence.
// minConfidence <= 0 disables the floor.
func (s *Store) QuerySimilarText(ctx context.Context, userID, datasetID, text string, topK int, minConfidence float64) ([]types.ScoredBelief, error) {
	vec, err := s.engine.Embed(ctx, text)
	if err != nil {
		return nil, unavailable("query_similar_text", err)
	}
	scored, err := s.QuerySimilar(ctx, userID, datasetID, vec, topK)
	if err != nil {
		return nil, err
	}
	if minConfidence <= 0 {
		return scored, nil
	}
	kept := scored[:0]
	for _, sb := range scored {
		if sb.Effective >= minConfidence {
			kept = append(kept, sb)
		}
	}
	return kept, nil
}

// RecallContext embeds a question and returns the user's most relevant
// beliefs as prompt-ready lines, strongest match first.
func (s *Store) RecallContext(ctx context.Context, userID, datasetID, text string, topK int) ([]string, error) {
	scored, err := s.QuerySimilarText(ctx, userID, datasetID, text, topK, 0)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(scored))
	for _, sb := range scored {
		lines = append(lines, fmt.Sprintf("%s (source: %s, confidence: %.2f)",
			sb.Text, sb.Source, sb.Effective))
	}
	return lines, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// DeleteBelief removes one belief. The user must own it.
func (s *Store) DeleteBelief(ctx context.Context, userID, beliefID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return unavailable("delete_belief", fmt.Errorf("store closed"))
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM beliefs WHERE id = ? AND user_id = ?`, beliefID, userID)
	if err != nil {
		return unavailable("delete_belief", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("belief %s not found for user %s", beliefID, userID)
	}
	logging.Belief("Deleted belief %s (user=%s)", beliefID, userID)
	logging.Audit().BeliefOp(logging.AuditBeliefDelete, userID, 1, true, "")
	return nil
}

// ClearUserBeliefs removes every belief the user owns and returns how many
// were deleted.
func (s *Store) ClearUserBeliefs(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, unavailable("clear_user_beliefs", fmt.Errorf("store closed"))
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM beliefs WHERE user_id = ?`, userID)
	if err != nil {
		return 0, unavailable("clear_user_beliefs", err)
	}
	n, _ := res.RowsAffected()
	logging.Belief("Cleared %d beliefs for user %s", n, userID)
	logging.Audit().BeliefOp(logging.AuditBeliefDelete, userID, int(n), true, "")
	return n, nil
}

// BeliefCount returns how many beliefs the user has stored.
func (s *Store) BeliefCount(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, unavailable("belief_count", fmt.Errorf("store closed"))
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM beliefs WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, unavailable("belief_count", err)
	}
	return n, nil
}

// ListBeliefs returns the user's beliefs newest first, without embeddings.
// A non-empty datasetID narrows to that dataset plus dataset-agnostic rows.
// limit <= 0 defaults to 50.
func (s *Store) ListBeliefs(ctx context.Context, userID, datasetID string, limit int) ([]types.Belief, error) {
	if limit <= 0 {
		limit = 50
	}
	where := "user_id = ?"
	args := []interface{}{userID}
	if datasetID != "" {
		where += " AND (dataset_id = '' OR dataset_id = ?)"
		args = append(args, datasetID)
	}
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, unavailable("list_beliefs", fmt.Errorf("store closed"))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, dataset_id, text, source, confidence, created_at, decay_rate
		FROM beliefs WHERE `+where+` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, unavailable("list_beliefs", err)
	}
	defer rows.Close()

	var beliefs []types.Belief
	for rows.Next() {
		var b types.Belief
		var createdAt string
		if err := rows.Scan(&b.ID, &b.UserID, &b.DatasetID, &b.Text,
			&b.Source, &b.Confidence, &createdAt, &b.DecayRate); err != nil {
			return nil, unavailable("list_beliefs", err)
		}
		if b.CreatedAt, err = parseCreatedAt(createdAt); err != nil {
			logging.Get(logging.CategoryBelief).Warn("Skipping belief %s with bad timestamp: %v", b.ID, err)
			continue
		}
		beliefs = append(beliefs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list_beliefs", err)
	}
	return beliefs, nil
}

// Stats returns store-wide counters for diagnostics.
func (s *Store) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, unavailable("stats", fmt.Errorf("store closed"))
	}

	stats := map[string]interface{}{
		"db_path":       s.dbPath,
		"vector_search": s.vectorExt,
		"engine":        s.engine.Name(),
		"dimensions":    s.engine.Dimensions(),
	}

	var total, users int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM beliefs`).Scan(&total); err != nil {
		return nil, unavailable("stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_id) FROM beliefs`).Scan(&users); err != nil {
		return nil, unavailable("stats", err)
	}
	stats["total_beliefs"] = total
	stats["unique_users"] = users

	bySource := make(map[string]int)
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM beliefs GROUP BY source`)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, unavailable("stats", err)
		}
		bySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("stats", err)
	}
	stats["beliefs_by_source"] = bySource

	return stats, nil
}

// parseCreatedAt parses the stored RFC3339 timestamp, tolerating rows
// written without sub-second precision.
func parseCreatedAt(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad created_at %q: %w", s, err)
	}
	return t.UTC(), nil
}
