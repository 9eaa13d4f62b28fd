package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/studyloop/retrieval/internal/models"
	"github.com/studyloop/retrieval/internal/monitor"
)

// PgVectorConfig configures the relational backend.
type PgVectorConfig struct {
	// DSN is the postgres connection URL. Required.
	DSN string `yaml:"dsn"`
	// Table holds the documents; created on Initialize. Defaults to
	// "vector_documents".
	Table string `yaml:"table"`
	// IndexLists is the IVFFlat list count. Defaults to 100.
	IndexLists int `yaml:"index_lists"`
	// AllowDestructive gates Clear.
	AllowDestructive bool `yaml:"allow_destructive"`
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgVectorStore persists documents as rows with a fixed-width vector column
// indexed by an IVFFlat approximate-nearest-neighbor index tuned for the
// configured metric. Search is a single ranked SQL query with parameterized
// metadata predicates.
type PgVectorStore struct {
	base

	cfg  PgVectorConfig
	pool *pgxpool.Pool
}

// NewPgVectorStore validates the backend configuration. The connection is
// established in Initialize.
func NewPgVectorStore(cfg PgVectorConfig, logger *zap.Logger, mon *monitor.PerformanceMonitor) (*PgVectorStore, error) {
	if cfg.DSN == "" {
		return nil, validationf("pgvector: connection URL is required")
	}
	if cfg.Table == "" {
		cfg.Table = "vector_documents"
	}
	if !identPattern.MatchString(cfg.Table) {
		return nil, validationf("pgvector: invalid table name %q", cfg.Table)
	}
	if cfg.IndexLists <= 0 {
		cfg.IndexLists = 100
	}
	return &PgVectorStore{
		base: newBase("pgvector", logger, mon, cfg.AllowDestructive),
		cfg:  cfg,
	}, nil
}

// Initialize connects, ensures the pgvector extension, and creates the table
// and ANN index with the operator class matching the configured metric.
func (s *PgVectorStore) Initialize(ctx context.Context, cfg models.IndexConfig) (err error) {
	start := time.Now()
	defer func() { s.track("initialize", start, err) }()
	defer func() { err = providerErr(s.provider, "initialize", err) }()

	if err = cfg.Validate(); err != nil {
		return validationf("%v", err)
	}

	pool, err := pgxpool.New(ctx, s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping: %w", err)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding VECTOR(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			content TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.cfg.Table, cfg.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING ivfflat (embedding %s) WITH (lists = %d)`,
			s.cfg.Table, s.cfg.Table, operatorClass(cfg.Metric), s.cfg.IndexLists),
	}
	for _, stmt := range statements {
		if _, err = pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return fmt.Errorf("schema setup: %w", err)
		}
	}

	s.pool = pool
	s.markInitialized(cfg)
	s.logger.Info("pgvector store initialized",
		zap.String("table", s.cfg.Table),
		zap.Int("dimensions", cfg.Dimensions),
		zap.String("metric", string(cfg.Metric)))
	return nil
}

// operatorClass maps a metric to the ivfflat operator class.
func operatorClass(metric models.Metric) string {
	switch metric {
	case models.MetricEuclidean:
		return "vector_l2_ops"
	case models.MetricDotProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

// distanceOperator returns the pgvector distance operator for the metric.
func distanceOperator(metric models.Metric) string {
	switch metric {
	case models.MetricEuclidean:
		return "<->"
	case models.MetricDotProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

// scoreExpression converts the metric's distance to a similarity where higher
// is better: cosine similarity, inverse L2 distance, or raw inner product
// (pgvector's <#> is the negative inner product).
func scoreExpression(metric models.Metric) string {
	switch metric {
	case models.MetricEuclidean:
		return "1 / (1 + (embedding <-> $1::vector))"
	case models.MetricDotProduct:
		return "-(embedding <#> $1::vector)"
	default:
		return "1 - (embedding <=> $1::vector)"
	}
}

// Upsert inserts or replaces one document.
func (s *PgVectorStore) Upsert(ctx context.Context, doc models.VectorDocument) (err error) {
	start := time.Now()
	defer func() { s.track("upsert", start, err) }()
	defer func() { err = providerErr(s.provider, "upsert", err) }()

	if err = s.requireInitialized(); err != nil {
		return err
	}
	if err = s.validateVector(doc.Vector); err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	_, err = s.pool.Exec(ctx, s.upsertSQL(), doc.ID, encodeVector(doc.Vector), doc.Metadata, doc.Content)
	return err
}

func (s *PgVectorStore) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (id, embedding, metadata, content, updated_at)
		VALUES ($1, $2::vector, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			content = EXCLUDED.content,
			updated_at = now()`, s.cfg.Table)
}

// UpsertBatch chunks input and issues one pipelined batch per chunk. A chunk
// failure is recorded and the remaining chunks still run.
func (s *PgVectorStore) UpsertBatch(ctx context.Context, docs []models.VectorDocument) (result models.BatchResult, err error) {
	start := time.Now()
	defer func() { s.track("upsert_batch", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return result, err
	}

	sql := s.upsertSQL()
	for batchIdx, chunk := range chunkDocuments(docs, DefaultBatchSize) {
		batch := &pgx.Batch{}
		valid := make([]models.VectorDocument, 0, len(chunk))
		for _, doc := range chunk {
			if vErr := s.validateVector(doc.Vector); vErr != nil {
				result.Failed++
				result.Errors = append(result.Errors, models.BatchError{
					ID: doc.ID, Batch: batchIdx, Err: vErr.Error(),
				})
				continue
			}
			if doc.ID == "" {
				doc.ID = uuid.NewString()
			}
			valid = append(valid, doc)
			batch.Queue(sql, doc.ID, encodeVector(doc.Vector), doc.Metadata, doc.Content)
		}
		if batch.Len() == 0 {
			continue
		}

		br := s.pool.SendBatch(ctx, batch)
		for _, doc := range valid {
			if _, execErr := br.Exec(); execErr != nil {
				result.Failed++
				result.Errors = append(result.Errors, models.BatchError{
					ID: doc.ID, Batch: batchIdx, Err: execErr.Error(),
				})
				continue
			}
			result.Successful++
		}
		if closeErr := br.Close(); closeErr != nil {
			s.logger.Warn("batch close failed",
				zap.Int("batch", batchIdx), zap.Error(closeErr))
		}
	}
	return result, nil
}

// Search issues a single ranked query: rows ordered by vector distance,
// optionally filtered by metadata predicates and a similarity threshold
// applied inside the query.
func (s *PgVectorStore) Search(ctx context.Context, vector []float32, opts models.SearchOptions) (results []models.SearchResult, err error) {
	start := time.Now()
	defer func() { s.track("search", start, err) }()
	defer func() { err = providerErr(s.provider, "search", err) }()

	if err = s.requireInitialized(); err != nil {
		return nil, err
	}
	if err = s.validateVector(vector); err != nil {
		return nil, err
	}
	opts.Normalize()
	predicates, err := ParseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	scoreExpr := scoreExpression(s.config.Metric)
	columns := fmt.Sprintf("id, %s AS score, content", scoreExpr)
	if opts.IncludeMetadata {
		columns += ", metadata"
	}
	if opts.IncludeVector {
		columns += ", embedding::text"
	}

	args := []interface{}{encodeVector(vector)}
	var conditions []string
	for _, p := range predicates {
		clause, clauseArgs, cErr := predicateSQL(p, len(args)+1)
		if cErr != nil {
			return nil, cErr
		}
		conditions = append(conditions, clause)
		args = append(args, clauseArgs...)
	}
	if opts.Threshold > 0 {
		conditions = append(conditions, fmt.Sprintf("%s >= $%d", scoreExpr, len(args)+1))
		args = append(args, opts.Threshold)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", columns, s.cfg.Table)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY embedding %s $1::vector LIMIT %d",
		distanceOperator(s.config.Metric), opts.TopK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r models.SearchResult
		var content *string
		var embeddingText *string
		dest := []interface{}{&r.ID, &r.Score, &content}
		if opts.IncludeMetadata {
			dest = append(dest, &r.Metadata)
		}
		if opts.IncludeVector {
			dest = append(dest, &embeddingText)
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, err
		}
		if content != nil {
			r.Content = *content
		}
		if embeddingText != nil {
			if r.Vector, err = decodeVector(*embeddingText); err != nil {
				return nil, err
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// predicateSQL translates one predicate into a parameterized clause over the
// JSONB metadata column. Numeric operands are compared with a numeric cast;
// everything else as text.
func predicateSQL(p Predicate, argIdx int) (string, []interface{}, error) {
	field := p.Field
	if !identPattern.MatchString(field) {
		return "", nil, validationf("filter field %q is not a valid identifier", field)
	}
	textExpr := fmt.Sprintf("metadata->>'%s'", field)
	numExpr := fmt.Sprintf("(metadata->>'%s')::numeric", field)

	switch p.Op {
	case OpEq:
		if n, ok := toFloat(p.Value); ok {
			return fmt.Sprintf("%s = $%d", numExpr, argIdx), []interface{}{n}, nil
		}
		return fmt.Sprintf("%s = $%d", textExpr, argIdx), []interface{}{fmt.Sprintf("%v", p.Value)}, nil
	case OpIn:
		if _, numeric := toFloat(p.Values[0]); numeric {
			nums := make([]float64, 0, len(p.Values))
			for _, v := range p.Values {
				n, ok := toFloat(v)
				if !ok {
					return "", nil, validationf("filter %s $in mixes numeric and non-numeric values", field)
				}
				nums = append(nums, n)
			}
			return fmt.Sprintf("%s = ANY($%d)", numExpr, argIdx), []interface{}{nums}, nil
		}
		texts := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			texts = append(texts, fmt.Sprintf("%v", v))
		}
		return fmt.Sprintf("%s = ANY($%d)", textExpr, argIdx), []interface{}{texts}, nil
	case OpGt, OpGte, OpLt, OpLte:
		n, ok := toFloat(p.Value)
		if !ok {
			return "", nil, validationf("filter %s %s requires a numeric operand", field, p.Op)
		}
		op := map[PredicateOp]string{OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}[p.Op]
		return fmt.Sprintf("%s %s $%d", numExpr, op, argIdx), []interface{}{n}, nil
	}
	return "", nil, validationf("unsupported filter operator %s", p.Op)
}

// SearchMulti fans Search out per query vector.
func (s *PgVectorStore) SearchMulti(ctx context.Context, vectors [][]float32, opts models.SearchOptions) ([][]models.SearchResult, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	return searchMulti(ctx, s, vectors, opts)
}

// Delete removes documents by id.
func (s *PgVectorStore) Delete(ctx context.Context, ids []string) (result models.BatchResult, err error) {
	start := time.Now()
	defer func() { s.track("delete", start, err) }()
	defer func() { err = providerErr(s.provider, "delete", err) }()

	if err = s.requireInitialized(); err != nil {
		return result, err
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.cfg.Table), ids)
	if err != nil {
		return result, err
	}
	result.Successful = int(tag.RowsAffected())
	result.Failed = len(ids) - result.Successful
	return result, nil
}

// DeleteByFilter removes rows matching the metadata predicates.
func (s *PgVectorStore) DeleteByFilter(ctx context.Context, filter map[string]interface{}) (count int64, err error) {
	start := time.Now()
	defer func() { s.track("delete_by_filter", start, err) }()
	defer func() { err = providerErr(s.provider, "delete_by_filter", err) }()

	if err = s.requireInitialized(); err != nil {
		return 0, err
	}
	predicates, err := ParseFilter(filter)
	if err != nil {
		return 0, err
	}
	if len(predicates) == 0 {
		return 0, validationf("delete by filter requires a non-empty filter")
	}
	var conditions []string
	var args []interface{}
	for _, p := range predicates {
		clause, clauseArgs, cErr := predicateSQL(p, len(args)+1)
		if cErr != nil {
			return 0, cErr
		}
		conditions = append(conditions, clause)
		args = append(args, clauseArgs...)
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s", s.cfg.Table, strings.Join(conditions, " AND ")), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Get fetches documents by id; missing ids are skipped.
func (s *PgVectorStore) Get(ctx context.Context, ids []string) (docs []models.VectorDocument, err error) {
	start := time.Now()
	defer func() { s.track("get", start, err) }()
	defer func() { err = providerErr(s.provider, "get", err) }()

	if err = s.requireInitialized(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT id, embedding::text, metadata, content FROM %s WHERE id = ANY($1)", s.cfg.Table), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var doc models.VectorDocument
		var embeddingText string
		var content *string
		if err = rows.Scan(&doc.ID, &embeddingText, &doc.Metadata, &content); err != nil {
			return nil, err
		}
		if doc.Vector, err = decodeVector(embeddingText); err != nil {
			return nil, err
		}
		if content != nil {
			doc.Content = *content
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateMetadata replaces a document's metadata.
func (s *PgVectorStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) (err error) {
	start := time.Now()
	defer func() { s.track("update_metadata", start, err) }()
	defer func() { err = providerErr(s.provider, "update_metadata", err) }()

	if err = s.requireInitialized(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET metadata = $2, updated_at = now() WHERE id = $1", s.cfg.Table),
		id, metadata)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return validationf("document %q not found", id)
	}
	return nil
}

// Stats reports row count, dimensions, and on-disk size.
func (s *PgVectorStore) Stats(ctx context.Context) (stats models.StoreStats, err error) {
	defer func() { err = providerErr(s.provider, "stats", err) }()

	if err = s.requireInitialized(); err != nil {
		return stats, err
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT count(*), pg_total_relation_size('%s') FROM %s", s.cfg.Table, s.cfg.Table))
	if err = row.Scan(&stats.TotalVectors, &stats.IndexSize); err != nil {
		return stats, err
	}
	stats.Dimensions = s.config.Dimensions
	stats.Capabilities = []string{"upsert", "search", "filter", "delete", "metadata", "ann"}
	return stats, nil
}

// HealthCheck pings the pool.
func (s *PgVectorStore) HealthCheck(ctx context.Context) (bool, error) {
	if err := s.requireInitialized(); err != nil {
		return false, err
	}
	if err := s.pool.Ping(ctx); err != nil {
		return false, providerErr(s.provider, "health_check", err)
	}
	return true, nil
}

// Clear truncates the table. Refused unless destructive ops are allowed.
func (s *PgVectorStore) Clear(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.track("clear", start, err) }()
	defer func() { err = providerErr(s.provider, "clear", err) }()

	if err = s.requireInitialized(); err != nil {
		return err
	}
	if !s.allowDestructive {
		return ErrDestructiveDisabled
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", s.cfg.Table))
	return err
}

// Close releases the connection pool.
func (s *PgVectorStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

// encodeVector renders a float slice in pgvector's text format.
func encodeVector(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// decodeVector parses pgvector's text format back into a float slice.
func decodeVector(text string) ([]float32, error) {
	trimmed := strings.Trim(strings.TrimSpace(text), "[]")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
