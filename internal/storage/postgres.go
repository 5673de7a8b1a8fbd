package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/campuswatch/internal/config"
	"github.com/your-org/campuswatch/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Identities ---

func (s *PostgresStore) CreateIdentity(ctx context.Context, name string, role models.Role) (*models.Identity, error) {
	id := &models.Identity{
		ID:   uuid.New(),
		Name: name,
		Role: role,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, name, role) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		id.ID, id.Name, id.Role,
	).Scan(&id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, role, created_at, updated_at FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Name, &ident.Role, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, role, created_at, updated_at FROM identities ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var ident models.Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.Role, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	return identities, nil
}

func (s *PostgresStore) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity not found")
	}
	return nil
}

// --- Face embeddings ---

// SaveEmbedding upserts the single active embedding for an identity.
// Re-enrollment replaces the row; the table holds at most one per identity.
func (s *PostgresStore) SaveEmbedding(ctx context.Context, identityID uuid.UUID, embedding []float32, photoKey string) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO face_embeddings (identity_id, embedding, photo_key, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (identity_id) DO UPDATE
		 SET embedding = EXCLUDED.embedding, photo_key = EXCLUDED.photo_key, updated_at = now()`,
		identityID, vec, photoKey)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteEmbedding(ctx context.Context, identityID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM face_embeddings WHERE identity_id = $1`, identityID)
	if err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// LoadAllEmbeddings returns every enrolled embedding ordered by enrollment
// time. That order is the gallery iteration order, and therefore the match
// tie-break order, so it must stay deterministic.
func (s *PostgresStore) LoadAllEmbeddings(ctx context.Context) ([]models.IdentityEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT identity_id, embedding, photo_key, updated_at FROM face_embeddings ORDER BY updated_at, identity_id`)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var records []models.IdentityEmbedding
	for rows.Next() {
		var rec models.IdentityEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&rec.IdentityID, &vec, &rec.PhotoKey, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		rec.Embedding = vec.Slice()
		records = append(records, rec)
	}
	return records, nil
}

func (s *PostgresStore) CountEmbeddings(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM face_embeddings`).Scan(&count)
	return count, err
}

// SearchIdentitiesByEmbedding ranks enrolled identities by Euclidean distance
// to the probe, SQL-side. This is the review surface ("who does this face
// resemble"), not the acceptance decision; no threshold applies here.
func (s *PostgresStore) SearchIdentitiesByEmbedding(ctx context.Context, probe []float32, limit int) ([]models.IdentityCandidate, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	vec := pgvector.NewVector(probe)
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.name, i.role, i.created_at, i.updated_at, e.embedding <-> $1 AS distance
		 FROM face_embeddings e JOIN identities i ON i.id = e.identity_id
		 ORDER BY e.embedding <-> $1 LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	defer rows.Close()

	var candidates []models.IdentityCandidate
	for rows.Next() {
		var c models.IdentityCandidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Role, &c.CreatedAt, &c.UpdatedAt, &c.Distance); err != nil {
			return nil, fmt.Errorf("scan identity candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// --- Presence events ---

func (s *PostgresStore) AppendPresenceEvent(ctx context.Context, ev *models.PresenceEvent) error {
	ev.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO presence_events (id, identity_id, direction, verification_method, location, timestamp, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.IdentityID, ev.Direction, ev.VerificationMethod, ev.Location, ev.Timestamp, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append presence event: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadLastEvent(ctx context.Context, identityID uuid.UUID) (*models.PresenceEvent, error) {
	ev := &models.PresenceEvent{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, identity_id, direction, verification_method, location, timestamp, created_at
		 FROM presence_events WHERE identity_id = $1 ORDER BY timestamp DESC LIMIT 1`, identityID,
	).Scan(&ev.ID, &ev.IdentityID, &ev.Direction, &ev.VerificationMethod, &ev.Location, &ev.Timestamp, &ev.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load last event: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) PresenceHistory(ctx context.Context, identityID uuid.UUID, since time.Time, limit int) ([]models.PresenceEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, direction, verification_method, location, timestamp, created_at
		 FROM presence_events WHERE identity_id = $1 AND timestamp >= $2
		 ORDER BY timestamp DESC LIMIT $3`,
		identityID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("presence history: %w", err)
	}
	defer rows.Close()
	return scanPresenceEvents(rows)
}

// RecentPresence returns the latest gate activity across all identities, for
// the security dashboard feed.
func (s *PostgresStore) RecentPresence(ctx context.Context, limit int) ([]models.PresenceEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, direction, verification_method, location, timestamp, created_at
		 FROM presence_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent presence: %w", err)
	}
	defer rows.Close()
	return scanPresenceEvents(rows)
}

func scanPresenceEvents(rows pgx.Rows) ([]models.PresenceEvent, error) {
	var events []models.PresenceEvent
	for rows.Next() {
		var ev models.PresenceEvent
		if err := rows.Scan(&ev.ID, &ev.IdentityID, &ev.Direction, &ev.VerificationMethod,
			&ev.Location, &ev.Timestamp, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan presence event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// --- Emotion observations ---

// SaveEmotionObservation attaches an emotion reading to a presence event.
// At most one per event; a second reading for the same event is dropped.
func (s *PostgresStore) SaveEmotionObservation(ctx context.Context, obs *models.EmotionObservation) error {
	obs.ID = uuid.New()
	obs.CreatedAt = time.Now().UTC()
	if obs.Scores == nil {
		obs.Scores = json.RawMessage("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO emotion_observations (id, event_id, identity_id, dominant_emotion, scores, confidence, age, gender, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (event_id) DO NOTHING`,
		obs.ID, obs.EventID, obs.IdentityID, obs.DominantEmotion, obs.Scores,
		obs.Confidence, obs.Age, obs.Gender, obs.CreatedAt)
	if err != nil {
		return fmt.Errorf("save emotion observation: %w", err)
	}
	return nil
}

func (s *PostgresStore) EmotionHistory(ctx context.Context, identityID uuid.UUID, since time.Time) ([]models.EmotionObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, identity_id, dominant_emotion, scores, confidence, age, gender, created_at
		 FROM emotion_observations WHERE identity_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC`, identityID, since)
	if err != nil {
		return nil, fmt.Errorf("emotion history: %w", err)
	}
	defer rows.Close()

	var observations []models.EmotionObservation
	for rows.Next() {
		var obs models.EmotionObservation
		if err := rows.Scan(&obs.ID, &obs.EventID, &obs.IdentityID, &obs.DominantEmotion,
			&obs.Scores, &obs.Confidence, &obs.Age, &obs.Gender, &obs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan emotion observation: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// --- Visitor records ---

func (s *PostgresStore) SaveVisitorRecord(ctx context.Context, v *models.VisitorRecord) error {
	var vec *pgvector.Vector
	if len(v.Embedding) > 0 {
		pv := pgvector.NewVector(v.Embedding)
		vec = &pv
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO visitor_records (id, name, reason, phone, organization, host_name, photo_key, embedding,
		                              entry_time, exit_time, status, is_returning, previous_visit_count, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID, v.Name, v.Reason, v.Phone, v.Organization, v.HostName, v.PhotoKey, vec,
		v.EntryTime, v.ExitTime, v.Status, v.IsReturning, v.PreviousVisitCount, v.CreatedBy)
	if err != nil {
		return fmt.Errorf("save visitor record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVisitorRecord(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error) {
	v := &models.VisitorRecord{}
	var vec *pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, reason, phone, organization, host_name, photo_key, embedding,
		        entry_time, exit_time, status, is_returning, previous_visit_count, created_by
		 FROM visitor_records WHERE id = $1`, id,
	).Scan(&v.ID, &v.Name, &v.Reason, &v.Phone, &v.Organization, &v.HostName, &v.PhotoKey, &vec,
		&v.EntryTime, &v.ExitTime, &v.Status, &v.IsReturning, &v.PreviousVisitCount, &v.CreatedBy)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get visitor record: %w", err)
	}
	if vec != nil {
		v.Embedding = vec.Slice()
	}
	return v, nil
}

// MarkVisitorExit sets the exit timestamp and flips status to OUT in one
// statement, and only for a record still IN.
func (s *PostgresStore) MarkVisitorExit(ctx context.Context, id uuid.UUID, exitTime time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE visitor_records SET exit_time = $1, status = $2 WHERE id = $3 AND status = $4`,
		exitTime, models.VisitorOut, id, models.VisitorIn)
	if err != nil {
		return fmt.Errorf("mark visitor exit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("visitor not checked in")
	}
	return nil
}

// LoadVisitorEmbeddings returns visitor records carrying an embedding,
// newest first. The gallery tie-breaks equal distances to the first entry
// seen, and for repeat visitors the newest record is the head of the visit
// chain, so it must come first.
func (s *PostgresStore) LoadVisitorEmbeddings(ctx context.Context) ([]models.VisitorRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, embedding, previous_visit_count
		 FROM visitor_records WHERE embedding IS NOT NULL ORDER BY entry_time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("load visitor embeddings: %w", err)
	}
	defer rows.Close()

	var records []models.VisitorRecord
	for rows.Next() {
		var v models.VisitorRecord
		var vec pgvector.Vector
		if err := rows.Scan(&v.ID, &v.Name, &vec, &v.PreviousVisitCount); err != nil {
			return nil, fmt.Errorf("scan visitor embedding: %w", err)
		}
		v.Embedding = vec.Slice()
		records = append(records, v)
	}
	return records, nil
}

func (s *PostgresStore) ActiveVisitors(ctx context.Context) ([]models.VisitorRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, reason, phone, organization, host_name, photo_key,
		        entry_time, exit_time, status, is_returning, previous_visit_count, created_by
		 FROM visitor_records WHERE status = $1 ORDER BY entry_time DESC`, models.VisitorIn)
	if err != nil {
		return nil, fmt.Errorf("active visitors: %w", err)
	}
	defer rows.Close()
	return scanVisitorRecords(rows)
}

func (s *PostgresStore) VisitorHistory(ctx context.Context, since time.Time) ([]models.VisitorRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, reason, phone, organization, host_name, photo_key,
		        entry_time, exit_time, status, is_returning, previous_visit_count, created_by
		 FROM visitor_records WHERE entry_time >= $1 ORDER BY entry_time DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("visitor history: %w", err)
	}
	defer rows.Close()
	return scanVisitorRecords(rows)
}

func (s *PostgresStore) SearchVisitors(ctx context.Context, query string, limit int) ([]models.VisitorRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, reason, phone, organization, host_name, photo_key,
		        entry_time, exit_time, status, is_returning, previous_visit_count, created_by
		 FROM visitor_records WHERE name ILIKE '%' || $1 || '%'
		 ORDER BY entry_time DESC LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search visitors: %w", err)
	}
	defer rows.Close()
	return scanVisitorRecords(rows)
}

func scanVisitorRecords(rows pgx.Rows) ([]models.VisitorRecord, error) {
	var records []models.VisitorRecord
	for rows.Next() {
		var v models.VisitorRecord
		if err := rows.Scan(&v.ID, &v.Name, &v.Reason, &v.Phone, &v.Organization, &v.HostName, &v.PhotoKey,
			&v.EntryTime, &v.ExitTime, &v.Status, &v.IsReturning, &v.PreviousVisitCount, &v.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan visitor record: %w", err)
		}
		records = append(records, v)
	}
	return records, nil
}

func (s *PostgresStore) VisitorStats(ctx context.Context, since time.Time) (*models.VisitorStats, error) {
	stats := &models.VisitorStats{}
	todayStart := time.Now().UTC().Truncate(24 * time.Hour)

	err := s.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE entry_time >= $1),
		   COUNT(*) FILTER (WHERE status = $2),
		   COUNT(*) FILTER (WHERE entry_time >= $1 AND is_returning),
		   COUNT(*) FILTER (WHERE entry_time >= $3)
		 FROM visitor_records`,
		since, models.VisitorIn, todayStart,
	).Scan(&stats.TotalVisitors, &stats.ActiveVisitors, &stats.ReturningVisitors, &stats.TodayVisitors)
	if err != nil {
		return nil, fmt.Errorf("visitor stats: %w", err)
	}
	return stats, nil
}
