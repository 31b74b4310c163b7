package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	"github.com/avetra/prospect/pkg/logger"
	"github.com/avetra/prospect/pkg/metrics"
)

// schema holds the single-table layout for locally stored nodes. Timestamps
// are RFC3339 text so the empty string sorts before every real attempt.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	node_id         TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	username        TEXT NOT NULL DEFAULT '',
	profile_url     TEXT NOT NULL DEFAULT '',
	profile_json    TEXT NOT NULL DEFAULT '',
	quality_score   INTEGER NOT NULL DEFAULT 0,
	meets_threshold INTEGER NOT NULL DEFAULT 0,
	api_scraped     INTEGER NOT NULL DEFAULT 0,
	scraped         INTEGER NOT NULL DEFAULT 0,
	error_code      TEXT NOT NULL DEFAULT '',
	last_attempt_at TEXT NOT NULL DEFAULT '',
	updated_at      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_nodes_candidates ON nodes(scraped, last_attempt_at);
CREATE INDEX IF NOT EXISTS idx_nodes_username ON nodes(username);
`

// SQLiteStore keeps nodes in a local SQLite database. It backs single-host
// deployments and the load generator, where no graph service is available.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, faults.Wrap(faults.KindPersistConnection, err, "open database")
	}
	// sqlite allows one writer; a single pooled connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, faults.Wrap(faults.KindPersistConnection, err, "create schema")
	}

	return &SQLiteStore{
		db:  db,
		log: logger.Get().Named("store"),
	}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, nodeID string) (node model.Node, err error) {
	start := time.Now()
	defer func() { observe("get", start, err) }()

	row := s.db.QueryRowContext(ctx, `
		SELECT node_id, user_id, username, profile_url, quality_score,
		       api_scraped, scraped, error_code, last_attempt_at, updated_at
		FROM nodes WHERE node_id = ?
	`, nodeID)

	var apiScraped, scraped int
	var lastAttempt, updated string
	err = row.Scan(&node.ID, &node.UserID, &node.Username, &node.ProfileURL,
		&node.QualityScore, &apiScraped, &scraped, &node.ErrorCode,
		&lastAttempt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Node{}, ErrNotFound
	}
	if err != nil {
		return model.Node{}, faults.Wrap(faults.PersistKindFromTransport(err), err, "query node")
	}

	node.APIScraped = apiScraped != 0
	node.Scraped = scraped != 0
	node.LastAttemptAt = parseStamp(lastAttempt)
	node.UpdatedAt = parseStamp(updated)
	return node, nil
}

// TouchAttempt implements Store.
func (s *SQLiteStore) TouchAttempt(ctx context.Context, nodeID string) (err error) {
	start := time.Now()
	defer func() { observe("touch", start, err) }()

	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET last_attempt_at = ? WHERE node_id = ?`,
		formatStamp(time.Now()), nodeID)
	if err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "touch node")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Save implements Store. When the score meets the threshold, the save is
// refused with a duplicate fault if another node already holds a scraped
// profile for the same username.
func (s *SQLiteStore) Save(ctx context.Context, nodeID string, profile model.Profile, score model.QualityScore) (err error) {
	start := time.Now()
	defer func() { observe("save", start, err) }()

	doc, err := json.Marshal(profile)
	if err != nil {
		return faults.Wrap(faults.KindPersistConnection, err, "encode profile")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "begin save")
	}
	defer func() { _ = tx.Rollback() }()

	if score.MeetsThreshold && profile.Username != "" {
		var other string
		scanErr := tx.QueryRowContext(ctx, `
			SELECT node_id FROM nodes
			WHERE username = ? AND node_id != ? AND scraped = 1
			LIMIT 1
		`, profile.Username, nodeID).Scan(&other)
		switch {
		case scanErr == nil:
			return faults.Newf(faults.KindPersistDuplicate,
				"username %q already scraped on node %s", profile.Username, other).WithNode(nodeID)
		case !errors.Is(scanErr, sql.ErrNoRows):
			return faults.Wrap(faults.PersistKindFromTransport(scanErr), scanErr, "check duplicates")
		}
	}

	now := formatStamp(time.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (node_id, username, profile_json, quality_score,
		                   meets_threshold, api_scraped, scraped, error_code,
		                   last_attempt_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, '', ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			username        = excluded.username,
			profile_json    = excluded.profile_json,
			quality_score   = excluded.quality_score,
			meets_threshold = excluded.meets_threshold,
			api_scraped     = 1,
			scraped         = excluded.scraped,
			error_code      = '',
			last_attempt_at = excluded.last_attempt_at,
			updated_at      = excluded.updated_at
	`, nodeID, profile.Username, string(doc), score.Overall,
		btoi(score.MeetsThreshold), btoi(score.MeetsThreshold), now, now)
	if err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "save node")
	}

	if err := tx.Commit(); err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "commit save")
	}
	return nil
}

// MarkError implements Store.
func (s *SQLiteStore) MarkError(ctx context.Context, nodeID string, f *faults.Fault) (err error) {
	start := time.Now()
	defer func() { observe("mark_error", start, err) }()

	code := string(faults.KindUnknown)
	if f != nil {
		code = string(f.Kind)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET error_code = ?, updated_at = ? WHERE node_id = ?`,
		code, formatStamp(time.Now()), nodeID)
	if err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "mark node")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store. Deleting an already-gone node is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, nodeID string) (err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	_, err = s.db.ExecContext(ctx, `DELETE FROM nodes WHERE node_id = ?`, nodeID)
	if err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "delete node")
	}
	return nil
}

// MergeDuplicates implements Store. Every other unscraped node carrying the
// same username is flagged scraped so candidate queries stop returning it.
func (s *SQLiteStore) MergeDuplicates(ctx context.Context, nodeID, username string) (n int, err error) {
	start := time.Now()
	defer func() { observe("merge", start, err) }()

	if username == "" {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET scraped = 1, api_scraped = 1, updated_at = ?
		WHERE username = ? AND node_id != ? AND scraped = 0
	`, formatStamp(time.Now()), username, nodeID)
	if err != nil {
		return 0, faults.Wrap(faults.PersistKindFromTransport(err), err, "merge duplicates")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, faults.Wrap(faults.KindPersistConnection, err, "merge duplicates")
	}
	return int(count), nil
}

// Candidates implements Store. Never-attempted nodes sort first because their
// attempt stamp is the empty string.
func (s *SQLiteStore) Candidates(ctx context.Context, limit int) (ids []model.Identifier, err error) {
	start := time.Now()
	defer func() { observe("candidates", start, err) }()

	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, user_id, username FROM nodes
		WHERE scraped = 0 AND error_code = ''
		ORDER BY last_attempt_at ASC, node_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, faults.Wrap(faults.PersistKindFromTransport(err), err, "query candidates")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id model.Identifier
		if err := rows.Scan(&id.NodeID, &id.UserID, &id.UsernameHint); err != nil {
			return nil, faults.Wrap(faults.KindPersistConnection, err, "scan candidate")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.KindPersistConnection, err, "iterate candidates")
	}
	return ids, nil
}

// Stats implements Store. Scraped, unscraped and errored partition the table.
func (s *SQLiteStore) Stats(ctx context.Context) (st Stats, err error) {
	start := time.Now()
	defer func() { observe("stats", start, err) }()

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN scraped = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN scraped = 0 AND error_code = '' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN scraped = 0 AND error_code != '' THEN 1 ELSE 0 END), 0)
		FROM nodes
	`)
	if err := row.Scan(&st.Total, &st.Scraped, &st.Unscraped, &st.Errored); err != nil {
		return Stats{}, faults.Wrap(faults.PersistKindFromTransport(err), err, "query stats")
	}
	return st, nil
}

// Seed inserts nodes wholesale, replacing existing rows. It exists for the
// load generator, the CLI and tests; the processing pipeline never calls it.
func (s *SQLiteStore) Seed(ctx context.Context, nodes []model.Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "begin seed")
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range nodes {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO nodes
				(node_id, user_id, username, profile_url, quality_score,
				 api_scraped, scraped, error_code, last_attempt_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, n.ID, n.UserID, n.Username, n.ProfileURL, n.QualityScore,
			btoi(n.APIScraped), btoi(n.Scraped), n.ErrorCode,
			formatStamp(n.LastAttemptAt), formatStamp(n.UpdatedAt))
		if err != nil {
			return faults.Wrap(faults.PersistKindFromTransport(err), err, "seed node")
		}
	}

	if err := tx.Commit(); err != nil {
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "commit seed")
	}
	s.log.Debug(ctx, "seeded nodes", logger.Int("count", len(nodes)))
	return nil
}

// observe records one repository operation outcome with its latency.
func observe(op string, start time.Time, err error) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Milliseconds()))
	switch {
	case err == nil:
		metrics.RecordRepositoryOp(op, "success")
	case errors.Is(err, ErrNotFound):
		metrics.RecordRepositoryOp(op, "not_found")
	case errors.Is(err, ErrInvalidLimit):
		metrics.RecordRepositoryOp(op, "invalid_limit")
	case faults.IsDuplicate(err):
		metrics.RecordRepositoryOp(op, "duplicate")
	default:
		metrics.RecordRepositoryOp(op, "query_error")
	}
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
