// Package feedback records query/expand events and turns them into
// time-decayed scores used to rank (never to select under budget) handles
// returned by the query engine and the client runtime.
package feedback

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/canopy-project/canopy/internal/document"
)

const (
	retentionDays   = 30
	queryEventsCap  = 10_000
	expandEventsCap = 50_000
	topKGlobs       = 5
)

// Store is a per-repo SQLite-backed log of query/expand events, guarded by
// a single process-wide mutex: these writes are low-frequency and never on
// the hot path, so a dedicated connection pool isn't worth the complexity.
// A panic during a locked operation is recovered, logged, and treated as a
// no-op rather than left to crash the caller — feedback recording is a
// ranking signal, not a correctness dependency.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// storeMu guards every Store in the process.
var storeMu sync.Mutex

// QueryEvent is one recorded query call.
type QueryEvent struct {
	QueryText       string
	PredictedGlobs  []string
	FilesIndexed    int
	HandlesReturned int
	TotalTokens     int
}

// QueryHandle is one handle returned by a recorded query, associated with
// the query event it came from.
type QueryHandle struct {
	HandleID       document.HandleID
	FilePath       string
	NodeType       document.NodeType
	TokenCount     int
	FirstMatchGlob string
}

// ExpandEvent is one recorded expand call, optionally tied back to the
// query event that produced the handle.
type ExpandEvent struct {
	QueryEventID *int64
	HandleID     document.HandleID
	FilePath     string
	NodeType     document.NodeType
	TokenCount   int
	AutoExpanded bool
}

// Metrics summarizes feedback-store activity over a lookback window.
type Metrics struct {
	GlobHitRateAtK         float64
	HandleExpandAcceptRate float64
	AvgTokensPerExpand     float64
	SampleCount            int
}

// Open opens (creating if necessary) the feedback store at
// "<repoRoot>/.canopy/feedback.db" and prunes expired rows.
func Open(repoRoot string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Join(repoRoot, ".canopy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feedback store directory: %w", err)
	}
	path := filepath.Join(dir, "feedback.db")

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open feedback database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply feedback schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	s.withLock(func() error { return s.prune() })
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withLock runs fn under the process-wide store mutex, recovering any panic
// into a logged no-op rather than propagating it to the caller.
func (s *Store) withLock(fn func() error) {
	storeMu.Lock()
	defer storeMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("feedback store operation panicked; skipping", "panic", r)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("feedback store operation failed", "error", err)
	}
}

// RecordQuery persists a query event and the handles it returned, returning
// the event's row ID so a later expand can be tied back to it. Failures are
// logged and swallowed; feedback recording never fails a query.
func (s *Store) RecordQuery(event QueryEvent, handles []QueryHandle) int64 {
	var id int64
	s.withLock(func() error {
		var predictedGlobs any
		if len(event.PredictedGlobs) > 0 {
			b, err := json.Marshal(event.PredictedGlobs)
			if err != nil {
				return err
			}
			predictedGlobs = string(b)
		}

		now := time.Now().Unix()
		res, err := s.db.Exec(
			`INSERT INTO query_events (timestamp, query_text, predicted_globs, files_indexed, handles_returned, total_tokens)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			now, event.QueryText, predictedGlobs, event.FilesIndexed, event.HandlesReturned, event.TotalTokens,
		)
		if err != nil {
			return fmt.Errorf("insert query_event: %w", err)
		}
		eventID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = eventID

		if len(handles) == 0 {
			return nil
		}

		stmt, err := s.db.Prepare(
			`INSERT INTO query_handles
			 (query_event_id, handle_id, file_path, node_type, token_count, first_match_glob, returned_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, h := range handles {
			var glob any
			if h.FirstMatchGlob != "" {
				glob = h.FirstMatchGlob
			}
			if _, err := stmt.Exec(eventID, string(h.HandleID), h.FilePath, int(h.NodeType), h.TokenCount, glob, now); err != nil {
				return fmt.Errorf("insert query_handle: %w", err)
			}
		}
		return nil
	})
	return id
}

// RecordExpand persists one expand event.
func (s *Store) RecordExpand(event ExpandEvent) {
	s.withLock(func() error {
		var queryEventID any
		if event.QueryEventID != nil {
			queryEventID = *event.QueryEventID
		}
		autoExpanded := 0
		if event.AutoExpanded {
			autoExpanded = 1
		}
		_, err := s.db.Exec(
			`INSERT INTO expand_events (query_event_id, handle_id, file_path, node_type, token_count, auto_expanded, expanded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			queryEventID, string(event.HandleID), event.FilePath, int(event.NodeType), event.TokenCount, autoExpanded, time.Now().Unix(),
		)
		return err
	})
}

// GlobScores returns, for each of globs, the exponentially time-decayed
// expand-acceptance rate: the decayed count of expands over the decayed
// count of returns, using halfLifeDays as the decay constant. Globs with no
// recorded activity are omitted rather than scored zero.
func (s *Store) GlobScores(globs []string, halfLifeDays float64) map[string]float64 {
	scores := make(map[string]float64)
	if len(globs) == 0 {
		return scores
	}

	s.withLock(func() error {
		halfLifeSecs := math.Max(halfLifeDays*86400.0, 1.0)
		now := time.Now().Unix()

		stmt, err := s.db.Prepare(
			`SELECT qe.timestamp,
			        CASE WHEN EXISTS (
			            SELECT 1 FROM expand_events ee
			            WHERE ee.query_event_id = qh.query_event_id AND ee.handle_id = qh.handle_id
			        ) THEN 1 ELSE 0 END AS expanded
			 FROM query_handles qh
			 JOIN query_events qe ON qe.id = qh.query_event_id
			 WHERE qh.first_match_glob = ?`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, glob := range globs {
			rows, err := stmt.Query(glob)
			if err != nil {
				return err
			}

			var returnedWeight, expandedWeight float64
			for rows.Next() {
				var ts int64
				var expanded int
				if err := rows.Scan(&ts, &expanded); err != nil {
					rows.Close()
					return err
				}
				ageSecs := float64(now - ts)
				if ageSecs < 0 {
					ageSecs = 0
				}
				decay := math.Exp(-ageSecs * math.Ln2 / halfLifeSecs)
				returnedWeight += decay
				if expanded > 0 {
					expandedWeight += decay
				}
			}
			rows.Close()

			if returnedWeight > 0 {
				scores[glob] = expandedWeight / returnedWeight
			}
		}
		return nil
	})
	return scores
}

// RecentGlobs returns up to limit distinct globs that have appeared as a
// query's first_match_glob, most-recently-seen first. Used by the service
// layer to pick which globs to score for the /metrics evidence block.
func (s *Store) RecentGlobs(limit int) []string {
	var globs []string
	if limit <= 0 {
		limit = topKGlobs
	}

	s.withLock(func() error {
		rows, err := s.db.Query(
			`SELECT first_match_glob, MAX(returned_at) AS last_seen
			 FROM query_handles
			 WHERE first_match_glob IS NOT NULL
			 GROUP BY first_match_glob
			 ORDER BY last_seen DESC
			 LIMIT ?`, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var glob string
			var lastSeen int64
			if err := rows.Scan(&glob, &lastSeen); err != nil {
				return err
			}
			globs = append(globs, glob)
		}
		return rows.Err()
	})
	return globs
}

// NodeTypePriors returns, for each node type that has ever been returned,
// the fraction of returned handles of that type that were subsequently
// expanded.
func (s *Store) NodeTypePriors() map[document.NodeType]float64 {
	priors := make(map[document.NodeType]float64)

	s.withLock(func() error {
		rows, err := s.db.Query(
			`SELECT qh.node_type,
			        COUNT(*) AS returned_count,
			        SUM(CASE WHEN EXISTS (
			            SELECT 1 FROM expand_events ee
			            WHERE ee.query_event_id = qh.query_event_id AND ee.handle_id = qh.handle_id
			        ) THEN 1 ELSE 0 END) AS expanded_count
			 FROM query_handles qh
			 GROUP BY qh.node_type`,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var nodeType, returned, expanded int64
			if err := rows.Scan(&nodeType, &returned, &expanded); err != nil {
				return err
			}
			if returned <= 0 {
				continue
			}
			priors[document.NodeType(nodeType)] = float64(expanded) / float64(returned)
		}
		return rows.Err()
	})
	return priors
}

// ComputeMetrics summarizes activity over the last lookbackDays.
func (s *Store) ComputeMetrics(lookbackDays float64) Metrics {
	var m Metrics

	s.withLock(func() error {
		if lookbackDays < 0 {
			lookbackDays = 0
		}
		cutoff := time.Now().Unix() - int64(lookbackDays*86400.0)

		if err := s.db.QueryRow(`SELECT COUNT(*) FROM query_events WHERE timestamp >= ?`, cutoff).Scan(&m.SampleCount); err != nil {
			return err
		}

		var returnedCount, expandedCount int64
		row := s.db.QueryRow(
			`SELECT COUNT(*),
			        COALESCE(SUM(CASE WHEN EXISTS (
			            SELECT 1 FROM expand_events ee
			            WHERE ee.query_event_id = qh.query_event_id AND ee.handle_id = qh.handle_id
			        ) THEN 1 ELSE 0 END), 0)
			 FROM query_handles qh
			 JOIN query_events qe ON qe.id = qh.query_event_id
			 WHERE qe.timestamp >= ?`,
			cutoff,
		)
		if err := row.Scan(&returnedCount, &expandedCount); err != nil {
			return err
		}
		if returnedCount > 0 {
			m.HandleExpandAcceptRate = float64(expandedCount) / float64(returnedCount)
		}

		var avgTokens sql.NullFloat64
		if err := s.db.QueryRow(`SELECT AVG(token_count) FROM expand_events WHERE expanded_at >= ?`, cutoff).Scan(&avgTokens); err != nil {
			return err
		}
		m.AvgTokensPerExpand = avgTokens.Float64

		hitRate, err := s.globHitRateAtK(cutoff)
		if err != nil {
			return err
		}
		m.GlobHitRateAtK = hitRate
		return nil
	})
	return m
}

func (s *Store) globHitRateAtK(cutoff int64) (float64, error) {
	eventRows, err := s.db.Query(
		`SELECT id, predicted_globs FROM query_events WHERE timestamp >= ? AND predicted_globs IS NOT NULL`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	defer eventRows.Close()

	hitStmt, err := s.db.Prepare(
		`SELECT 1 FROM query_handles qh
		 WHERE qh.query_event_id = ? AND qh.first_match_glob = ?
		   AND EXISTS (
		       SELECT 1 FROM expand_events ee
		       WHERE ee.query_event_id = qh.query_event_id AND ee.handle_id = qh.handle_id
		   )
		 LIMIT 1`,
	)
	if err != nil {
		return 0, err
	}
	defer hitStmt.Close()

	var denominator, hits int
	for eventRows.Next() {
		var eventID int64
		var predictedGlobsJSON string
		if err := eventRows.Scan(&eventID, &predictedGlobsJSON); err != nil {
			return 0, err
		}
		var globs []string
		if err := json.Unmarshal([]byte(predictedGlobsJSON), &globs); err != nil {
			continue
		}
		if len(globs) > topKGlobs {
			globs = globs[:topKGlobs]
		}
		for _, glob := range globs {
			denominator++
			var hit int
			err := hitStmt.QueryRow(eventID, glob).Scan(&hit)
			if err == nil {
				hits++
			} else if err != sql.ErrNoRows {
				return 0, err
			}
		}
	}
	if err := eventRows.Err(); err != nil {
		return 0, err
	}
	if denominator == 0 {
		return 0, nil
	}
	return float64(hits) / float64(denominator), nil
}

// prune deletes rows past retentionDays and trims each table back to its
// row cap, oldest first. Must be called under storeMu.
func (s *Store) prune() error {
	cutoff := time.Now().Unix() - retentionDays*86400

	if _, err := s.db.Exec(`DELETE FROM query_events WHERE timestamp < ?`, cutoff); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM expand_events WHERE expanded_at < ?`, cutoff); err != nil {
		return err
	}

	if _, err := s.db.Exec(
		`DELETE FROM query_events WHERE id IN (
			SELECT id FROM query_events ORDER BY timestamp ASC
			LIMIT (SELECT CASE WHEN COUNT(*) > ? THEN COUNT(*) - ? ELSE 0 END FROM query_events)
		)`, queryEventsCap, queryEventsCap,
	); err != nil {
		return err
	}

	if _, err := s.db.Exec(
		`DELETE FROM expand_events WHERE id IN (
			SELECT id FROM expand_events ORDER BY expanded_at ASC
			LIMIT (SELECT CASE WHEN COUNT(*) > ? THEN COUNT(*) - ? ELSE 0 END FROM expand_events)
		)`, expandEventsCap, expandEventsCap,
	); err != nil {
		return err
	}

	return nil
}
