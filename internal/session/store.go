package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"deepthinks/internal/memory"
)

// Store handles SQLite persistence for sessions, the per-turn audit log, and
// conversation memory snapshots. Each call is atomic; durability beyond that
// is not the memory core's concern.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) a SQLite database at the given path and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id        INTEGER NOT NULL,
		session_number INTEGER NOT NULL,
		created_at     TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at     TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (user_id, session_number)
	);
	CREATE TABLE IF NOT EXISTS chat_history (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        INTEGER NOT NULL,
		session_number INTEGER NOT NULL,
		prompt         TEXT NOT NULL,
		response       TEXT NOT NULL,
		token_count    INTEGER NOT NULL DEFAULT 0,
		timestamp      TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS conversation_memory (
		user_id        INTEGER NOT NULL,
		session_number INTEGER NOT NULL,
		summary_json   TEXT,
		history_buffer TEXT,
		smoothed_avg   REAL NOT NULL DEFAULT 0,
		smoothing_init INTEGER NOT NULL DEFAULT 0,
		last_updated   TEXT NOT NULL,
		PRIMARY KEY (user_id, session_number)
	);`
	_, err := s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session record.
func (s *Store) CreateSession(ctx context.Context, userID int64, sessionNum int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (user_id, session_number) VALUES (?, ?)",
		userID, sessionNum,
	)
	return err
}

// SessionExists checks whether the session has been created.
func (s *Store) SessionExists(ctx context.Context, userID int64, sessionNum int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE user_id = ? AND session_number = ?",
		userID, sessionNum,
	).Scan(&count)
	return count > 0, err
}

// LatestSessionNumber returns the highest session number for a user, 0 if none.
func (s *Store) LatestSessionNumber(ctx context.Context, userID int64) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(session_number) FROM sessions WHERE user_id = ?", userID,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}

// TouchSession updates the session's updated_at timestamp.
func (s *Store) TouchSession(ctx context.Context, userID int64, sessionNum int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE user_id = ? AND session_number = ?",
		time.Now().UTC().Format(time.RFC3339), userID, sessionNum,
	)
	return err
}

// LogInteraction appends one completed turn to the audit log. Implements
// memory.AuditLog.
func (s *Store) LogInteraction(ctx context.Context, userID int64, sessionNum int, it memory.Interaction) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_history (user_id, session_number, prompt, response, token_count, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		userID, sessionNum, it.Prompt, it.Response, it.TokenCount, it.Timestamp.Format(time.RFC3339),
	)
	return err
}

// RecentHistory returns up to limit most recent audited interactions,
// oldest first.
func (s *Store) RecentHistory(ctx context.Context, userID int64, sessionNum int, limit int) ([]memory.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt, response, token_count, timestamp FROM chat_history
		 WHERE user_id = ? AND session_number = ?
		 ORDER BY id DESC LIMIT ?`,
		userID, sessionNum, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Interaction
	for rows.Next() {
		var it memory.Interaction
		var ts string
		if err := rows.Scan(&it.Prompt, &it.Response, &it.TokenCount, &ts); err != nil {
			return nil, err
		}
		it.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, it)
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// Load reads the full memory state of a session. A session with no snapshot
// yet yields an empty ledger and uninitialized smoothing state.
func (s *Store) Load(ctx context.Context, userID int64, sessionNum int) (*memory.SessionState, error) {
	st := &memory.SessionState{UserID: userID, SessionNum: sessionNum}

	var summaryJSON, historyBuffer sql.NullString
	var smoothedAvg float64
	var smoothingInit int
	err := s.db.QueryRowContext(ctx,
		`SELECT summary_json, history_buffer, smoothed_avg, smoothing_init
		 FROM conversation_memory WHERE user_id = ? AND session_number = ?`,
		userID, sessionNum,
	).Scan(&summaryJSON, &historyBuffer, &smoothedAvg, &smoothingInit)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation memory: %w", err)
	}

	if historyBuffer.Valid && historyBuffer.String != "" {
		if err := json.Unmarshal([]byte(historyBuffer.String), &st.Ledger); err != nil {
			return nil, fmt.Errorf("decode history buffer: %w", err)
		}
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var ltm memory.LongTermMemory
		if err := json.Unmarshal([]byte(summaryJSON.String), &ltm); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		st.Memory = &ltm
	}
	st.Smoothing = memory.SmoothingState{
		SmoothedAvgTokens: smoothedAvg,
		Initialized:       smoothingInit != 0,
	}
	return st, nil
}

// Save upserts the session's memory snapshot.
func (s *Store) Save(ctx context.Context, st *memory.SessionState) error {
	historyBuffer, err := json.Marshal(st.Ledger)
	if err != nil {
		return fmt.Errorf("encode history buffer: %w", err)
	}
	var summaryJSON []byte
	if st.Memory != nil {
		summaryJSON, err = json.Marshal(st.Memory)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	}

	smoothingInit := 0
	if st.Smoothing.Initialized {
		smoothingInit = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_memory (user_id, session_number, summary_json, history_buffer, smoothed_avg, smoothing_init, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, session_number) DO UPDATE SET
		     summary_json   = excluded.summary_json,
		     history_buffer = excluded.history_buffer,
		     smoothed_avg   = excluded.smoothed_avg,
		     smoothing_init = excluded.smoothing_init,
		     last_updated   = excluded.last_updated`,
		st.UserID, st.SessionNum, nullable(summaryJSON), string(historyBuffer),
		st.Smoothing.SmoothedAvgTokens, smoothingInit,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save conversation memory: %w", err)
	}
	return nil
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
