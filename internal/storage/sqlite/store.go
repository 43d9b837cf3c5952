package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"complaintdesk/internal/domain"
	"complaintdesk/internal/lifecycle"
)

const (
	indexCategory = "category"
	indexSeverity = "severity"
	indexStatus   = "status"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS complaints (
		id               TEXT PRIMARY KEY,
		reported_at      DATETIME NOT NULL,
		status           TEXT NOT NULL,
		primary_category TEXT NOT NULL,
		severity         TEXT NOT NULL,
		document         TEXT NOT NULL,
		updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_complaints_reported_at ON complaints(reported_at);

	CREATE TABLE IF NOT EXISTS complaint_index (
		index_name   TEXT NOT NULL,
		value        TEXT NOT NULL,
		complaint_id TEXT NOT NULL REFERENCES complaints(id),
		PRIMARY KEY (index_name, value, complaint_id)
	);
	CREATE INDEX IF NOT EXISTS idx_ci_complaint ON complaint_index(complaint_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Store persists complaint records as JSON documents and keeps the category,
// severity and status indices in the same transaction as the record.
//
// Writes are serialized behind one in-process mutex. Nothing here makes
// concurrent writers in other processes safe.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock overrides the time source used for audit entries.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Save validates and writes the record with its index entries. A record seen
// for the first time must still be in an intake state. Saving over a stored
// record may only append audit entries, and any status change must be the
// result of those appended transitions.
func (s *Store) Save(c domain.Complaint) (string, error) {
	if err := domain.ValidateComplaint(c); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	prev, found, err := loadTx(tx, c.ID)
	if err != nil {
		return "", err
	}
	if !found && !c.Status.IntakeStage() {
		return "", &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("first save must be in an intake state, got %s", c.Status)}
	}
	if found {
		if err := checkResave(prev, c); err != nil {
			return "", err
		}
	}
	if err := writeTx(tx, c); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit complaint %s: %w", c.ID, err)
	}
	return c.ID, nil
}

func (s *Store) Load(id string) (domain.Complaint, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM complaints WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Complaint{}, &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.Complaint{}, fmt.Errorf("load complaint %s: %w", id, err)
	}
	return decode(doc)
}

func (s *Store) Exists(id string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM complaints WHERE id = ?`, id).Scan(&count)
	return count > 0, err
}

// UpdateStatus applies one lifecycle transition and persists it. An illegal
// target leaves the stored record untouched.
func (s *Store) UpdateStatus(id string, to domain.Status, actor, note string) (domain.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return domain.Complaint{}, err
	}
	defer tx.Rollback()

	c, found, err := loadTx(tx, id)
	if err != nil {
		return domain.Complaint{}, err
	}
	if !found {
		return domain.Complaint{}, &domain.NotFoundError{ID: id}
	}
	if err := lifecycle.Transition(&c, to, actor, note, s.now()); err != nil {
		return domain.Complaint{}, err
	}
	if err := writeTx(tx, c); err != nil {
		return domain.Complaint{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Complaint{}, fmt.Errorf("commit complaint %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) SearchByCategory(category domain.Category) ([]domain.Complaint, error) {
	return s.search(indexCategory, string(category))
}

func (s *Store) SearchBySeverity(severity domain.Severity) ([]domain.Complaint, error) {
	return s.search(indexSeverity, string(severity))
}

func (s *Store) SearchByStatus(status domain.Status) ([]domain.Complaint, error) {
	return s.search(indexStatus, string(status))
}

// search returns matching records, most recently reported first.
func (s *Store) search(indexName, value string) ([]domain.Complaint, error) {
	rows, err := s.db.Query(
		`SELECT c.document
		 FROM complaint_index i
		 JOIN complaints c ON c.id = i.complaint_id
		 WHERE i.index_name = ? AND i.value = ?
		 ORDER BY c.reported_at DESC, c.id`,
		indexName, value,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Complaint
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		c, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Statistics() (domain.Statistics, error) {
	st := domain.Statistics{
		CountsByCategory: make(map[string]int),
		CountsBySeverity: make(map[string]int),
		CountsByStatus:   make(map[string]int),
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM complaints`).Scan(&st.TotalCount); err != nil {
		return st, err
	}

	rows, err := s.db.Query(
		`SELECT index_name, value, COUNT(*)
		 FROM complaint_index
		 GROUP BY index_name, value`,
	)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		var count int
		if err := rows.Scan(&name, &value, &count); err != nil {
			return st, err
		}
		switch name {
		case indexCategory:
			st.CountsByCategory[value] = count
		case indexSeverity:
			st.CountsBySeverity[value] = count
		case indexStatus:
			st.CountsByStatus[value] = count
		}
	}
	return st, rows.Err()
}

func loadTx(tx *sql.Tx, id string) (domain.Complaint, bool, error) {
	var doc string
	err := tx.QueryRow(`SELECT document FROM complaints WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Complaint{}, false, nil
	}
	if err != nil {
		return domain.Complaint{}, false, fmt.Errorf("load complaint %s: %w", id, err)
	}
	c, err := decode(doc)
	if err != nil {
		return domain.Complaint{}, false, err
	}
	return c, true, nil
}

// checkResave guards a stored record against being rewritten around the
// lifecycle. The new audit trail must extend the stored one, its appended
// transitions must chain legally from the stored status to the new one, and
// reported_at and primary_category stay fixed once set.
func checkResave(prev, next domain.Complaint) error {
	if !next.ReportedAt.Equal(prev.ReportedAt) {
		return &domain.ValidationError{Field: "reported_at", Reason: "cannot change after creation"}
	}
	if prev.PrimaryCategory != "" && next.PrimaryCategory != prev.PrimaryCategory {
		return &domain.ValidationError{
			Field:  "primary_category",
			Reason: fmt.Sprintf("cannot change from %s to %s", prev.PrimaryCategory, next.PrimaryCategory),
		}
	}
	if len(next.AuditTrail) < len(prev.AuditTrail) {
		return &domain.ValidationError{Field: "audit_trail", Reason: "entries cannot be removed"}
	}
	for i, e := range prev.AuditTrail {
		if !sameEntry(e, next.AuditTrail[i]) {
			return &domain.ValidationError{Field: "audit_trail", Reason: fmt.Sprintf("entry %d was rewritten", i)}
		}
	}

	status := prev.Status
	for _, e := range next.AuditTrail[len(prev.AuditTrail):] {
		if e.To == "" {
			continue
		}
		if e.From != status || !lifecycle.CanTransition(status, e.To) {
			return &domain.ValidationError{
				Field:  "status",
				Reason: fmt.Sprintf("audit entry %s -> %s does not follow %s", e.From, e.To, status),
			}
		}
		status = e.To
	}
	if status != next.Status {
		return &domain.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("%s -> %s is not backed by audited transitions", prev.Status, next.Status),
		}
	}
	return nil
}

func sameEntry(a, b domain.AuditEntry) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Actor == b.Actor && a.Action == b.Action && a.From == b.From && a.To == b.To
}

// writeTx upserts the record row and rebuilds its three index entries.
func writeTx(tx *sql.Tx, c domain.Complaint) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal complaint %s: %w", c.ID, err)
	}
	_, err = tx.Exec(
		`INSERT INTO complaints (id, reported_at, status, primary_category, severity, document, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   primary_category = excluded.primary_category,
		   severity = excluded.severity,
		   document = excluded.document,
		   updated_at = CURRENT_TIMESTAMP`,
		c.ID, c.ReportedAt.UTC(), string(c.Status), string(c.PrimaryCategory), string(c.Severity), string(doc),
	)
	if err != nil {
		return fmt.Errorf("write complaint %s: %w", c.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM complaint_index WHERE complaint_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear index for %s: %w", c.ID, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO complaint_index (index_name, value, complaint_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range [][2]string{
		{indexCategory, string(c.PrimaryCategory)},
		{indexSeverity, string(c.Severity)},
		{indexStatus, string(c.Status)},
	} {
		if _, err := stmt.Exec(entry[0], entry[1], c.ID); err != nil {
			return fmt.Errorf("index %s for %s: %w", entry[0], c.ID, err)
		}
	}
	return nil
}

func decode(doc string) (domain.Complaint, error) {
	var c domain.Complaint
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return c, fmt.Errorf("decode complaint: %w", err)
	}
	return c, nil
}
