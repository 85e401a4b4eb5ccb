/*
Package sqlite is the SQLite-backed implementation of purchase.TxStore.

PURPOSE:
  One store backs every persistence interface in the engine (ledger,
  catalog, access, enroll) so a purchase settles in a single database
  transaction. The same patterns carry to PostgreSQL with only minor
  SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement ever touches the entries or reasons
  tables. Balances are derived; corrections are compensating entries.

KEY TABLES:
  kinds:       Ledger kind reference catalog (seeded at startup)
  entries:     Immutable money ledger
  courses, lessons, tiers, prices: course catalog and price history
  grants:      Access grants; UNIQUE(course_id, user_id) backs the
               one-grant-per-pair invariant against concurrent upserts
  reasons:     Audit links from ledger debits to grants
  groups, memberships: study groups; UNIQUE(user_id, group_id)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; WithTx holds the write lock for
  the whole transaction so settlement steps cannot interleave. In
  production with PostgreSQL, database-level concurrency control
  handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

TRANSACTIONS:
  WithTx executes a function against a view whose reads AND writes go
  through the same *sql.Tx, so a settlement always sees its own writes.

USAGE:
  store, err := sqlite.New("./data/commerce.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  orc := purchase.NewOrchestrator(store, purchase.DefaultKindMap())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - purchase/purchase.go: Store and TxStore interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/access"
	"github.com/warp/course-commerce/catalog"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/money"
	"github.com/warp/course-commerce/purchase"
)

// Store implements purchase.TxStore on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger kind reference catalog
	CREATE TABLE IF NOT EXISTS kinds (
		code INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		flow TEXT NOT NULL,
		is_bonus BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT
	);

	-- Money ledger (append-only)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind_code INTEGER NOT NULL REFERENCES kinds(code),
		amount TEXT NOT NULL,
		description TEXT,
		is_bonus BOOLEAN NOT NULL DEFAULT FALSE,
		external_payment_id TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_recorded
		ON entries(user_id, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_entries_external_payment
		ON entries(external_payment_id) WHERE external_payment_id IS NOT NULL;

	-- Courses
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		title TEXT NOT NULL,
		start_date TEXT NOT NULL,
		gated BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id),
		title TEXT NOT NULL,
		link TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_lessons_course ON lessons(course_id);

	-- Price tiers and price history
	CREATE TABLE IF NOT EXISTS tiers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS prices (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id),
		tier_id TEXT NOT NULL REFERENCES tiers(id),
		effective_from TEXT NOT NULL,
		price TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_prices_course_tier
		ON prices(course_id, tier_id, effective_from);

	-- Access grants
	CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id),
		user_id TEXT NOT NULL,
		read_open BOOLEAN NOT NULL DEFAULT FALSE,
		write_open BOOLEAN NOT NULL DEFAULT FALSE,
		start_date TEXT,
		end_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one grant per (course, user). Concurrent
	-- purchases by the same user cannot create a duplicate.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_grants_course_user
		ON grants(course_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_grants_user ON grants(user_id);

	-- Audit links (append-only)
	CREATE TABLE IF NOT EXISTS reasons (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES entries(id),
		name TEXT NOT NULL,
		description TEXT,
		grant_id TEXT NOT NULL REFERENCES grants(id)
	);

	CREATE INDEX IF NOT EXISTS idx_reasons_grant ON reasons(grant_id);

	-- Study groups
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id),
		name TEXT NOT NULL,
		number INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_groups_course ON groups(course_id);

	CREATE TABLE IF NOT EXISTS memberships (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		group_id TEXT NOT NULL REFERENCES groups(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_user_group
		ON memberships(user_id, group_id);
	CREATE INDEX IF NOT EXISTS idx_memberships_group ON memberships(group_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SeedKinds inserts the default kind catalog rows. Idempotent.
func (s *Store) SeedKinds(ctx context.Context) error {
	for _, k := range ledger.DefaultKinds() {
		if err := s.SaveKind(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// LEDGER (ledger.Store)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, q dbtx, e ledger.Entry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO entries
		(id, user_id, kind_code, amount, description, is_bonus, external_payment_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Kind, e.Amount.String(), e.Description, e.Bonus,
		nullString(e.ExternalPaymentID), e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) EntriesByUser(ctx context.Context, userID commerce.UserID, asOf time.Time) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesByUser(ctx, s.db, userID, asOf)
}

func entriesByUser(ctx context.Context, q dbtx, userID commerce.UserID, asOf time.Time) ([]ledger.Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, kind_code, amount, description, is_bonus, external_payment_id, recorded_at
		FROM entries
		WHERE user_id = ? AND recorded_at <= ?
		ORDER BY recorded_at ASC, rowid ASC`,
		userID, asOf.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e           ledger.Entry
			amount      string
			description sql.NullString
			externalID  sql.NullString
			recordedAt  string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &amount, &description, &e.Bonus, &externalID, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Amount = money.MustParse(amount)
		e.Description = description.String
		e.ExternalPaymentID = externalID.String
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) KindByCode(ctx context.Context, code ledger.KindCode) (*ledger.Kind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return kindByCode(ctx, s.db, code)
}

func kindByCode(ctx context.Context, q dbtx, code ledger.KindCode) (*ledger.Kind, error) {
	var (
		k           ledger.Kind
		description sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT code, name, flow, is_bonus, description FROM kinds WHERE code = ?", code,
	).Scan(&k.Code, &k.Name, &k.Flow, &k.Bonus, &description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	k.Description = description.String
	return &k, nil
}

func (s *Store) SaveKind(ctx context.Context, k ledger.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveKind(ctx, s.db, k)
}

func saveKind(ctx context.Context, q dbtx, k ledger.Kind) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO kinds (code, name, flow, is_bonus, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			flow = excluded.flow,
			is_bonus = excluded.is_bonus,
			description = excluded.description`,
		k.Code, k.Name, k.Flow, k.Bonus, nullString(k.Description),
	)
	return err
}

// =============================================================================
// CATALOG (catalog.Store)
// =============================================================================

func (s *Store) SaveCourse(ctx context.Context, c catalog.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCourse(ctx, s.db, c)
}

func saveCourse(ctx context.Context, q dbtx, c catalog.Course) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO courses (id, author_id, title, start_date, gated, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author_id = excluded.author_id,
			title = excluded.title,
			start_date = excluded.start_date,
			gated = excluded.gated`,
		c.ID, c.AuthorID, c.Title, c.StartDate.UTC().Format(time.RFC3339),
		c.Gated, c.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCourse(ctx context.Context, id commerce.CourseID) (*catalog.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCourse(ctx, s.db, id)
}

func getCourse(ctx context.Context, q dbtx, id commerce.CourseID) (*catalog.Course, error) {
	var (
		c         catalog.Course
		startDate string
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, author_id, title, start_date, gated, created_at FROM courses WHERE id = ?", id,
	).Scan(&c.ID, &c.AuthorID, &c.Title, &startDate, &c.Gated, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.StartDate, _ = time.Parse(time.RFC3339, startDate)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]catalog.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCourses(ctx, s.db)
}

func listCourses(ctx context.Context, q dbtx) ([]catalog.Course, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, author_id, title, start_date, gated, created_at FROM courses ORDER BY rowid ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []catalog.Course
	for rows.Next() {
		var (
			c         catalog.Course
			startDate string
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.Title, &startDate, &c.Gated, &createdAt); err != nil {
			return nil, err
		}
		c.StartDate, _ = time.Parse(time.RFC3339, startDate)
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (s *Store) SaveLesson(ctx context.Context, l catalog.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLesson(ctx, s.db, l)
}

func saveLesson(ctx context.Context, q dbtx, l catalog.Lesson) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO lessons (id, course_id, title, link)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			link = excluded.link`,
		l.ID, l.CourseID, l.Title, nullString(l.Link),
	)
	return err
}

func (s *Store) LessonsByCourse(ctx context.Context, courseID commerce.CourseID) ([]catalog.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lessonsByCourse(ctx, s.db, courseID)
}

func lessonsByCourse(ctx context.Context, q dbtx, courseID commerce.CourseID) ([]catalog.Lesson, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, course_id, title, link FROM lessons WHERE course_id = ? ORDER BY rowid ASC", courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []catalog.Lesson
	for rows.Next() {
		var (
			l    catalog.Lesson
			link sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &link); err != nil {
			return nil, err
		}
		l.Link = link.String
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

func (s *Store) CountLessons(ctx context.Context, courseID commerce.CourseID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countLessons(ctx, s.db, courseID)
}

func countLessons(ctx context.Context, q dbtx, courseID commerce.CourseID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM lessons WHERE course_id = ?", courseID).Scan(&count)
	return count, err
}

func (s *Store) SaveTier(ctx context.Context, t catalog.PriceTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTier(ctx, s.db, t)
}

func saveTier(ctx context.Context, q dbtx, t catalog.PriceTier) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tiers (id, name, description)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description`,
		t.ID, t.Name, nullString(t.Description),
	)
	return err
}

func (s *Store) GetTier(ctx context.Context, id commerce.TierID) (*catalog.PriceTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTier(ctx, s.db, id)
}

func getTier(ctx context.Context, q dbtx, id commerce.TierID) (*catalog.PriceTier, error) {
	var (
		t           catalog.PriceTier
		description sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, description FROM tiers WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	return &t, nil
}

func (s *Store) ListTiers(ctx context.Context) ([]catalog.PriceTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTiers(ctx, s.db)
}

func listTiers(ctx context.Context, q dbtx) ([]catalog.PriceTier, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, description FROM tiers ORDER BY rowid ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []catalog.PriceTier
	for rows.Next() {
		var (
			t           catalog.PriceTier
			description sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &description); err != nil {
			return nil, err
		}
		t.Description = description.String
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *Store) SavePrice(ctx context.Context, p catalog.PriceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePrice(ctx, s.db, p)
}

func savePrice(ctx context.Context, q dbtx, p catalog.PriceEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO prices (id, course_id, tier_id, effective_from, price)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.CourseID, p.TierID,
		p.EffectiveFrom.UTC().Format(time.RFC3339), p.Price.String(),
	)
	return err
}

func (s *Store) PricesFor(ctx context.Context, courseID commerce.CourseID, tierID commerce.TierID) ([]catalog.PriceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pricesFor(ctx, s.db, courseID, tierID)
}

func pricesFor(ctx context.Context, q dbtx, courseID commerce.CourseID, tierID commerce.TierID) ([]catalog.PriceEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, course_id, tier_id, effective_from, price
		FROM prices
		WHERE course_id = ? AND tier_id = ?
		ORDER BY effective_from ASC`,
		courseID, tierID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []catalog.PriceEntry
	for rows.Next() {
		var (
			p             catalog.PriceEntry
			effectiveFrom string
			price         string
		)
		if err := rows.Scan(&p.ID, &p.CourseID, &p.TierID, &effectiveFrom, &price); err != nil {
			return nil, err
		}
		p.EffectiveFrom, _ = time.Parse(time.RFC3339, effectiveFrom)
		p.Price = money.MustParse(price)
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// =============================================================================
// ACCESS (access.Store)
// =============================================================================

func (s *Store) GetGrant(ctx context.Context, courseID commerce.CourseID, userID commerce.UserID) (*access.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGrant(ctx, s.db, courseID, userID)
}

func getGrant(ctx context.Context, q dbtx, courseID commerce.CourseID, userID commerce.UserID) (*access.Grant, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, course_id, user_id, read_open, write_open, start_date, end_date, created_at, updated_at
		FROM grants WHERE course_id = ? AND user_id = ?`,
		courseID, userID,
	)
	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*access.Grant, error) {
	var (
		g                    access.Grant
		startDate, endDate   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&g.ID, &g.CourseID, &g.UserID, &g.ReadOpen, &g.WriteOpen,
		&startDate, &endDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if startDate.Valid {
		t, _ := time.Parse(time.RFC3339, startDate.String)
		g.StartDate = &t
	}
	if endDate.Valid {
		t, _ := time.Parse(time.RFC3339, endDate.String)
		g.EndDate = &t
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &g, nil
}

func (s *Store) SaveGrant(ctx context.Context, g access.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGrant(ctx, s.db, g)
}

func saveGrant(ctx context.Context, q dbtx, g access.Grant) error {
	var startDate, endDate sql.NullString
	if g.StartDate != nil {
		startDate = sql.NullString{String: g.StartDate.UTC().Format(time.RFC3339), Valid: true}
	}
	if g.EndDate != nil {
		endDate = sql.NullString{String: g.EndDate.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO grants
		(id, course_id, user_id, read_open, write_open, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			read_open = excluded.read_open,
			write_open = excluded.write_open,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at`,
		g.ID, g.CourseID, g.UserID, g.ReadOpen, g.WriteOpen,
		startDate, endDate,
		g.CreatedAt.UTC().Format(time.RFC3339), g.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GrantsByUser(ctx context.Context, userID commerce.UserID) ([]access.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return grantsByUser(ctx, s.db, userID)
}

func grantsByUser(ctx context.Context, q dbtx, userID commerce.UserID) ([]access.Grant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, course_id, user_id, read_open, write_open, start_date, end_date, created_at, updated_at
		FROM grants WHERE user_id = ? ORDER BY rowid ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []access.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

func (s *Store) AppendReason(ctx context.Context, r access.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendReason(ctx, s.db, r)
}

func appendReason(ctx context.Context, q dbtx, r access.Reason) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reasons (id, entry_id, name, description, grant_id)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.EntryID, r.Name, nullString(r.Description), r.GrantID,
	)
	return err
}

func (s *Store) ReasonsByGrant(ctx context.Context, grantID access.GrantID) ([]access.Reason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reasonsByGrant(ctx, s.db, grantID)
}

func reasonsByGrant(ctx context.Context, q dbtx, grantID access.GrantID) ([]access.Reason, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, entry_id, name, description, grant_id FROM reasons WHERE grant_id = ? ORDER BY rowid ASC",
		grantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reasons []access.Reason
	for rows.Next() {
		var (
			r           access.Reason
			description sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.EntryID, &r.Name, &description, &r.GrantID); err != nil {
			return nil, err
		}
		r.Description = description.String
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

// =============================================================================
// ENROLL (enroll.Store)
// =============================================================================

func (s *Store) SaveGroup(ctx context.Context, g enroll.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGroup(ctx, s.db, g)
}

func saveGroup(ctx context.Context, q dbtx, g enroll.Group) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO groups (id, course_id, name, number)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			number = excluded.number`,
		g.ID, g.CourseID, g.Name, g.Number,
	)
	return err
}

func (s *Store) GroupsByCourse(ctx context.Context, courseID commerce.CourseID) ([]enroll.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return groupsByCourse(ctx, s.db, courseID)
}

func groupsByCourse(ctx context.Context, q dbtx, courseID commerce.CourseID) ([]enroll.Group, error) {
	// rowid order = creation order; assignment tie-breaks depend on it.
	rows, err := q.QueryContext(ctx,
		"SELECT id, course_id, name, number FROM groups WHERE course_id = ? ORDER BY rowid ASC",
		courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []enroll.Group
	for rows.Next() {
		var g enroll.Group
		if err := rows.Scan(&g.ID, &g.CourseID, &g.Name, &g.Number); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) CountMembers(ctx context.Context, groupID commerce.GroupID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countMembers(ctx, s.db, groupID)
}

func countMembers(ctx context.Context, q dbtx, groupID commerce.GroupID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE group_id = ?", groupID).Scan(&count)
	return count, err
}

func (s *Store) AddMember(ctx context.Context, m enroll.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addMember(ctx, s.db, m)
}

func addMember(ctx context.Context, q dbtx, m enroll.Membership) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO memberships (id, user_id, group_id) VALUES (?, ?, ?)",
		m.ID, m.UserID, m.GroupID,
	)
	return err
}

// =============================================================================
// TRANSACTIONS (purchase.TxStore)
// =============================================================================

// WithTx executes fn against a transactional view of the store. The
// write lock is held for the duration, serializing concurrent
// settlements.
func (s *Store) WithTx(ctx context.Context, fn func(purchase.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore routes every read and write through one *sql.Tx so writes
// made earlier in the transaction are visible to later reads.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) AppendEntry(ctx context.Context, e ledger.Entry) error {
	return appendEntry(ctx, t.tx, e)
}

func (t *txStore) EntriesByUser(ctx context.Context, userID commerce.UserID, asOf time.Time) ([]ledger.Entry, error) {
	return entriesByUser(ctx, t.tx, userID, asOf)
}

func (t *txStore) KindByCode(ctx context.Context, code ledger.KindCode) (*ledger.Kind, error) {
	return kindByCode(ctx, t.tx, code)
}

func (t *txStore) SaveKind(ctx context.Context, k ledger.Kind) error {
	return saveKind(ctx, t.tx, k)
}

func (t *txStore) SaveCourse(ctx context.Context, c catalog.Course) error {
	return saveCourse(ctx, t.tx, c)
}

func (t *txStore) GetCourse(ctx context.Context, id commerce.CourseID) (*catalog.Course, error) {
	return getCourse(ctx, t.tx, id)
}

func (t *txStore) ListCourses(ctx context.Context) ([]catalog.Course, error) {
	return listCourses(ctx, t.tx)
}

func (t *txStore) SaveLesson(ctx context.Context, l catalog.Lesson) error {
	return saveLesson(ctx, t.tx, l)
}

func (t *txStore) LessonsByCourse(ctx context.Context, courseID commerce.CourseID) ([]catalog.Lesson, error) {
	return lessonsByCourse(ctx, t.tx, courseID)
}

func (t *txStore) CountLessons(ctx context.Context, courseID commerce.CourseID) (int, error) {
	return countLessons(ctx, t.tx, courseID)
}

func (t *txStore) SaveTier(ctx context.Context, tier catalog.PriceTier) error {
	return saveTier(ctx, t.tx, tier)
}

func (t *txStore) GetTier(ctx context.Context, id commerce.TierID) (*catalog.PriceTier, error) {
	return getTier(ctx, t.tx, id)
}

func (t *txStore) ListTiers(ctx context.Context) ([]catalog.PriceTier, error) {
	return listTiers(ctx, t.tx)
}

func (t *txStore) SavePrice(ctx context.Context, p catalog.PriceEntry) error {
	return savePrice(ctx, t.tx, p)
}

func (t *txStore) PricesFor(ctx context.Context, courseID commerce.CourseID, tierID commerce.TierID) ([]catalog.PriceEntry, error) {
	return pricesFor(ctx, t.tx, courseID, tierID)
}

func (t *txStore) GetGrant(ctx context.Context, courseID commerce.CourseID, userID commerce.UserID) (*access.Grant, error) {
	return getGrant(ctx, t.tx, courseID, userID)
}

func (t *txStore) SaveGrant(ctx context.Context, g access.Grant) error {
	return saveGrant(ctx, t.tx, g)
}

func (t *txStore) GrantsByUser(ctx context.Context, userID commerce.UserID) ([]access.Grant, error) {
	return grantsByUser(ctx, t.tx, userID)
}

func (t *txStore) AppendReason(ctx context.Context, r access.Reason) error {
	return appendReason(ctx, t.tx, r)
}

func (t *txStore) ReasonsByGrant(ctx context.Context, grantID access.GrantID) ([]access.Reason, error) {
	return reasonsByGrant(ctx, t.tx, grantID)
}

func (t *txStore) SaveGroup(ctx context.Context, g enroll.Group) error {
	return saveGroup(ctx, t.tx, g)
}

func (t *txStore) GroupsByCourse(ctx context.Context, courseID commerce.CourseID) ([]enroll.Group, error) {
	return groupsByCourse(ctx, t.tx, courseID)
}

func (t *txStore) CountMembers(ctx context.Context, groupID commerce.GroupID) (int, error) {
	return countMembers(ctx, t.tx, groupID)
}

func (t *txStore) AddMember(ctx context.Context, m enroll.Membership) error {
	return addMember(ctx, t.tx, m)
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
