// Package jobstore keeps the durable record of every job: its entries and
// their statuses, pending directory completions, and the two barrier stacks
// a resumed run needs to replay nested conflict decisions.
package jobstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"

	"github.com/bamsammich/ferry/internal/job"
)

const (
	signature = "ferry"
	// Bump whenever the schema changes. Stores written by another version
	// are discarded.
	version = 4
)

var (
	// ErrNotFound is returned when a job id does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrClaimed is returned when another live process drives the job.
	ErrClaimed = errors.New("job is claimed by another process")

	errIncompatible = errors.New("incompatible job store")
)

const schema = `
CREATE TABLE misc (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE jobs (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	kind               TEXT    NOT NULL,
	cwd                TEXT    NOT NULL,
	dest               TEXT    NOT NULL,
	on_conflict        TEXT    NOT NULL,
	archives           TEXT    NOT NULL DEFAULT '[]',
	replace_first_path INTEGER,
	status             TEXT    NOT NULL,
	created_at         INTEGER NOT NULL,
	session            TEXT,
	owner_pid          INTEGER
);
CREATE TABLE files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	path          TEXT    NOT NULL,
	type          TEXT    NOT NULL,
	size          INTEGER NOT NULL,
	mtime         INTEGER NOT NULL,
	mode          INTEGER NOT NULL,
	uid           INTEGER NOT NULL,
	gid           INTEGER NOT NULL,
	status        TEXT    NOT NULL,
	message       TEXT    NOT NULL DEFAULT '',
	target        TEXT    NOT NULL DEFAULT '',
	target_is_dir INTEGER NOT NULL DEFAULT 0,
	source        TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX files_job ON files(job_id);
CREATE TABLE dirs (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id  INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	source  TEXT    NOT NULL,
	target  TEXT    NOT NULL,
	new_dir INTEGER NOT NULL,
	status  TEXT    NOT NULL,
	message TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX dirs_job ON dirs(job_id);
CREATE TABLE rename_barriers (
	job_id      INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	pos         INTEGER NOT NULL,
	existing    TEXT    NOT NULL,
	replacement TEXT    NOT NULL,
	PRIMARY KEY (job_id, pos)
);
CREATE TABLE skip_barriers (
	job_id  INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	pos     INTEGER NOT NULL,
	prefix  TEXT    NOT NULL,
	skipped INTEGER NOT NULL,
	PRIMARY KEY (job_id, pos)
);
`

// Store is a SQLite-backed job store. A Store is meant to be driven by one
// worker at a time; Claim guards a job against a second process.
type Store struct {
	db      *sql.DB
	path    string
	session string
}

// DefaultPath returns $XDG_STATE_HOME/ferry/jobs.db, falling back to
// ~/.local/state/ferry/jobs.db.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "ferry", "jobs.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate state dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "ferry", "jobs.db"), nil
}

// Open opens (or creates) the store at path. A file written by an
// incompatible version, or one that is not a database at all, is discarded
// and replaced by an empty store.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s, err := open(path)
	if errors.Is(err, errIncompatible) {
		slog.Warn("discarding job store", "path", path, "reason", err)
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return nil, fmt.Errorf("remove store: %w", rmErr)
			}
		}
		s, err = open(path)
	}
	return s, err
}

func open(path string) (*Store, error) {
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)" +
		"&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	// One connection keeps per-connection pragmas and transactions simple.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, session: uuid.NewString()}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	var tables int
	if err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&tables); err != nil {
		return fmt.Errorf("%w: %w", errIncompatible, err)
	}
	if tables == 0 {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit
		if _, err := tx.Exec(schema); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO misc (key, value) VALUES ('signature', ?), ('version', ?)`,
			signature, strconv.Itoa(version)); err != nil {
			return fmt.Errorf("store meta: %w", err)
		}
		return tx.Commit()
	}

	var sig, ver string
	if err := s.db.QueryRow(`SELECT value FROM misc WHERE key = 'signature'`).Scan(&sig); err != nil {
		return fmt.Errorf("%w: %w", errIncompatible, err)
	}
	if err := s.db.QueryRow(`SELECT value FROM misc WHERE key = 'version'`).Scan(&ver); err != nil {
		return fmt.Errorf("%w: %w", errIncompatible, err)
	}
	if sig != signature || ver != strconv.Itoa(version) {
		return fmt.Errorf("%w: signature %q version %s", errIncompatible, sig, ver)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// CreateJob inserts j and its entries in one transaction, filling in the
// ids on j and on every entry.
func (s *Store) CreateJob(j *job.Job, entries []job.Entry) error {
	archives, err := json.Marshal(j.Archives)
	if err != nil {
		return fmt.Errorf("encode archives: %w", err)
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.Exec(`INSERT INTO jobs
		(kind, cwd, dest, on_conflict, archives, replace_first_path, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Kind.String(), j.Cwd, j.Dest, j.OnConflict.String(), string(archives),
		nullBool(j.ReplaceFirstPath), j.Status.String(), j.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	jobID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("job id: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO files
		(job_id, path, type, size, mtime, mode, uid, gid, status, message, target, target_is_dir, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(entries))
	for i, e := range entries {
		res, err := stmt.Exec(jobID, e.Path, e.Type.String(), e.Size, e.ModTime.UnixNano(),
			e.Mode, e.UID, e.GID, e.Status.String(), e.Message, e.Target, e.TargetIsDir, e.Source)
		if err != nil {
			return fmt.Errorf("insert %s: %w", e.Path, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("entry id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	j.ID = jobID
	for i := range entries {
		entries[i].ID = ids[i]
		entries[i].JobID = jobID
	}
	return nil
}

const jobColumns = `id, kind, cwd, dest, on_conflict, archives, replace_first_path, status, created_at`

// Job returns the job with the given id.
func (s *Store) Job(id int64) (job.Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return j, err
}

// Jobs returns every job, oldest first.
func (s *Store) Jobs() ([]job.Job, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM jobs ORDER BY id`)
}

// Pending returns the jobs a restart should offer to resume, skip or
// abort: those still in progress or aborted.
func (s *Store) Pending() ([]job.Job, error) {
	return s.queryJobs(`SELECT `+jobColumns+` FROM jobs WHERE status IN (?, ?) ORDER BY id`,
		job.JobInProgress.String(), job.JobAborted.String())
}

func (s *Store) queryJobs(query string, args ...any) ([]job.Job, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (job.Job, error) {
	var (
		j                         job.Job
		kind, policy, status, arc string
		replaceFirst              sql.NullBool
		created                   int64
	)
	if err := row.Scan(&j.ID, &kind, &j.Cwd, &j.Dest, &policy, &arc, &replaceFirst, &status, &created); err != nil {
		return job.Job{}, err
	}

	var err error
	if j.Kind, err = job.ParseKind(kind); err != nil {
		return job.Job{}, err
	}
	if j.OnConflict, err = job.ParseOnConflict(policy); err != nil {
		return job.Job{}, err
	}
	if j.Status, err = job.ParseJobStatus(status); err != nil {
		return job.Job{}, err
	}
	if err := json.Unmarshal([]byte(arc), &j.Archives); err != nil {
		return job.Job{}, fmt.Errorf("decode archives: %w", err)
	}
	if replaceFirst.Valid {
		v := replaceFirst.Bool
		j.ReplaceFirstPath = &v
	}
	j.CreatedAt = time.Unix(0, created)
	return j, nil
}

// SetJobStatus records the job status.
func (s *Store) SetJobStatus(id int64, status job.JobStatus) error {
	return s.exec(`UPDATE jobs SET status = ? WHERE id = ?`, status.String(), id)
}

// ReplaceFirstPath returns the persisted flag, or nil if it was never set.
func (s *Store) ReplaceFirstPath(jobID int64) (*bool, error) {
	var v sql.NullBool
	err := s.db.QueryRow(`SELECT replace_first_path FROM jobs WHERE id = ?`, jobID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, jobID)
	}
	if err != nil || !v.Valid {
		return nil, err
	}
	return &v.Bool, nil
}

// SetReplaceFirstPath persists the flag.
func (s *Store) SetReplaceFirstPath(jobID int64, v bool) error {
	return s.exec(`UPDATE jobs SET replace_first_path = ? WHERE id = ?`, v, jobID)
}

// Entries returns the job's entries in insertion order.
func (s *Store) Entries(jobID int64) ([]job.Entry, error) {
	rows, err := s.db.Query(`SELECT id, job_id, path, type, size, mtime, mode, uid, gid,
		status, message, target, target_is_dir, source FROM files WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []job.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row scanner, extra ...any) (job.Entry, error) {
	var (
		e          job.Entry
		typ, state string
		mtime      int64
	)
	dest := append([]any{&e.ID, &e.JobID, &e.Path, &typ, &e.Size, &mtime, &e.Mode, &e.UID, &e.GID,
		&state, &e.Message, &e.Target, &e.TargetIsDir, &e.Source}, extra...)
	if err := row.Scan(dest...); err != nil {
		return job.Entry{}, err
	}

	var err error
	if e.Type, err = job.ParseEntryType(typ); err != nil {
		return job.Entry{}, err
	}
	if e.Status, err = job.ParseStatus(state); err != nil {
		return job.Entry{}, err
	}
	e.ModTime = time.Unix(0, mtime)
	return e, nil
}

// UpdateEntry records the entry's status, message, chosen target and
// source override.
func (s *Store) UpdateEntry(e job.Entry) error {
	return s.exec(`UPDATE files SET status = ?, message = ?, target = ?, target_is_dir = ?, source = ? WHERE id = ?`,
		e.Status.String(), e.Message, e.Target, e.TargetIsDir, e.Source, e.ID)
}

// SetEntryStatus records the entry's status and message.
func (s *Store) SetEntryStatus(id int64, status job.Status, message string) error {
	return s.exec(`UPDATE files SET status = ?, message = ? WHERE id = ?`, status.String(), message, id)
}

// DirCompletions returns the job's directory completions in push order.
func (s *Store) DirCompletions(jobID int64) ([]job.DirCompletion, error) {
	rows, err := s.db.Query(`SELECT f.id, f.job_id, f.path, f.type, f.size, f.mtime, f.mode, f.uid, f.gid,
		f.status, f.message, f.target, f.target_is_dir, f.source,
		d.id, d.source, d.target, d.new_dir, d.status, d.message
		FROM dirs d JOIN files f ON f.id = d.file_id WHERE d.job_id = ? ORDER BY d.id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query dirs: %w", err)
	}
	defer rows.Close()

	var dirs []job.DirCompletion
	for rows.Next() {
		var (
			d     job.DirCompletion
			state string
		)
		d.Entry, err = scanEntry(rows, &d.ID, &d.Source, &d.Target, &d.NewDir, &state, &d.Message)
		if err != nil {
			return nil, err
		}
		if d.Status, err = job.ParseStatus(state); err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}
	return dirs, rows.Err()
}

// PushDirCompletion records d and sets its id.
func (s *Store) PushDirCompletion(jobID int64, d *job.DirCompletion) error {
	res, err := s.db.Exec(`INSERT INTO dirs (job_id, file_id, source, target, new_dir, status, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, d.Entry.ID, d.Source, d.Target, d.NewDir, d.Status.String(), d.Message)
	if err != nil {
		return fmt.Errorf("insert dir: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

// SetDirCompletionStatus records a directory completion's status.
func (s *Store) SetDirCompletionStatus(id int64, status job.Status, message string) error {
	return s.exec(`UPDATE dirs SET status = ?, message = ? WHERE id = ?`, status.String(), message, id)
}

// RenameBarriers returns the job's rename barrier stack, bottom first.
func (s *Store) RenameBarriers(jobID int64) ([]job.RenameBarrier, error) {
	rows, err := s.db.Query(`SELECT existing, replacement FROM rename_barriers WHERE job_id = ? ORDER BY pos`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query rename barriers: %w", err)
	}
	defer rows.Close()

	var out []job.RenameBarrier
	for rows.Next() {
		var b job.RenameBarrier
		if err := rows.Scan(&b.Existing, &b.Replacement); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PushRenameBarrier pushes b onto the job's rename barrier stack.
func (s *Store) PushRenameBarrier(jobID int64, b job.RenameBarrier) error {
	return s.exec(`INSERT INTO rename_barriers (job_id, pos, existing, replacement)
		VALUES (?, (SELECT COALESCE(MAX(pos), -1) + 1 FROM rename_barriers WHERE job_id = ?), ?, ?)`,
		jobID, jobID, b.Existing, b.Replacement)
}

// PopRenameBarrier removes the top of the job's rename barrier stack.
func (s *Store) PopRenameBarrier(jobID int64) error {
	return s.exec(`DELETE FROM rename_barriers WHERE job_id = ?
		AND pos = (SELECT MAX(pos) FROM rename_barriers WHERE job_id = ?)`, jobID, jobID)
}

// SkipBarriers returns the job's skip barrier stack, bottom first.
func (s *Store) SkipBarriers(jobID int64) ([]job.SkipBarrier, error) {
	rows, err := s.db.Query(`SELECT prefix, skipped FROM skip_barriers WHERE job_id = ? ORDER BY pos`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query skip barriers: %w", err)
	}
	defer rows.Close()

	var out []job.SkipBarrier
	for rows.Next() {
		var b job.SkipBarrier
		if err := rows.Scan(&b.Prefix, &b.Skipped); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PushSkipBarrier pushes b onto the job's skip barrier stack.
func (s *Store) PushSkipBarrier(jobID int64, b job.SkipBarrier) error {
	return s.exec(`INSERT INTO skip_barriers (job_id, pos, prefix, skipped)
		VALUES (?, (SELECT COALESCE(MAX(pos), -1) + 1 FROM skip_barriers WHERE job_id = ?), ?, ?)`,
		jobID, jobID, b.Prefix, b.Skipped)
}

// PopSkipBarrier removes the top of the job's skip barrier stack.
func (s *Store) PopSkipBarrier(jobID int64) error {
	return s.exec(`DELETE FROM skip_barriers WHERE job_id = ?
		AND pos = (SELECT MAX(pos) FROM skip_barriers WHERE job_id = ?)`, jobID, jobID)
}

// Claim marks the job as driven by this store's session. It fails with
// ErrClaimed while another session whose process is still alive holds it.
func (s *Store) Claim(jobID int64) error {
	var (
		session sql.NullString
		pid     sql.NullInt64
	)
	err := s.db.QueryRow(`SELECT session, owner_pid FROM jobs WHERE id = ?`, jobID).Scan(&session, &pid)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("read claim: %w", err)
	}
	if session.Valid && session.String != s.session && pid.Valid && processAlive(int(pid.Int64)) {
		return fmt.Errorf("%w (pid %d)", ErrClaimed, pid.Int64)
	}
	return s.exec(`UPDATE jobs SET session = ?, owner_pid = ? WHERE id = ?`, s.session, os.Getpid(), jobID)
}

// Release drops this session's claim on the job.
func (s *Store) Release(jobID int64) error {
	return s.exec(`UPDATE jobs SET session = NULL, owner_pid = NULL WHERE id = ? AND session = ?`, jobID, s.session)
}

// DeleteJob removes the job and, by cascade, everything recorded for it.
func (s *Store) DeleteJob(id int64) error {
	return s.exec(`DELETE FROM jobs WHERE id = ?`, id)
}

func (s *Store) exec(query string, args ...any) error {
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("job store: %w", err)
	}
	return nil
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
