package history

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lucasnoah/wasmfactory/internal/pipeline"
)

const timeFormat = "2006-01-02 15:04:05"

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// Build represents a row in the builds table.
type Build struct {
	ID         int64
	App        string
	StartedAt  string
	DurationMs int64
	Tasks      int
	Built      int
	UpToDate   int
	Failed     int
	Finished   bool
}

// TaskRun represents a row in the task_runs table.
type TaskRun struct {
	ID         int64
	BuildID    int64
	Component  string
	Step       string
	Kind       string
	Label      string
	Hash       string
	Outcome    string
	Fresh      bool
	DurationMs int64
	Error      string
	Timestamp  string
}

// BuildLog records the tasks of one build. It implements pipeline.Observer.
type BuildLog struct {
	db *DB
	id int64

	mu  sync.Mutex
	err error
}

// StartBuild inserts a build row and returns a log for its tasks.
func (d *DB) StartBuild(app string) (*BuildLog, error) {
	var id int64
	err := d.queryRow(
		`INSERT INTO builds (app, started_at) VALUES (?, ?) RETURNING id`,
		app, now(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("start build: %w", err)
	}
	return &BuildLog{db: d, id: id}, nil
}

// ID returns the build id.
func (l *BuildLog) ID() int64 {
	return l.id
}

// TaskFinished inserts a task_runs row. Insert errors are kept and returned
// by Finish.
func (l *BuildLog) TaskFinished(o pipeline.TaskOutcome) {
	var errText sql.NullString
	if o.Err != nil {
		errText = sql.NullString{String: o.Err.Error(), Valid: true}
	}
	_, err := l.db.exec(
		`INSERT INTO task_runs (build_id, component, step, kind, label, hash, outcome, fresh, duration_ms, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.id, o.Component, string(o.Step), string(o.Kind), o.Label, o.Hash, string(o.Outcome),
		o.Fresh, o.Duration.Milliseconds(), errText, now(),
	)
	if err != nil {
		l.mu.Lock()
		l.err = errors.Join(l.err, fmt.Errorf("log task run: %w", err))
		l.mu.Unlock()
	}
}

// Finish stores the report totals on the build row.
func (l *BuildLog) Finish(report *pipeline.Report) error {
	_, err := l.db.exec(
		`UPDATE builds SET duration_ms = ?, tasks = ?, built = ?, up_to_date = ?, failed = ?, finished = ? WHERE id = ?`,
		report.Duration.Milliseconds(), len(report.Tasks),
		report.Count(pipeline.OutcomeSuccess), report.Count(pipeline.OutcomeUpToDate), report.Count(pipeline.OutcomeFailure),
		true, l.id,
	)
	if err != nil {
		err = fmt.Errorf("finish build: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(l.err, err)
}

// RecentBuilds returns up to limit builds, newest first.
func (d *DB) RecentBuilds(limit int) ([]Build, error) {
	rows, err := d.query(
		`SELECT id, app, started_at, duration_ms, tasks, built, up_to_date, failed, finished
		 FROM builds ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.App, &b.StartedAt, &b.DurationMs, &b.Tasks, &b.Built, &b.UpToDate, &b.Failed, &b.Finished); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// TaskRuns returns the tasks of a build in execution order.
func (d *DB) TaskRuns(buildID int64) ([]TaskRun, error) {
	rows, err := d.query(
		`SELECT id, build_id, component, step, kind, label, hash, outcome, fresh, duration_ms, error, timestamp
		 FROM task_runs WHERE build_id = ? ORDER BY id`,
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		var r TaskRun
		var label, hash, errText sql.NullString
		if err := rows.Scan(&r.ID, &r.BuildID, &r.Component, &r.Step, &r.Kind, &label, &hash,
			&r.Outcome, &r.Fresh, &r.DurationMs, &errText, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		r.Label, r.Hash, r.Error = label.String, hash.String, errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
