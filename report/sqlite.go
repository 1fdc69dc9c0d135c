package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/iti/tsnlat"
)

const storeSchema = `CREATE TABLE IF NOT EXISTS bounds(
	scenario TEXT, run TEXT, flow TEXT, formula TEXT, total REAL, failure TEXT, hops TEXT, ts INTEGER);
CREATE INDEX IF NOT EXISTS idx_bounds_run ON bounds(scenario, run);`

// Record is one stored outcome
type Record struct {
	Scenario string
	Run      string
	Flow     string
	Formula  string
	Total    float64
	Failure  string
	Hops     []tsnlat.HopResult
	Time     time.Time
}

// Store keeps analysis outcomes in a sqlite database
type Store struct {
	db *sql.DB
}

// OpenStore opens, creating it if needed, the sqlite database at path
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite open %s", path)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "sqlite ping %s", path)
	}
	if _, err := db.ExecContext(ctx, storeSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite init schema")
	}
	return &Store{db: db}, nil
}

// Save stores the outcomes of one run of a scenario
func (st *Store) Save(ctx context.Context, scenario, run string, outcomes []tsnlat.FlowOutcome, now time.Time) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite begin")
	}
	for _, outcome := range outcomes {
		var total float64
		var failure string
		hops := []byte("[]")
		if outcome.Err != nil {
			failure = outcome.Err.Error()
		} else {
			total = outcome.Result.Total
			if hops, err = json.Marshal(outcome.Result.Hops); err != nil {
				_ = tx.Rollback()
				return errors.Wrapf(err, "encoding hops of flow %s", outcome.FlowID)
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO bounds(scenario, run, flow, formula, total, failure, hops, ts) VALUES(?,?,?,?,?,?,?,?)`,
			scenario, run, outcome.FlowID, outcome.Formula, total, failure, string(hops), now.UnixNano())
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "storing flow %s formula %s", outcome.FlowID, outcome.Formula)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite commit")
}

// Load returns the records of one run of a scenario, in the order they were saved
func (st *Store) Load(ctx context.Context, scenario, run string) ([]Record, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT flow, formula, total, failure, hops, ts FROM bounds WHERE scenario=? AND run=? ORDER BY rowid`,
		scenario, run)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query")
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec := Record{Scenario: scenario, Run: run}
		var hops string
		var ts int64
		if err := rows.Scan(&rec.Flow, &rec.Formula, &rec.Total, &rec.Failure, &hops, &ts); err != nil {
			return nil, errors.Wrap(err, "sqlite scan")
		}
		if err := json.Unmarshal([]byte(hops), &rec.Hops); err != nil {
			return nil, errors.Wrapf(err, "decoding hops of flow %s", rec.Flow)
		}
		rec.Time = time.Unix(0, ts)
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "sqlite rows")
}

// Close releases the database
func (st *Store) Close() error {
	return st.db.Close()
}
