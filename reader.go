package pidcalib

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// DefaultChunkSize bounds the number of events held in memory per batch.
// Large enough to amortize query overhead, small enough that peak memory
// does not scale with the dataset.
const DefaultChunkSize = 65536

// DefaultEventTable is the table holding the per-event rows of a sample
// file.
const DefaultEventTable = "calib"

// SampleReader streams one SQLite sample file as a sequence of bounded
// Batch chunks. Open it with OpenSample, range over ScanChunks, then
// check Err.
type SampleReader struct {
	path      string
	db        *sql.DB
	table     string
	columns   []string
	weightCol string
	chunkSize int
	err       error
}

// OpenSample opens a sample file and verifies that the required columns
// exist, returning a DataSourceError naming the missing ones otherwise.
// weightCol may be absent from the table, in which case every event gets
// unit weight. chunkSize <= 0 selects DefaultChunkSize.
func OpenSample(path, table string, columns []string, weightCol string, chunkSize int) (*SampleReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DataSourceError{Path: path, Err: err}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &DataSourceError{Path: path, Err: err}
	}
	if table == "" {
		table = DefaultEventTable
	}
	present, err := tableColumns(db, table)
	if err != nil {
		db.Close()
		return nil, &DataSourceError{Path: path, Err: err}
	}
	var missing []string
	for _, col := range columns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		db.Close()
		return nil, &DataSourceError{Path: path, Missing: missing}
	}
	if !present[weightCol] {
		weightCol = ""
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SampleReader{
		path:      path,
		db:        db,
		table:     table,
		columns:   append([]string(nil), columns...),
		weightCol: weightCol,
		chunkSize: chunkSize,
	}, nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q not found", table)
	}
	return cols, nil
}

// ScanChunks returns a channel of batches read from the file. The channel
// is closed when the file is exhausted, the context is cancelled, or an
// error occurs; Err reports the outcome. The single-slot buffer lets the
// next chunk be read while the previous one is being histogrammed.
func (r *SampleReader) ScanChunks(ctx context.Context) <-chan *Batch {
	out := make(chan *Batch, 1)
	go func() {
		defer close(out)
		r.err = r.scan(ctx, out)
	}()
	return out
}

func (r *SampleReader) scan(ctx context.Context, out chan<- *Batch) error {
	selectCols := append([]string(nil), r.columns...)
	if r.weightCol != "" {
		selectCols = append(selectCols, r.weightCol)
	}
	query := "SELECT "
	for i, col := range selectCols {
		if i > 0 {
			query += ", "
		}
		query += `"` + col + `"`
	}
	query += ` FROM "` + r.table + `"`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return &DataSourceError{Path: r.path, Err: err}
	}
	defer rows.Close()

	batch := r.newChunk()
	n := 0
	vals := make([]float64, len(selectCols))
	ptrs := make([]interface{}, len(selectCols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return &DataSourceError{Path: r.path, Err: err}
		}
		for i, col := range r.columns {
			batch.cols[col] = append(batch.cols[col], vals[i])
		}
		if r.weightCol != "" {
			batch.weights = append(batch.weights, vals[len(vals)-1])
		} else {
			batch.weights = append(batch.weights, 1)
		}
		n++
		if n == r.chunkSize {
			batch.n = n
			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
			batch = r.newChunk()
			n = 0
		}
	}
	if err := rows.Err(); err != nil {
		return &DataSourceError{Path: r.path, Err: err}
	}
	if n > 0 {
		batch.n = n
		select {
		case out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *SampleReader) newChunk() *Batch {
	cols := make(map[string][]float64, len(r.columns))
	for _, col := range r.columns {
		cols[col] = make([]float64, 0, r.chunkSize)
	}
	return &Batch{cols: cols, weights: make([]float64, 0, r.chunkSize)}
}

// Err returns the terminal error of the scan, if any. Valid after the
// ScanChunks channel has been drained.
func (r *SampleReader) Err() error { return r.err }

// Close releases the underlying database handle.
func (r *SampleReader) Close() error { return r.db.Close() }

// WriteEffTable writes per-event efficiency and uncertainty series to a
// fresh SQLite file, one row per reference event in input order. The rows
// align with the reference sample by position, so the table can be joined
// back by rowid without touching the user's columns.
func WriteEffTable(path string, effs, errs []float64) error {
	if len(effs) != len(errs) {
		return fmt.Errorf("efficiency and uncertainty series differ in length: %d vs %d",
			len(effs), len(errs))
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE pid_eff (
		row_id       INTEGER PRIMARY KEY,
		PIDCalibEff  DOUBLE,
		PIDCalibErr  DOUBLE
	)`)
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO pid_eff (row_id, PIDCalibEff, PIDCalibErr) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i := range effs {
		if _, err := stmt.Exec(i, effs[i], errs[i]); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
