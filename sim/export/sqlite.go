package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/aroellin/rstisim/sim"
)

// table is the layout of one snapshot table. Every table is keyed by run
// and snapshot number; old separates the dead from the living.
type table struct {
	name    string
	columns []string
}

func (t table) createSQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\trun_id TEXT NOT NULL,\n\tsnapshot INTEGER NOT NULL,\n\t%s\n)",
		t.name, strings.Join(t.columns, ",\n\t"))
}

func (t table) insertSQL() string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = strings.Fields(c)[0]
	}
	marks := strings.Repeat(", ?", len(names)+2)[2:]
	return fmt.Sprintf("INSERT INTO %s (run_id, snapshot, %s) VALUES (%s)", t.name, strings.Join(names, ", "), marks)
}

var (
	runsTable = `CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	seed INTEGER NOT NULL,
	model TEXT NOT NULL,
	created TEXT NOT NULL
)`
	binsTable = table{"bins", []string{"collection TEXT NOT NULL", "bin INTEGER NOT NULL", "label TEXT NOT NULL"}}

	snapshotsTable = table{"snapshots", []string{"time REAL NOT NULL"}}
	statsTable     = table{"statistics", []string{"name TEXT NOT NULL", "value REAL NOT NULL"}}

	peopleTable = table{"people", []string{
		"old INTEGER NOT NULL", "puid INTEGER NOT NULL", "adhocid INTEGER", "type INTEGER", "bin INTEGER",
		"birth REAL", "death REAL",
		"currentpartners INTEGER", "totalpartners INTEGER", "withinpartners INTEGER",
		"contacts INTEGER", "contactsunprot INTEGER",
		"pregnant INTEGER", "pregnancies INTEGER", "abortions INTEGER", "children INTEGER",
		"currentinfections INTEGER", "totalinfections INTEGER", "withininfections INTEGER",
		"treatments INTEGER", "visits INTEGER", "notifications INTEGER",
	}}
	partnershipsTable = table{"partnerships", []string{
		"old INTEGER NOT NULL", "psuid INTEGER NOT NULL", "adhocid1 INTEGER", "adhocid2 INTEGER",
		"puid1 INTEGER", "puid2 INTEGER", "type INTEGER", "bin INTEGER", "formertype INTEGER",
		"begintime REAL", "endtime REAL", "fitness REAL", "tries INTEGER",
		"contacts INTEGER", "contactsunprot INTEGER",
	}}
	infectionsTable = table{"infections", []string{
		"old INTEGER NOT NULL", "oldhost INTEGER NOT NULL", "infuid INTEGER NOT NULL", "strainid INTEGER",
		"parentinfuid INTEGER", "hostpuid INTEGER", "hostadhocid INTEGER", "type INTEGER", "bin INTEGER",
		"birth REAL", "endinfection REAL", "death REAL", "psuid INTEGER",
	}}
	notificationsTable = table{"notifications", []string{
		"old INTEGER NOT NULL", "notifiertype INTEGER", "id INTEGER", "link INTEGER", "time REAL",
		"sender INTEGER", "sendertype INTEGER", "senderbin INTEGER",
		"receiver INTEGER", "receivertype INTEGER", "receiverbin INTEGER",
		"psuid INTEGER", "pstype INTEGER", "psbin INTEGER",
	}}
	visitsTable = table{"visits", []string{
		"old INTEGER NOT NULL", "visittype INTEGER", "id INTEGER", "link INTEGER", "time REAL", "cause TEXT",
		"puid INTEGER", "persontype INTEGER", "personbin INTEGER",
		"directtreated INTEGER", "tested INTEGER", "positive INTEGER", "notifiertype INTEGER",
	}}

	snapshotTables = []table{
		binsTable, snapshotsTable, statsTable,
		peopleTable, partnershipsTable, infectionsTable, notificationsTable, visitsTable,
	}
)

// SQLiteWriter stores snapshots of one simulation run in a SQLite file.
// Several runs may share a file; their rows are told apart by run id.
type SQLiteWriter struct {
	db        *sql.DB
	path      string
	runID     string
	snapshots int
}

// OpenSQLite opens or creates the database at path and registers a new run
// of s. model names the configuration the run was built from.
func OpenSQLite(ctx context.Context, path string, s *sim.Simulator, model string) (*SQLiteWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	w := &SQLiteWriter{db: db, path: path, runID: uuid.NewString()}
	if err := w.init(ctx, s, model); err != nil {
		_ = db.Close()
		return nil, err
	}
	logrus.Infof("snapshot database %s, run %s", path, w.runID)
	return w, nil
}

func (w *SQLiteWriter) init(ctx context.Context, s *sim.Simulator, model string) (retErr error) {
	if _, err := w.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	for _, t := range snapshotTables {
		if _, err := w.db.ExecContext(ctx, t.createSQL()); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (run_id, seed, model, created) VALUES (?, ?, ?, ?)`,
		w.runID, s.Seed(), model, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	var bins [][]any
	for _, c := range []string{"person", "partnership", "infection"} {
		for i, label := range s.BinLabels(c) {
			bins = append(bins, []any{c, i, label})
		}
	}
	if err := w.insert(ctx, tx, binsTable, 0, bins); err != nil {
		return err
	}
	return tx.Commit()
}

// RunID returns the id the rows of this run are stored under.
func (w *SQLiteWriter) RunID() string { return w.runID }

// Snapshots returns the number of snapshots written so far.
func (w *SQLiteWriter) Snapshots() int { return w.snapshots }

// WriteSnapshot stores the complete state of s, living and dead, together
// with its statistics. A snapshot is written in a single transaction.
func (w *SQLiteWriter) WriteSnapshot(ctx context.Context, s *sim.Simulator) (retErr error) {
	st, err := s.Statistics()
	if err != nil {
		return err
	}
	batches, err := collect(s)
	if err != nil {
		return err
	}
	n := w.snapshots + 1

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := w.insert(ctx, tx, snapshotsTable, n, [][]any{{st.Time}}); err != nil {
		return err
	}
	fields := st.Fields()
	stats := make([][]any, len(fields))
	for i, f := range fields {
		stats[i] = []any{f.Name, f.Value}
	}
	if err := w.insert(ctx, tx, statsTable, n, stats); err != nil {
		return err
	}
	for _, b := range batches {
		if err := w.insert(ctx, tx, b.table, n, b.rows); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot %d: %w", n, err)
	}
	w.snapshots = n
	logrus.Debugf("t=%g: wrote snapshot %d to %s", st.Time, n, w.path)
	return nil
}

func (w *SQLiteWriter) insert(ctx context.Context, tx *sql.Tx, t table, snapshot int, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, t.insertSQL())
	if err != nil {
		return fmt.Errorf("prepare %s: %w", t.name, err)
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range rows {
		args := append([]any{w.runID, snapshot}, r...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", t.name, err)
		}
	}
	return nil
}

// Close closes the database.
func (w *SQLiteWriter) Close() error { return w.db.Close() }

// === Row conversion ===

type batch struct {
	table table
	rows  [][]any
}

func collect(s *sim.Simulator) ([]batch, error) {
	var out []batch
	for _, old := range []bool{false, true} {
		people, err := s.SnapshotPeople(old)
		if err != nil {
			return nil, err
		}
		out = append(out, batch{peopleTable, convert(people, func(r sim.PersonRow) []any {
			return []any{btoi(old), r.PUID, nullable(r.AdhocID), r.Type, r.Bin, r.Birth, r.Death,
				r.CurrentPartners, r.TotalPartners, r.WithinPartners, r.Contacts, r.ContactsUnprot,
				nullable(r.Pregnant), nullable(r.Pregnancies), nullable(r.Abortions), nullable(r.Children),
				r.CurrentInfections, r.TotalInfections, r.WithinInfections,
				r.Treatments, r.Visits, r.Notifications}
		})})

		ps, err := s.SnapshotPartnerships(old)
		if err != nil {
			return nil, err
		}
		out = append(out, batch{partnershipsTable, convert(ps, func(r sim.PartnershipRow) []any {
			return []any{btoi(old), r.PSUID, nullable(r.AdhocID1), nullable(r.AdhocID2), r.PUID1, r.PUID2,
				r.Type, r.Bin, r.FormerType, r.Begin, r.End, r.Fitness, r.Tries, r.Contacts, r.ContactsUnprot}
		})})

		for _, oldHost := range []bool{false, true} {
			infs, err := s.SnapshotInfections(old, oldHost)
			if err != nil {
				return nil, err
			}
			out = append(out, batch{infectionsTable, convert(infs, func(r sim.InfectionRow) []any {
				return []any{btoi(old), btoi(oldHost), r.InfUID, r.StrainID, nullable(r.ParentInfUID),
					r.HostPUID, nullable(r.HostAdhocID), r.Type, r.Bin, r.Birth,
					nullable(r.EndInfection), nullable(r.Death), nullable(r.PSUID)}
			})})
		}

		notifs, err := s.SnapshotNotifications(old)
		if err != nil {
			return nil, err
		}
		out = append(out, batch{notificationsTable, convert(notifs, func(r sim.NotificationRecord) []any {
			return []any{btoi(old), r.NotifierType, r.ID, r.Link, r.Time,
				r.Sender, r.SenderType, r.SenderBin, r.Receiver, r.ReceiverType, r.ReceiverBin,
				r.Partnership, r.PSType, r.PSBin}
		})})

		visits, err := s.SnapshotVisits(old)
		if err != nil {
			return nil, err
		}
		out = append(out, batch{visitsTable, convert(visits, func(r sim.VisitRecord) []any {
			var nt any
			if r.NotifierType >= 0 {
				nt = r.NotifierType
			}
			return []any{btoi(old), r.VisitType, r.ID, r.Link, r.Time, r.Cause.String(),
				r.Person, r.PersonType, r.PersonBin, r.DirectTreated, r.Tested, r.Positive, nt}
		})})
	}
	return out, nil
}

func convert[T any](rows []T, f func(T) []any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = f(r)
	}
	return out
}

// nullable maps a missing value to SQL NULL.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
