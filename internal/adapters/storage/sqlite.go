package storage

// sqlite.go: ledger persistente en SQLite.
//
// Estrategia:
//   - `ledger`: una sola fila con los contadores globales.
//   - `races`: una fila por carrera; el estado completo va en `data` (JSON) y
//     las columnas sueltas solo sirven para consultar desde fuera.
//   - `wagers`: una fila por (carrera, participante, mercado).
//   - `race_history` + `claim_cursors`: historial cronológico por participante
//     y la posición del ClaimProcessor en él.
//   - `queue_entries`: colas completas; se reescriben en cada SaveQueues
//     (nunca pasan de unas decenas de filas).
// Cada Update es una transacción: un error de fn hace rollback de todo.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/derby/internal/domain"
	"github.com/alejandrodnm/derby/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    next_race_id   INTEGER NOT NULL,
    last_race_id   INTEGER NOT NULL DEFAULT 0,
    liability      INTEGER NOT NULL DEFAULT 0,
    house_edge_bps INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS races (
    id         INTEGER PRIMARY KEY,
    status     TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    liability  INTEGER NOT NULL DEFAULT 0,
    data       TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS wagers (
    race_id     INTEGER NOT NULL,
    participant TEXT    NOT NULL,
    bet_type    INTEGER NOT NULL,
    lane        INTEGER NOT NULL,
    stake       INTEGER NOT NULL,
    claimed     INTEGER NOT NULL DEFAULT 0,
    placed_at   INTEGER NOT NULL,
    PRIMARY KEY (race_id, participant, bet_type)
);

CREATE TABLE IF NOT EXISTS race_history (
    participant TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    race_id     INTEGER NOT NULL,
    PRIMARY KEY (participant, seq)
);

CREATE TABLE IF NOT EXISTS claim_cursors (
    participant TEXT PRIMARY KEY,
    next        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS queue_entries (
    queue      TEXT    NOT NULL,
    pos        INTEGER NOT NULL,
    seq        INTEGER NOT NULL,
    competitor INTEGER NOT NULL,
    owner      TEXT    NOT NULL,
    PRIMARY KEY (queue, pos)
);

CREATE TABLE IF NOT EXISTS queue_meta (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    next_seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_races_status  ON races(status);
CREATE INDEX IF NOT EXISTS idx_wagers_player ON wagers(participant);
`

const (
	queueMain     = "main"
	queuePriority = "priority"
)

// SQLiteStore implementa ports.Store usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer; además serializa las transacciones
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Update implementa ports.Store.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Update: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Update: commit: %w", err)
	}
	return nil
}

// View implementa ports.Store. La transacción siempre termina en rollback.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.View: begin tx: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqliteTx{tx: tx, readOnly: true})
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) writable(op string) error {
	if t.readOnly {
		return fmt.Errorf("storage.%s: %w", op, errReadOnly)
	}
	return nil
}

func (t *sqliteTx) Ledger(ctx context.Context) (domain.Ledger, error) {
	var l domain.Ledger
	err := t.tx.QueryRowContext(ctx,
		`SELECT next_race_id, last_race_id, liability, house_edge_bps FROM ledger WHERE id = 1`,
	).Scan(&l.NextRaceID, &l.LastRaceID, &l.Liability, &l.HouseEdgeBps)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ledger{}, nil
	}
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("storage.Ledger: %w", err)
	}
	l.Initialized = true
	return l, nil
}

func (t *sqliteTx) SaveLedger(ctx context.Context, l domain.Ledger) error {
	if err := t.writable("SaveLedger"); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger (id, next_race_id, last_race_id, liability, house_edge_bps)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			next_race_id   = excluded.next_race_id,
			last_race_id   = excluded.last_race_id,
			liability      = excluded.liability,
			house_edge_bps = excluded.house_edge_bps
	`, int64(l.NextRaceID), int64(l.LastRaceID), int64(l.Liability), int64(l.HouseEdgeBps))
	if err != nil {
		return fmt.Errorf("storage.SaveLedger: %w", err)
	}
	return nil
}

func (t *sqliteTx) Race(ctx context.Context, id uint64) (domain.Race, error) {
	var data string
	err := t.tx.QueryRowContext(ctx, `SELECT data FROM races WHERE id = ?`, int64(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Race{}, domain.ErrRaceNotFound
	}
	if err != nil {
		return domain.Race{}, fmt.Errorf("storage.Race: %w", err)
	}
	var r domain.Race
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return domain.Race{}, fmt.Errorf("storage.Race: decode %d: %w", id, err)
	}
	return r, nil
}

func (t *sqliteTx) SaveRace(ctx context.Context, r domain.Race) error {
	if err := t.writable("SaveRace"); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("storage.SaveRace: encode %d: %w", r.ID, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO races (id, status, created_at, liability, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status    = excluded.status,
			liability = excluded.liability,
			data      = excluded.data
	`, int64(r.ID), r.Status().String(), int64(r.Schedule.CreatedAt), int64(r.Liability), string(data))
	if err != nil {
		return fmt.Errorf("storage.SaveRace: %d: %w", r.ID, err)
	}
	return nil
}

func (t *sqliteTx) Wager(ctx context.Context, key domain.WagerKey) (domain.Wager, bool, error) {
	w := domain.Wager{RaceID: key.RaceID, Participant: key.Participant, BetType: key.BetType}
	var claimed int
	err := t.tx.QueryRowContext(ctx, `
		SELECT lane, stake, claimed, placed_at FROM wagers
		WHERE race_id = ? AND participant = ? AND bet_type = ?
	`, int64(key.RaceID), key.Participant.Hex(), int(key.BetType)).Scan(&w.Lane, &w.Stake, &claimed, &w.PlacedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wager{}, false, nil
	}
	if err != nil {
		return domain.Wager{}, false, fmt.Errorf("storage.Wager: %w", err)
	}
	w.Claimed = claimed == 1
	return w, true, nil
}

func (t *sqliteTx) SaveWager(ctx context.Context, w domain.Wager) error {
	if err := t.writable("SaveWager"); err != nil {
		return err
	}
	claimed := 0
	if w.Claimed {
		claimed = 1
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wagers (race_id, participant, bet_type, lane, stake, claimed, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(race_id, participant, bet_type) DO UPDATE SET
			claimed = excluded.claimed
	`, int64(w.RaceID), w.Participant.Hex(), int(w.BetType), int(w.Lane), int64(w.Stake), claimed, int64(w.PlacedAt))
	if err != nil {
		return fmt.Errorf("storage.SaveWager: %w", err)
	}
	return nil
}

func (t *sqliteTx) RaceHistory(ctx context.Context, p common.Address) ([]uint64, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT race_id FROM race_history WHERE participant = ? ORDER BY seq`, p.Hex())
	if err != nil {
		return nil, fmt.Errorf("storage.RaceHistory: query: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.RaceHistory: scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *sqliteTx) AppendRaceHistory(ctx context.Context, p common.Address, raceID uint64) error {
	if err := t.writable("AppendRaceHistory"); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO race_history (participant, seq, race_id)
		VALUES (?, (SELECT COUNT(*) FROM race_history WHERE participant = ?), ?)
	`, p.Hex(), p.Hex(), int64(raceID))
	if err != nil {
		return fmt.Errorf("storage.AppendRaceHistory: %w", err)
	}
	return nil
}

func (t *sqliteTx) Cursor(ctx context.Context, p common.Address) (int, error) {
	var next int
	err := t.tx.QueryRowContext(ctx, `SELECT next FROM claim_cursors WHERE participant = ?`, p.Hex()).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.Cursor: %w", err)
	}
	return next, nil
}

func (t *sqliteTx) SaveCursor(ctx context.Context, p common.Address, next int) error {
	if err := t.writable("SaveCursor"); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO claim_cursors (participant, next) VALUES (?, ?)
		ON CONFLICT(participant) DO UPDATE SET next = excluded.next
	`, p.Hex(), next)
	if err != nil {
		return fmt.Errorf("storage.SaveCursor: %w", err)
	}
	return nil
}

// Queues reconstruye ambas colas. Main vuelve con el head en 0.
func (t *sqliteTx) Queues(ctx context.Context) (domain.Queues, error) {
	var q domain.Queues
	err := t.tx.QueryRowContext(ctx, `SELECT next_seq FROM queue_meta WHERE id = 1`).Scan(&q.NextSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Queues{}, fmt.Errorf("storage.Queues: meta: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT queue, seq, competitor, owner FROM queue_entries ORDER BY queue, pos`)
	if err != nil {
		return domain.Queues{}, fmt.Errorf("storage.Queues: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			queue, owner string
			e            domain.QueueEntry
		)
		if err := rows.Scan(&queue, &e.Seq, &e.Competitor, &owner); err != nil {
			return domain.Queues{}, fmt.Errorf("storage.Queues: scan row: %w", err)
		}
		e.Owner = common.HexToAddress(owner)
		if queue == queuePriority {
			q.Priority = append(q.Priority, e)
		} else {
			q.Main = append(q.Main, e)
		}
	}
	return q, rows.Err()
}

func (t *sqliteTx) SaveQueues(ctx context.Context, q domain.Queues) error {
	if err := t.writable("SaveQueues"); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM queue_entries`); err != nil {
		return fmt.Errorf("storage.SaveQueues: clear: %w", err)
	}
	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO queue_entries (queue, pos, seq, competitor, owner) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveQueues: prepare: %w", err)
	}
	defer stmt.Close()

	insert := func(queue string, entries []domain.QueueEntry) error {
		for pos, e := range entries {
			if _, err := stmt.ExecContext(ctx, queue, pos, int64(e.Seq), int64(e.Competitor), e.Owner.Hex()); err != nil {
				return fmt.Errorf("storage.SaveQueues: insert %s/%d: %w", queue, pos, err)
			}
		}
		return nil
	}
	if err := insert(queueMain, q.Main[q.Head:]); err != nil {
		return err
	}
	if err := insert(queuePriority, q.Priority); err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO queue_meta (id, next_seq) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET next_seq = excluded.next_seq
	`, int64(q.NextSeq))
	if err != nil {
		return fmt.Errorf("storage.SaveQueues: meta: %w", err)
	}
	return nil
}
