// Package paymentlog records a durable audit trail of settled payments. It is
// a write-behind concern only: a logging failure never undoes or blocks a
// settlement that has already gone final on-chain.
package paymentlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

// Entry is one settled-payment record.
type Entry struct {
	Endpoint         string
	Payer            string
	Asset            string
	Amount           string
	TxHash           string
	RequestMetadata  string
	ResponseMetadata string
	SettledAt        time.Time
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS payment_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint TEXT NOT NULL,
	payer TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	request_metadata TEXT,
	response_metadata TEXT,
	settled_at DATETIME NOT NULL
)`

// Logger writes settled-payment rows to a SQLite-backed dbx.DB.
type Logger struct {
	db  *dbx.DB
	log *slog.Logger
}

// Open connects to (and, if needed, creates) the SQLite database at path.
func Open(path string, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := dbx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.NewQuery(createTableSQL).Execute(); err != nil {
		db.Close()
		return nil, err
	}

	return &Logger{db: db, log: logger}, nil
}

// Close releases the underlying database handle.
func (l *Logger) Close() error {
	return l.db.Close()
}

// Record writes entry. Failures are logged, never returned — per the
// persistence contract, a log failure must not fail the HTTP response for a
// payment that has already settled on-chain.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if entry.SettledAt.IsZero() {
		entry.SettledAt = time.Now()
	}

	_, err := l.db.Insert("payment_log", dbx.Params{
		"endpoint":          entry.Endpoint,
		"payer":             entry.Payer,
		"asset":             entry.Asset,
		"amount":            entry.Amount,
		"tx_hash":           entry.TxHash,
		"request_metadata":  entry.RequestMetadata,
		"response_metadata": entry.ResponseMetadata,
		"settled_at":        entry.SettledAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		l.log.Warn("paymentlog: failed to record settled payment", "error", err, "tx_hash", entry.TxHash)
	}
}

// Recent returns the most recently settled entries, newest first, for
// operator inspection (e.g. a health/debug endpoint).
func (l *Logger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var rows []struct {
		Endpoint         string    `db:"endpoint"`
		Payer            string    `db:"payer"`
		Asset            string    `db:"asset"`
		Amount           string    `db:"amount"`
		TxHash           string    `db:"tx_hash"`
		RequestMetadata  string    `db:"request_metadata"`
		ResponseMetadata string    `db:"response_metadata"`
		SettledAt        time.Time `db:"settled_at"`
	}

	err := l.db.Select().
		From("payment_log").
		OrderBy("settled_at DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{
			Endpoint:         r.Endpoint,
			Payer:            r.Payer,
			Asset:            r.Asset,
			Amount:           r.Amount,
			TxHash:           r.TxHash,
			RequestMetadata:  r.RequestMetadata,
			ResponseMetadata: r.ResponseMetadata,
			SettledAt:        r.SettledAt,
		}
	}
	return out, nil
}
