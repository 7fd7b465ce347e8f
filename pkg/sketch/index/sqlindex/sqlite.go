// Package sqlindex backs the sentence index with SQLite: a postings table
// keyed by (field, term, sentence_id) with varint-packed positions, a
// sentences table holding the per-sentence columns, and a meta table for
// build-time settings.
package sqlindex

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

type sqlIndex struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite-backed sentence index with WAL
// mode enabled.
func Open(ctx context.Context, path string) (index.Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open index db: %v", internalerr.ErrIndexIO, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %v", internalerr.ErrIndexIO, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init index schema: %v", internalerr.ErrIndexIO, err)
	}

	return &sqlIndex{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sentences (
	id INTEGER PRIMARY KEY,
	text TEXT NOT NULL,
	token_blob BLOB NOT NULL,
	lemma_blob BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
	field TEXT NOT NULL,
	term TEXT NOT NULL,
	sentence_id INTEGER NOT NULL,
	positions BLOB NOT NULL,
	PRIMARY KEY(field, term, sentence_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqlIndex) Close() error {
	return s.db.Close()
}

func (s *sqlIndex) Append(ctx context.Context, doc index.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin append: %v", internalerr.ErrIndexIO, err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(id) FROM sentences`).Scan(&last); err != nil {
		return fmt.Errorf("%w: read last sentence id: %v", internalerr.ErrIndexIO, err)
	}
	if last.Valid && doc.SentenceID <= uint32(last.Int64) {
		return fmt.Errorf("%w: sentence id %d not in insertion order", internalerr.ErrInvariant, doc.SentenceID)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sentences (id, text, token_blob, lemma_blob) VALUES (?, ?, ?, ?)
`, doc.SentenceID, doc.Text, doc.TokenBlob, doc.LemmaBlob); err != nil {
		return fmt.Errorf("%w: insert sentence %d: %v", internalerr.ErrIndexIO, doc.SentenceID, err)
	}

	// Collect per-term position lists before touching the postings table.
	type key struct {
		field index.Field
		term  string
	}
	occ := make(map[key][]uint32)
	for _, tok := range doc.Tokens {
		for field, term := range index.TermsOf(tok) {
			k := key{field, term}
			occ[k] = append(occ[k], uint32(tok.Position))
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO postings (field, term, sentence_id, positions) VALUES (?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("%w: prepare postings insert: %v", internalerr.ErrIndexIO, err)
	}
	defer stmt.Close()

	for k, positions := range occ {
		blob := corpus.EncodeLemmaIDs(nil, positions)
		if _, err := stmt.ExecContext(ctx, string(k.field), k.term, doc.SentenceID, blob); err != nil {
			return fmt.Errorf("%w: insert posting %s/%s: %v", internalerr.ErrIndexIO, k.field, k.term, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit append: %v", internalerr.ErrIndexIO, err)
	}
	return nil
}

func (s *sqlIndex) PutMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value;
`, key, value)
	if err != nil {
		return fmt.Errorf("%w: put meta %s: %v", internalerr.ErrIndexIO, key, err)
	}
	return nil
}

func (s *sqlIndex) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get meta %s: %v", internalerr.ErrIndexIO, key, err)
	}
	return value, nil
}

func (s *sqlIndex) Postings(ctx context.Context, field index.Field, term string) ([]index.Posting, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sentence_id, positions FROM postings
WHERE field=? AND term=?
ORDER BY sentence_id;
`, string(field), index.NormalizeTerm(term))
	if err != nil {
		return nil, fmt.Errorf("%w: query postings %s/%s: %v", internalerr.ErrIndexIO, field, term, err)
	}
	defer rows.Close()

	var out []index.Posting
	for rows.Next() {
		var id uint32
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan posting: %v", internalerr.ErrIndexIO, err)
		}
		positions, err := corpus.DecodeLemmaIDs(blob)
		if err != nil {
			return nil, fmt.Errorf("posting positions for %s/%s: %w", field, term, err)
		}
		out = append(out, index.Posting{SentenceID: id, Positions: positions})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate postings: %v", internalerr.ErrIndexIO, err)
	}
	return out, nil
}

func (s *sqlIndex) Sentence(ctx context.Context, id uint32) (index.Stored, error) {
	var st index.Stored
	err := s.db.QueryRowContext(ctx, `
SELECT id, text, token_blob, lemma_blob FROM sentences WHERE id=?;
`, id).Scan(&st.ID, &st.Text, &st.TokenBlob, &st.LemmaBlob)
	if err == sql.ErrNoRows {
		return index.Stored{}, fmt.Errorf("%w: sentence %d not found", internalerr.ErrInvariant, id)
	}
	if err != nil {
		return index.Stored{}, fmt.Errorf("%w: load sentence %d: %v", internalerr.ErrIndexIO, id, err)
	}
	return st, nil
}

func (s *sqlIndex) SentenceCount(ctx context.Context) (uint32, error) {
	var n uint32
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sentences`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count sentences: %v", internalerr.ErrIndexIO, err)
	}
	return n, nil
}
