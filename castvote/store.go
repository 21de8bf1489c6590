package castvote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// schema is the DDL the pipeline's PostgresStore expects to already exist;
// it is never executed by this package, only documented here for
// deployment tooling to apply.
const schema = `
CREATE TABLE IF NOT EXISTS cast_vote_policies (
	election_id  TEXT PRIMARY KEY,
	max_revotes  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cast_votes (
	id            BIGSERIAL PRIMARY KEY,
	election_id   TEXT NOT NULL,
	voter_id      TEXT NOT NULL,
	area_id       TEXT NOT NULL,
	ballot_id     TEXT NOT NULL,
	content       BYTEA NOT NULL,
	signature     BYTEA NOT NULL,
	voter_ip      TEXT NOT NULL DEFAULT '',
	voter_country TEXT NOT NULL DEFAULT '',
	cast_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS cast_votes_by_voter ON cast_votes (election_id, voter_id);

-- The revote limit is enforced here, not in application code: a
-- BEFORE INSERT trigger sees every concurrent insert attempt for a voter
-- serialised by the transaction-scoped advisory lock it takes, which an app-level
-- count-then-insert check under READ COMMITTED cannot guarantee.
CREATE OR REPLACE FUNCTION enforce_max_revotes() RETURNS TRIGGER AS $$
DECLARE
	allowed INTEGER;
	cast_count INTEGER;
BEGIN
	PERFORM pg_advisory_xact_lock(hashtext(NEW.election_id), hashtext(NEW.voter_id));
	SELECT max_revotes INTO allowed FROM cast_vote_policies WHERE election_id = NEW.election_id;
	IF allowed IS NULL THEN
		allowed := 0;
	END IF;
	IF allowed > 0 THEN
		SELECT count(*) INTO cast_count FROM cast_votes
			WHERE election_id = NEW.election_id AND voter_id = NEW.voter_id AND area_id = NEW.area_id;
		IF cast_count >= allowed THEN
			RAISE EXCEPTION 'insert_failed_exceeds_allowed_revotes';
		END IF;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS cast_votes_max_revotes ON cast_votes;
CREATE TRIGGER cast_votes_max_revotes BEFORE INSERT ON cast_votes
	FOR EACH ROW EXECUTE FUNCTION enforce_max_revotes();
`

// isMaxRevotesViolation reports whether err is the pq error raised by the
// enforce_max_revotes trigger, mirroring insert_cast_vote.rs's approach of
// pattern-matching the database error message rather than a typed error.
func isMaxRevotesViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "insert_failed_exceeds_allowed_revotes")
}

// CastVoteRecord is one previously persisted cast vote, as returned by
// Tx.CastVotesByVoter for revote-policy enforcement.
type CastVoteRecord struct {
	AreaID string
}

// Tx is the transactional surface the pipeline's checks and the insert
// run against. Each Store.WithTx call is one READ COMMITTED transaction;
// the pipeline's other-area check and its insert run in separate calls.
type Tx interface {
	MaxRevotes(ctx context.Context, electionID string) (int, error)
	CastVotesByVoter(ctx context.Context, electionID, voterID string) ([]CastVoteRecord, error)
	InsertCastVote(ctx context.Context, cv CastVote) error
}

// Store runs fn inside one transaction, committing on a nil return and
// rolling back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// PostgresStore is the production Store, backed by a pooled
// database/sql.DB using the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against dsn. Callers own the
// pool's lifetime and should set MaxOpenConns/MaxIdleConns to match their
// deployment before serving traffic.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("castvote: open postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("castvote: begin transaction: %w", err)
	}
	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("castvote: commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) MaxRevotes(ctx context.Context, electionID string) (int, error) {
	var max int
	err := t.tx.QueryRowContext(ctx, `SELECT max_revotes FROM cast_vote_policies WHERE election_id = $1`, electionID).Scan(&max)
	if err == sql.ErrNoRows {
		return 0, nil // unset defaults to unlimited, matching max_revotes==0 semantics
	}
	if err != nil {
		return 0, fmt.Errorf("castvote: query max_revotes: %w", err)
	}
	return max, nil
}

func (t *pgTx) CastVotesByVoter(ctx context.Context, electionID, voterID string) ([]CastVoteRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT area_id FROM cast_votes WHERE election_id = $1 AND voter_id = $2`, electionID, voterID)
	if err != nil {
		return nil, fmt.Errorf("castvote: query cast votes: %w", err)
	}
	defer rows.Close()
	var out []CastVoteRecord
	for rows.Next() {
		var r CastVoteRecord
		if err := rows.Scan(&r.AreaID); err != nil {
			return nil, fmt.Errorf("castvote: scan cast vote: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertCastVote(ctx context.Context, cv CastVote) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cast_votes (election_id, voter_id, area_id, ballot_id, content, signature, voter_ip, voter_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cv.ElectionID, cv.VoterID, cv.AreaID, cv.BallotID, cv.Content, cv.Signature, cv.VoterIP, cv.VoterCountry)
	if err != nil {
		return fmt.Errorf("castvote: insert cast vote: %w", err)
	}
	return nil
}
