package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// CandidatesTable is the upsert target for FEC candidates.
var CandidatesTable = Table{
	Name:       "candidates",
	KeyColumns: []string{"candidate_id"},
	Columns: []string{
		"candidate_id",
		"name",
		"office",
		"party",
		"party_full",
		"state",
		"district",
		"incumbent_challenge",
		"incumbent_challenge_full",
		"candidate_status",
		"active_through",
		"cycles",
		"election_years",
		"federal_funds_flag",
		"has_raised_funds",
		"first_file_date",
		"last_f2_date",
		"last_file_date",
		"load_date",
	},
	CreatedColumn: "created_at",
	UpdatedColumn: "updated_at",
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS candidates (
  candidate_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  office CHAR(1) NOT NULL CHECK (office IN ('H', 'S', 'P')),
  party TEXT,
  party_full TEXT,
  state CHAR(2) NOT NULL,
  district CHAR(2),
  incumbent_challenge CHAR(1),
  incumbent_challenge_full TEXT,
  candidate_status CHAR(1),
  active_through INTEGER,
  cycles INTEGER[],
  election_years INTEGER[],
  federal_funds_flag BOOLEAN,
  has_raised_funds BOOLEAN,
  first_file_date DATE,
  last_f2_date DATE,
  last_file_date DATE,
  load_date TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_candidates_state_office ON candidates (state, office)`,
	`CREATE INDEX IF NOT EXISTS idx_candidates_cycles ON candidates USING gin (cycles)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS candidates (
  candidate_id TEXT PRIMARY KEY NOT NULL,
  name TEXT NOT NULL,
  office CHAR(1) NOT NULL CHECK (office IN ('H', 'S', 'P')),
  party TEXT,
  party_full TEXT,
  state CHAR(2) NOT NULL,
  district CHAR(2),
  incumbent_challenge CHAR(1),
  incumbent_challenge_full TEXT,
  candidate_status CHAR(1),
  active_through INTEGER,
  cycles TEXT,
  election_years TEXT,
  federal_funds_flag BOOLEAN,
  has_raised_funds BOOLEAN,
  first_file_date DATE,
  last_f2_date DATE,
  last_file_date DATE,
  load_date TIMESTAMP,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_candidates_state_office ON candidates (state, office)`,
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := sqliteSchema
	if s.dialect == Postgres {
		statements = postgresSchema
	}

	for i, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i+1, err)
		}
	}

	log.Info().
		Str("dialect", string(s.dialect)).
		Int("statements", len(statements)).
		Msg("Schema migrated")
	return nil
}
