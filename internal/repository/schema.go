package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('admin', 'user')),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trains (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	source          TEXT NOT NULL,
	destination     TEXT NOT NULL,
	total_seats     INTEGER NOT NULL CHECK (total_seats >= 1),
	available_seats INTEGER NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (available_seats >= 0 AND available_seats <= total_seats)
);

CREATE INDEX IF NOT EXISTS trains_route_idx ON trains (source, destination);

CREATE TABLE IF NOT EXISTS bookings (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL REFERENCES users (id),
	train_id    BIGINT NOT NULL REFERENCES trains (id),
	seat_number INTEGER NOT NULL CHECK (seat_number >= 1),
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (train_id, seat_number)
);

CREATE INDEX IF NOT EXISTS bookings_user_idx ON bookings (user_id, created_at, id);
`

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
