package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

type Database struct {
	*sql.DB
}

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewDatabase creates a new database connection
func NewDatabase(config Config) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")
	return &Database{db}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.DB.Close()
}

// Migrate creates the full pipeline schema: tracked players, tournament
// rosters/teams/rounds/schedule, the match ledger and its per-stage flags,
// extracted telemetry row families, fights, and career aggregates.
func (db *Database) Migrate() error {
	log.Println("🔄 running database migrations...")

	migrationSQL := `
CREATE TABLE IF NOT EXISTS tracked_players (
    player_id VARCHAR(64) PRIMARY KEY,
    player_name VARCHAR(64) NOT NULL,
    platform VARCHAR(16) NOT NULL,
    tracking_enabled BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS teams (
    team_ref VARCHAR(64) PRIMARY KEY,
    team_name VARCHAR(128) NOT NULL,
    division VARCHAR(32) NOT NULL,
    group_name VARCHAR(32),
    team_number INTEGER NOT NULL,
    active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS tournament_roster_entries (
    id BIGSERIAL PRIMARY KEY,
    player_name VARCHAR(64) NOT NULL,
    team_ref VARCHAR(64) NOT NULL REFERENCES teams(team_ref),
    preferred_team BOOLEAN NOT NULL DEFAULT false,
    primary_sample BOOLEAN NOT NULL DEFAULT false,
    sample_priority INTEGER NOT NULL DEFAULT 1,
    active BOOLEAN NOT NULL DEFAULT true
);

-- at most one preferred team per player (spec §3 TournamentRoster invariant)
CREATE UNIQUE INDEX IF NOT EXISTS idx_roster_one_preferred_per_player
    ON tournament_roster_entries (player_name) WHERE preferred_team;

CREATE TABLE IF NOT EXISTS rounds (
    round_ref VARCHAR(64) PRIMARY KEY,
    division VARCHAR(32) NOT NULL,
    group_name VARCHAR(32),
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS schedule_slots (
    slot_ref VARCHAR(64) PRIMARY KEY,
    round_ref VARCHAR(64) NOT NULL REFERENCES rounds(round_ref),
    scheduled_datetime TIMESTAMPTZ NOT NULL,
    map_name VARCHAR(32) NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
    match_id VARCHAR(64) PRIMARY KEY,
    map_name VARCHAR(32),
    game_mode VARCHAR(32),
    game_type VARCHAR(32),
    match_datetime TIMESTAMPTZ,
    duration INTEGER,
    telemetry_url TEXT,
    status VARCHAR(16) NOT NULL DEFAULT 'discovered',
    error_message TEXT,
    is_tournament_match BOOLEAN NOT NULL DEFAULT false,
    discovered_by VARCHAR(16) NOT NULL,
    discovery_priority VARCHAR(16) NOT NULL DEFAULT 'normal',
    round_ref VARCHAR(64) REFERENCES rounds(round_ref),
    schedule_slot_ref VARCHAR(64) REFERENCES schedule_slots(slot_ref),
    validation_status VARCHAR(32),
    team_count INTEGER,
    unmatched_player_count INTEGER,

    summaries_processed BOOLEAN NOT NULL DEFAULT false,
    telemetry_downloaded BOOLEAN NOT NULL DEFAULT false,
    landings_processed BOOLEAN NOT NULL DEFAULT false,
    kills_processed BOOLEAN NOT NULL DEFAULT false,
    circles_processed BOOLEAN NOT NULL DEFAULT false,
    weapons_processed BOOLEAN NOT NULL DEFAULT false,
    damage_processed BOOLEAN NOT NULL DEFAULT false,
    items_processed BOOLEAN NOT NULL DEFAULT false,
    advanced_processed BOOLEAN NOT NULL DEFAULT false,
    finishing_processed BOOLEAN NOT NULL DEFAULT false,
    fights_processed BOOLEAN NOT NULL DEFAULT false,
    stats_aggregated BOOLEAN NOT NULL DEFAULT false,
    stats_aggregated_at TIMESTAMPTZ,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
CREATE INDEX IF NOT EXISTS idx_matches_stats_aggregated ON matches(stats_aggregated);
CREATE INDEX IF NOT EXISTS idx_matches_match_datetime ON matches(match_datetime);

CREATE TABLE IF NOT EXISTS match_participants (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    participant_id VARCHAR(64) NOT NULL,
    player_id VARCHAR(64),
    player_name VARCHAR(64) NOT NULL,
    team_id INTEGER NOT NULL,
    team_rank INTEGER NOT NULL,
    won BOOLEAN NOT NULL,

    kills INTEGER DEFAULT 0,
    assists INTEGER DEFAULT 0,
    boosts INTEGER DEFAULT 0,
    heals INTEGER DEFAULT 0,
    damage_dealt DOUBLE PRECISION DEFAULT 0,
    dbnos INTEGER DEFAULT 0,
    death_type VARCHAR(32),
    headshot_kills INTEGER DEFAULT 0,
    kill_place INTEGER DEFAULT 0,
    longest_kill DOUBLE PRECISION DEFAULT 0,
    ride_distance DOUBLE PRECISION DEFAULT 0,
    road_kills INTEGER DEFAULT 0,
    swim_distance DOUBLE PRECISION DEFAULT 0,
    team_kills INTEGER DEFAULT 0,
    time_survived DOUBLE PRECISION DEFAULT 0,
    vehicle_destroys INTEGER DEFAULT 0,
    walk_distance DOUBLE PRECISION DEFAULT 0,
    weapons_acquired INTEGER DEFAULT 0,
    win_place INTEGER DEFAULT 0,

    -- telemetry-derived enhanced columns (spec §4.9 Phase 3); heals/boosts
    -- above already carry the upstream "used" counts, so only the
    -- telemetry-only breakdowns live here
    killsteals INTEGER DEFAULT 0,
    throwables_used INTEGER DEFAULT 0,
    smokes_thrown INTEGER DEFAULT 0,
    throwable_damage DOUBLE PRECISION DEFAULT 0,
    damage_received DOUBLE PRECISION DEFAULT 0,
    avg_distance_from_center DOUBLE PRECISION,
    avg_distance_from_edge DOUBLE PRECISION,
    time_in_zone_pct DOUBLE PRECISION,

    PRIMARY KEY (match_id, participant_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_player_name ON match_participants(player_name);

CREATE TABLE IF NOT EXISTS landings (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    player_name VARCHAR(64) NOT NULL,
    x DOUBLE PRECISION NOT NULL,
    y DOUBLE PRECISION NOT NULL,
    event_time DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_landings_match_id ON landings(match_id);

CREATE TABLE IF NOT EXISTS kill_positions (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    dbno_id BIGINT,
    attacker_name VARCHAR(64),
    victim_name VARCHAR(64) NOT NULL,
    attacker_x DOUBLE PRECISION,
    attacker_y DOUBLE PRECISION,
    victim_x DOUBLE PRECISION,
    victim_y DOUBLE PRECISION,
    distance DOUBLE PRECISION,
    weapon_id VARCHAR(64),
    event_time DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kill_positions_match_id ON kill_positions(match_id);

CREATE TABLE IF NOT EXISTS knock_events (
    id BIGSERIAL PRIMARY KEY,
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    dbno_id BIGINT NOT NULL,
    attacker_name VARCHAR(64),
    victim_name VARCHAR(64) NOT NULL,
    weapon_id VARCHAR(64),
    attacker_x DOUBLE PRECISION,
    attacker_y DOUBLE PRECISION,
    attacker_z DOUBLE PRECISION,
    victim_x DOUBLE PRECISION,
    victim_y DOUBLE PRECISION,
    victim_z DOUBLE PRECISION,
    distance DOUBLE PRECISION,
    event_time DOUBLE PRECISION NOT NULL,
    outcome VARCHAR(16) NOT NULL DEFAULT 'unknown',
    finisher_name VARCHAR(64),
    finisher_is_self BOOLEAN NOT NULL DEFAULT false,
    finisher_is_teammate BOOLEAN NOT NULL DEFAULT false,
    time_to_finish DOUBLE PRECISION,
    nearest_teammate_distance DOUBLE PRECISION,
    mean_teammate_distance DOUBLE PRECISION,
    teammates_within_50m INTEGER DEFAULT 0,
    teammates_within_100m INTEGER DEFAULT 0,
    teammates_within_200m INTEGER DEFAULT 0,
    team_spread_variance DOUBLE PRECISION,
    alive_teammates INTEGER DEFAULT 0,
    teammate_distances DOUBLE PRECISION[]
);
CREATE INDEX IF NOT EXISTS idx_knock_events_match_id ON knock_events(match_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_knock_events_dbno ON knock_events(match_id, dbno_id);

CREATE TABLE IF NOT EXISTS damage_events (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    attacker_name VARCHAR(64),
    victim_name VARCHAR(64) NOT NULL,
    weapon_id VARCHAR(64),
    damage DOUBLE PRECISION NOT NULL,
    damage_type_category VARCHAR(32),
    event_time DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_damage_events_match_id ON damage_events(match_id);

CREATE TABLE IF NOT EXISTS weapon_kill_events (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    killer_name VARCHAR(64),
    victim_name VARCHAR(64) NOT NULL,
    weapon_id VARCHAR(64) NOT NULL,
    weapon_category VARCHAR(32),
    distance DOUBLE PRECISION,
    event_time DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_weapon_kill_events_match_id ON weapon_kill_events(match_id);

CREATE TABLE IF NOT EXISTS circle_positions (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    player_name VARCHAR(64) NOT NULL,
    phase INTEGER NOT NULL,
    player_x DOUBLE PRECISION NOT NULL,
    player_y DOUBLE PRECISION NOT NULL,
    center_x DOUBLE PRECISION NOT NULL,
    center_y DOUBLE PRECISION NOT NULL,
    radius DOUBLE PRECISION NOT NULL,
    distance_from_center DOUBLE PRECISION NOT NULL,
    distance_from_edge DOUBLE PRECISION NOT NULL,
    in_zone BOOLEAN NOT NULL,
    event_time DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_circle_positions_match_id ON circle_positions(match_id);

CREATE TABLE IF NOT EXISTS player_weapon_stats (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    player_name VARCHAR(64) NOT NULL,
    weapon_category VARCHAR(16) NOT NULL,
    kills INTEGER NOT NULL DEFAULT 0,
    damage DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (match_id, player_name, weapon_category)
);

CREATE TABLE IF NOT EXISTS knock_distance_histograms (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    player_name VARCHAR(64) NOT NULL,
    bucket VARCHAR(16) NOT NULL,
    knock_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (match_id, player_name, bucket)
);

CREATE TABLE IF NOT EXISTS teammate_support_histograms (
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    player_name VARCHAR(64) NOT NULL,
    bucket VARCHAR(16) NOT NULL,
    knock_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (match_id, player_name, bucket)
);

CREATE TABLE IF NOT EXISTS fights (
    id BIGSERIAL PRIMARY KEY,
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    start_time DOUBLE PRECISION NOT NULL,
    end_time DOUBLE PRECISION NOT NULL,
    duration DOUBLE PRECISION NOT NULL,
    teams TEXT[] NOT NULL,
    primary_pair TEXT[],
    third_party_teams TEXT[],
    center_x DOUBLE PRECISION,
    center_y DOUBLE PRECISION,
    spread_radius DOUBLE PRECISION,
    total_knocks INTEGER NOT NULL DEFAULT 0,
    total_kills INTEGER NOT NULL DEFAULT 0,
    total_damage DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_damage_events INTEGER NOT NULL DEFAULT 0,
    total_attack_events INTEGER NOT NULL DEFAULT 0,
    outcome VARCHAR(16) NOT NULL,
    winning_team VARCHAR(64),
    losing_team VARCHAR(64),
    team_outcomes JSONB NOT NULL,
    fight_reason VARCHAR(32) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fights_match_id ON fights(match_id);

CREATE TABLE IF NOT EXISTS fight_participants (
    fight_id BIGINT NOT NULL REFERENCES fights(id) ON DELETE CASCADE,
    match_id VARCHAR(64) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
    player_name VARCHAR(64) NOT NULL,
    team_ref VARCHAR(64),
    knocks_dealt INTEGER NOT NULL DEFAULT 0,
    kills_dealt INTEGER NOT NULL DEFAULT 0,
    damage_dealt DOUBLE PRECISION NOT NULL DEFAULT 0,
    damage_taken DOUBLE PRECISION NOT NULL DEFAULT 0,
    attacks_made INTEGER NOT NULL DEFAULT 0,
    mean_x DOUBLE PRECISION,
    mean_y DOUBLE PRECISION,
    was_knocked BOOLEAN NOT NULL DEFAULT false,
    was_killed BOOLEAN NOT NULL DEFAULT false,
    survived BOOLEAN NOT NULL DEFAULT false,
    knocked_at DOUBLE PRECISION,
    killed_at DOUBLE PRECISION,
    PRIMARY KEY (fight_id, player_name)
);

CREATE TABLE IF NOT EXISTS career_aggregates (
    player_name VARCHAR(64) NOT NULL,
    match_type_class VARCHAR(16) NOT NULL,
    matches_count INTEGER NOT NULL DEFAULT 0,
    kills INTEGER NOT NULL DEFAULT 0,
    assists INTEGER NOT NULL DEFAULT 0,
    damage_dealt DOUBLE PRECISION NOT NULL DEFAULT 0,
    wins INTEGER NOT NULL DEFAULT 0,
    top10s INTEGER NOT NULL DEFAULT 0,
    time_survived DOUBLE PRECISION NOT NULL DEFAULT 0,
    headshot_kills INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (player_name, match_type_class)
);
`

	_, err := db.Exec(migrationSQL)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("✅ database migrations completed successfully")
	return nil
}

// Health checks the database connection
func (db *Database) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}
