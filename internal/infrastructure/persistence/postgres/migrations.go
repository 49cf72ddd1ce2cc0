// Package postgres implements the local PostgreSQL persistence layer for
// Growth Activity Hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESS MIRROR
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progress mirror table
-- Version: 001

-- Local read copy of remote progress records. The remote record store is
-- the system of record; rows here are refreshed by the sync job and are
-- safe to re-insert.
CREATE TABLE IF NOT EXISTS progress_mirror (
    id SERIAL PRIMARY KEY,
    record_id VARCHAR(100) NOT NULL DEFAULT '',
    student_id VARCHAR(100) NOT NULL,
    activity_id VARCHAR(100) NOT NULL,
    cycle INTEGER NOT NULL,
    time_spent_minutes INTEGER NOT NULL DEFAULT 0,
    word_count INTEGER NOT NULL DEFAULT 0,
    points_earned INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    synced_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- One mirror row per attempt; re-sync updates in place
    CONSTRAINT uq_progress_attempt UNIQUE (student_id, activity_id, cycle),

    -- Constraints for data integrity
    CONSTRAINT valid_cycle CHECK (cycle >= 1),
    CONSTRAINT valid_time_spent CHECK (time_spent_minutes >= 0),
    CONSTRAINT valid_word_count CHECK (word_count >= 0),
    CONSTRAINT valid_points CHECK (points_earned >= 0)
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_progress_mirror_student ON progress_mirror(student_id, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_progress_mirror_completed_at ON progress_mirror(completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_progress_mirror_activity ON progress_mirror(activity_id);
`

const migration001Down = `
DROP TABLE IF EXISTS progress_mirror;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ASSIGNMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create assignments table
-- Version: 002

-- Prescribed activities per student per cycle. A re-run of the
-- prescription command for the same cycle replaces the previous set.
CREATE TABLE IF NOT EXISTS assignments (
    id SERIAL PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL,
    cycle INTEGER NOT NULL,
    activity_id VARCHAR(100) NOT NULL,
    position INTEGER NOT NULL,
    assigned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_assignment UNIQUE (student_id, cycle, activity_id),
    CONSTRAINT valid_assignment_cycle CHECK (cycle >= 1),
    CONSTRAINT valid_position CHECK (position >= 0)
);

CREATE INDEX IF NOT EXISTS idx_assignments_student_cycle ON assignments(student_id, cycle);
CREATE INDEX IF NOT EXISTS idx_assignments_assigned_at ON assignments(assigned_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS assignments;
`
