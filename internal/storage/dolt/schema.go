package dolt

// currentSchemaVersion is bumped whenever schema changes.
const currentSchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS config (
    ` + "`key`" + ` VARCHAR(255) PRIMARY KEY,
    ` + "`value`" + ` TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS folders (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    created_at DATETIME(6) NOT NULL
);

-- Plans. Decided authorization statuses are written only by ApplyDecision.
CREATE TABLE IF NOT EXISTS flight_plans (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    processing_status VARCHAR(32) NOT NULL DEFAULT 'unprocessed',
    authorization_status VARCHAR(32) NOT NULL DEFAULT 'none',
    scheduled_at DATETIME(6) NULL,
    authorization_document JSON NULL,
    airspace_context VARCHAR(255) NULL,
    authorization_message JSON NULL,
    trajectory_ref VARCHAR(1024) NULL,
    folder_id VARCHAR(64) NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_flight_plans_folder (folder_id),
    INDEX idx_flight_plans_status (processing_status, authorization_status),
    CONSTRAINT fk_flight_plans_folder FOREIGN KEY (folder_id) REFERENCES folders(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    plan_id VARCHAR(64) NOT NULL,
    event_type VARCHAR(32) NOT NULL,
    old_value TEXT,
    new_value TEXT,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_events_plan (plan_id),
    CONSTRAINT fk_events_plan FOREIGN KEY (plan_id) REFERENCES flight_plans(id) ON DELETE CASCADE
);
`
