package postgresql

// migrations returns the versioned schema for the PostgreSQL persistence.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				module VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_timing VARCHAR(50),
				trigger_config JSONB,
				watched_fields JSONB,
				conditions JSONB,
				priority INT NOT NULL DEFAULT 0,
				stop_on_first_match BOOLEAN NOT NULL DEFAULT FALSE,
				max_executions_per_day INT,
				run_once_per_record BOOLEAN NOT NULL DEFAULT FALSE,
				allow_manual_trigger BOOLEAN NOT NULL DEFAULT FALSE,
				delay_seconds INT NOT NULL DEFAULT 0,
				schedule_cron VARCHAR(255),
				active BOOLEAN NOT NULL DEFAULT TRUE,
				steps JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflows_active ON workflows(active);
			CREATE INDEX idx_workflows_trigger_type ON workflows(trigger_type);
			CREATE INDEX idx_workflows_priority ON workflows(priority DESC);
		`,
		2: `
			CREATE TABLE execution_runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				record_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				error TEXT,
				context JSONB NOT NULL,
				step_results JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_execution_runs_workflow ON execution_runs(workflow_id, started_at DESC);
			CREATE INDEX idx_execution_runs_record ON execution_runs(workflow_id, record_id, status);
		`,
		3: `
			CREATE TABLE workflow_stats (
				workflow_id VARCHAR(255) PRIMARY KEY,
				execution_count BIGINT NOT NULL DEFAULT 0,
				success_count BIGINT NOT NULL DEFAULT 0,
				failure_count BIGINT NOT NULL DEFAULT 0,
				last_run_at TIMESTAMP WITH TIME ZONE
			);
		`,
	}
}
