package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(50) NOT NULL CHECK (trigger_type IN ('manual', 'webhook', 'schedule', 'event')),
				status VARCHAR(50) NOT NULL DEFAULT 'draft',
				graph_data JSONB NOT NULL DEFAULT '{}',
				tags JSONB NOT NULL DEFAULT '[]',
				settings JSONB NOT NULL DEFAULT '{}',
				metadata JSONB,
				is_active BOOLEAN NOT NULL DEFAULT false,
				webhook_path VARCHAR(255),
				webhook_secret VARCHAR(255),
				schedule_cron VARCHAR(255),
				execution_count BIGINT NOT NULL DEFAULT 0,
				success_count BIGINT NOT NULL DEFAULT 0,
				failure_count BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE UNIQUE INDEX idx_workflows_webhook_path ON workflows(webhook_path) WHERE webhook_path IS NOT NULL;

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				category VARCHAR(50) NOT NULL DEFAULT 'action',
				title VARCHAR(255) NOT NULL,
				position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
				position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
				config JSONB NOT NULL DEFAULT '{}',
				inputs JSONB NOT NULL DEFAULT '[]',
				outputs JSONB NOT NULL DEFAULT '[]',
				position INT NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_nodes_type ON workflow_nodes(node_type);
			CREATE INDEX idx_workflow_nodes_category ON workflow_nodes(category);

			CREATE TABLE workflow_connections (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				source_output INT NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				target_input INT NOT NULL,
				link_type VARCHAR(255),
				position INT NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);
		`,
		2: `
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_data JSONB NOT NULL DEFAULT '{}',
				triggered_by VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				node_results JSONB NOT NULL DEFAULT '{}',
				result_data JSONB,
				error_message TEXT,
				error_stack TEXT,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				retry_count INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 3,
				retry_of VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_created_at ON executions(created_at);

			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				seq BIGSERIAL,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255),
				node_type VARCHAR(255),
				node_title VARCHAR(255),
				level VARCHAR(20) NOT NULL,
				message TEXT NOT NULL,
				data JSONB,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id, seq);
		`,
		3: `
			CREATE TABLE schedules (
				name VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_workflow_id ON schedules(workflow_id);
		`,
	}
}
