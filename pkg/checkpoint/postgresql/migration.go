package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create checkpoints table. approval defaults to pending for the
			-- whole run lifetime; suspended marks runs actually parked at the
			-- approval gate and is what Suspended/Resolve key on.
			CREATE TABLE checkpoints (
				workflow_id VARCHAR(255) PRIMARY KEY,
				approval VARCHAR(50) NOT NULL CHECK (approval IN ('pending', 'approved', 'denied', 'auto_approved', 'timed_out')),
				suspended BOOLEAN NOT NULL DEFAULT FALSE,
				state JSON NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_checkpoints_suspended ON checkpoints(suspended);
			CREATE INDEX idx_checkpoints_updated_at ON checkpoints(updated_at);
		`,
	}
}
