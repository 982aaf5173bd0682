package sqlite

const schemaSQL = `
-- Projects: the parents of crawl runs. The engine reads these; CRUD belongs
-- to the control plane.
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	start_url TEXT NOT NULL,
	domain TEXT NOT NULL,
	settings_json TEXT NOT NULL DEFAULT '{}',
	schedule TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Crawl runs: the unit of work and isolation.
CREATE TABLE IF NOT EXISTS crawl_runs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	settings_json TEXT NOT NULL DEFAULT '{}',
	totals_json TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	finished_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_runs_project ON crawl_runs(project_id, created_at DESC);

-- At most one run per project may be QUEUED or RUNNING.
CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_one_active
	ON crawl_runs(project_id) WHERE status IN ('QUEUED', 'RUNNING');

-- Pages: one per unique normalized URL per run.
CREATE TABLE IF NOT EXISTS pages (
	id TEXT PRIMARY KEY,
	crawl_run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	normalized_url TEXT NOT NULL,
	status_code INTEGER,
	content_type TEXT,
	title TEXT,
	meta_description TEXT,
	h1_count INTEGER NOT NULL DEFAULT 0,
	canonical TEXT,
	robots_meta TEXT,
	word_count INTEGER,
	redirect_chain_json TEXT NOT NULL DEFAULT '[]',
	template_signature_hash TEXT,
	template_signature_json TEXT,
	template_id TEXT,
	fetch_error TEXT,
	discovered_at INTEGER NOT NULL,
	UNIQUE(crawl_run_id, normalized_url)
);

CREATE INDEX IF NOT EXISTS idx_pages_run_status ON pages(crawl_run_id, status_code);
CREATE INDEX IF NOT EXISTS idx_pages_run_signature ON pages(crawl_run_id, template_signature_hash);

-- Links: the outbound edge list. Multiplicities are preserved.
CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	crawl_run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
	from_page_id TEXT,
	to_url TEXT NOT NULL,
	to_normalized_url TEXT,
	link_type TEXT NOT NULL,
	is_broken INTEGER NOT NULL DEFAULT 0,
	status_code INTEGER
);

CREATE INDEX IF NOT EXISTS idx_links_run_target ON links(crawl_run_id, link_type, to_normalized_url);

-- Issues: per-page (page_id set) and global (page_id NULL) findings.
CREATE TABLE IF NOT EXISTS issues (
	id TEXT PRIMARY KEY,
	crawl_run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
	page_id TEXT,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	evidence_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_issues_run_type ON issues(crawl_run_id, type);

-- Templates: clusters of pages sharing a structural signature.
CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	crawl_run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
	signature_hash TEXT NOT NULL,
	signature_json TEXT NOT NULL,
	sample_page_id TEXT,
	page_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE(crawl_run_id, signature_hash)
);
`
