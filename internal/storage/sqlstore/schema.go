package sqlstore

// sqliteSchema is the SQLite dialect of the schema. Timestamps are stored as
// TEXT in formatTime layout; ON DELETE behaviour is handled explicitly in Go.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_templates_tenant ON templates(tenant_id);

CREATE TABLE IF NOT EXISTS template_nodes (
    id TEXT PRIMARY KEY,
    template_id TEXT NOT NULL REFERENCES templates(id),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'task',
    sort_order INTEGER NOT NULL DEFAULT 0,
    parent_id TEXT,
    default_assignee TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_template_nodes_template ON template_nodes(template_id);

CREATE TABLE IF NOT EXISTS template_edges (
    template_id TEXT NOT NULL REFERENCES templates(id),
    dependent_id TEXT NOT NULL,
    prerequisite_id TEXT NOT NULL,
    PRIMARY KEY (dependent_id, prerequisite_id)
);

CREATE INDEX IF NOT EXISTS idx_template_edges_template ON template_edges(template_id);

CREATE TABLE IF NOT EXISTS instances (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    template_id TEXT,
    title TEXT NOT NULL,
    metadata TEXT,
    created_by TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    graph_version INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_tenant ON instances(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS instance_nodes (
    id TEXT PRIMARY KEY,
    instance_id TEXT NOT NULL REFERENCES instances(id),
    template_node_id TEXT,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'task',
    status TEXT NOT NULL,
    assignee TEXT NOT NULL DEFAULT '',
    parent_id TEXT,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instance_nodes_instance ON instance_nodes(instance_id);

CREATE TABLE IF NOT EXISTS instance_edges (
    instance_id TEXT NOT NULL REFERENCES instances(id),
    dependent_id TEXT NOT NULL REFERENCES instance_nodes(id),
    prerequisite_id TEXT NOT NULL REFERENCES instance_nodes(id),
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    PRIMARY KEY (dependent_id, prerequisite_id)
);

CREATE INDEX IF NOT EXISTS idx_instance_edges_instance ON instance_edges(instance_id);
CREATE INDEX IF NOT EXISTS idx_instance_edges_prerequisite ON instance_edges(prerequisite_id);

CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    instance_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    actor TEXT NOT NULL,
    action TEXT NOT NULL,
    details TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_instance ON audit_log(instance_id, id)
`

// mysqlSchema is the MySQL / Dolt sql-server dialect. Indexes are declared
// inline because MySQL has no CREATE INDEX IF NOT EXISTS.
const mysqlSchema = `
CREATE TABLE IF NOT EXISTS templates (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(128) NOT NULL,
    name VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    created_by VARCHAR(128) NOT NULL DEFAULT '',
    created_at DATETIME(6) NOT NULL,
    INDEX idx_templates_tenant (tenant_id)
);

CREATE TABLE IF NOT EXISTS template_nodes (
    id VARCHAR(64) PRIMARY KEY,
    template_id VARCHAR(64) NOT NULL,
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    kind VARCHAR(16) NOT NULL DEFAULT 'task',
    sort_order INT NOT NULL DEFAULT 0,
    parent_id VARCHAR(64),
    default_assignee VARCHAR(128) NOT NULL DEFAULT '',
    INDEX idx_template_nodes_template (template_id),
    CONSTRAINT fk_template_nodes_template FOREIGN KEY (template_id) REFERENCES templates(id)
);

CREATE TABLE IF NOT EXISTS template_edges (
    template_id VARCHAR(64) NOT NULL,
    dependent_id VARCHAR(64) NOT NULL,
    prerequisite_id VARCHAR(64) NOT NULL,
    PRIMARY KEY (dependent_id, prerequisite_id),
    INDEX idx_template_edges_template (template_id),
    CONSTRAINT fk_template_edges_template FOREIGN KEY (template_id) REFERENCES templates(id)
);

CREATE TABLE IF NOT EXISTS instances (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(128) NOT NULL,
    template_id VARCHAR(64),
    title VARCHAR(500) NOT NULL,
    metadata LONGTEXT,
    created_by VARCHAR(128) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    graph_version BIGINT NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_instances_tenant (tenant_id, created_at)
);

CREATE TABLE IF NOT EXISTS instance_nodes (
    id VARCHAR(64) PRIMARY KEY,
    instance_id VARCHAR(64) NOT NULL,
    template_node_id VARCHAR(64),
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    kind VARCHAR(16) NOT NULL DEFAULT 'task',
    status VARCHAR(16) NOT NULL,
    assignee VARCHAR(128) NOT NULL DEFAULT '',
    parent_id VARCHAR(64),
    sort_order INT NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_instance_nodes_instance (instance_id),
    CONSTRAINT fk_instance_nodes_instance FOREIGN KEY (instance_id) REFERENCES instances(id)
);

CREATE TABLE IF NOT EXISTS instance_edges (
    instance_id VARCHAR(64) NOT NULL,
    dependent_id VARCHAR(64) NOT NULL,
    prerequisite_id VARCHAR(64) NOT NULL,
    created_by VARCHAR(128) NOT NULL DEFAULT '',
    created_at DATETIME(6) NOT NULL,
    PRIMARY KEY (dependent_id, prerequisite_id),
    INDEX idx_instance_edges_instance (instance_id),
    INDEX idx_instance_edges_prerequisite (prerequisite_id),
    CONSTRAINT fk_instance_edges_dependent FOREIGN KEY (dependent_id) REFERENCES instance_nodes(id),
    CONSTRAINT fk_instance_edges_prerequisite FOREIGN KEY (prerequisite_id) REFERENCES instance_nodes(id)
);

CREATE TABLE IF NOT EXISTS audit_log (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    instance_id VARCHAR(64) NOT NULL,
    tenant_id VARCHAR(128) NOT NULL,
    actor VARCHAR(128) NOT NULL,
    action VARCHAR(32) NOT NULL,
    details LONGTEXT,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_audit_log_instance (instance_id, id)
)
`
