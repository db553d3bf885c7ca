package sqlite

const schema = `
-- Work items table
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    parent_id TEXT REFERENCES items(id) ON DELETE CASCADE,
    depth INTEGER NOT NULL DEFAULT 0 CHECK(depth >= 0 AND depth <= 2),
    title TEXT NOT NULL CHECK(length(title) <= 500),
    summary TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'queue' CHECK(role IN ('queue','work','review','blocked','terminal')),
    status_label TEXT NOT NULL DEFAULT '',
    previous_role TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('high','medium','low')),
    complexity INTEGER NOT NULL DEFAULT 5 CHECK(complexity >= 1 AND complexity <= 10),
    requires_verification INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    role_changed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    version INTEGER NOT NULL DEFAULT 1,
    CHECK((depth = 0) = (parent_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id);
CREATE INDEX IF NOT EXISTS idx_items_role ON items(role);
CREATE INDEX IF NOT EXISTS idx_items_priority ON items(priority);
CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
CREATE INDEX IF NOT EXISTS idx_items_modified_at ON items(modified_at);

-- Dependencies table (typed directed edges)
CREATE TABLE IF NOT EXISTS dependencies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    to_item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    type TEXT NOT NULL DEFAULT 'BLOCKS' CHECK(type IN ('BLOCKS','IS_BLOCKED_BY','RELATES_TO')),
    unblock_at TEXT CHECK(unblock_at IN ('queue','work','review','terminal')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(from_item_id, to_item_id, type),
    CHECK(from_item_id <> to_item_id),
    CHECK(type <> 'RELATES_TO' OR unblock_at IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_from ON dependencies(from_item_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_to ON dependencies(to_item_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_to_type ON dependencies(to_item_id, type);

-- Notes table (schema-keyed attachments; (item_id, key) is the upsert key)
CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'work' CHECK(role IN ('queue','work','review','terminal')),
    body TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(item_id, key)
);

CREATE INDEX IF NOT EXISTS idx_notes_item ON notes(item_id);

-- Role transitions table (append-only audit trail; no FK so history
-- survives item deletion)
CREATE TABLE IF NOT EXISTS role_transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT 'item' CHECK(entity_type IN ('task','feature','project','item')),
    from_role TEXT NOT NULL,
    to_role TEXT NOT NULL,
    from_status TEXT NOT NULL DEFAULT '',
    to_status TEXT NOT NULL DEFAULT '',
    verb TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    transitioned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transitions_entity ON role_transitions(entity_id);
CREATE INDEX IF NOT EXISTS idx_transitions_at ON role_transitions(transitioned_at);

-- Child counters table (hierarchical ID generation)
CREATE TABLE IF NOT EXISTS child_counters (
    parent_id TEXT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
    last_child INTEGER NOT NULL DEFAULT 0
);

-- Config table (settings such as the item ID prefix)
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Metadata table (internal state)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Blocking edges view: collapses BLOCKS / IS_BLOCKED_BY into one
-- blocker -> blocked direction with the effective unblock threshold.
CREATE VIEW IF NOT EXISTS blocking_edges AS
SELECT to_item_id AS blocked_id, from_item_id AS blocker_id,
       COALESCE(unblock_at, 'terminal') AS unblock_at
FROM dependencies WHERE type = 'BLOCKS'
UNION ALL
SELECT from_item_id, to_item_id, COALESCE(unblock_at, 'terminal')
FROM dependencies WHERE type = 'IS_BLOCKED_BY';

-- Open blockers view: edges whose blocker has not yet reached the edge's
-- unblock threshold. Blocked ranks below every threshold, so a blocked
-- blocker never satisfies one.
CREATE VIEW IF NOT EXISTS open_blockers AS
SELECT e.blocked_id, e.blocker_id, e.unblock_at,
       b.role AS blocker_role, b.title AS blocker_title
FROM blocking_edges e
JOIN items b ON b.id = e.blocker_id
WHERE (CASE b.role
         WHEN 'queue' THEN 0 WHEN 'work' THEN 1
         WHEN 'review' THEN 2 WHEN 'terminal' THEN 3 ELSE -1 END)
    < (CASE e.unblock_at
         WHEN 'queue' THEN 0 WHEN 'work' THEN 1
         WHEN 'review' THEN 2 ELSE 3 END);
`
