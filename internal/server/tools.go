package server

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions for the 13-tool surface. Argument shapes are documented in
// protocol.go; the schemas here keep descriptions short and let the handlers
// validate.

func manageItemsTool() mcp.Tool {
	return mcp.NewTool("manage_items",
		mcp.WithDescription("Create, update, or delete work items. Array-valued: every entry in items is processed in order."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: create, update, delete"),
		),
		mcp.WithArray("items",
			mcp.Required(),
			mcp.Description("Item payloads. create: title (required), parentId, summary, description, priority, complexity, tags, metadata. update: id, version plus fields to change. delete: id, recursive."),
		),
	)
}

func queryItemsTool() mcp.Tool {
	return mcp.NewTool("query_items",
		mcp.WithDescription("Read work items: get by IDs, filtered search with pagination, or hierarchical overview."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: get, search, overview"),
		),
		mcp.WithArray("ids",
			mcp.WithStringItems(),
			mcp.Description("get: item IDs to fetch"),
		),
		mcp.WithString("id", mcp.Description("overview: item ID; omit for the root rollup")),
		mcp.WithString("parentId", mcp.Description(`search: parent filter; "" selects roots`)),
		mcp.WithNumber("depth", mcp.Description("search: exact depth 0..2")),
		mcp.WithString("role", mcp.Description("search: role filter")),
		mcp.WithString("priority", mcp.Description("search: priority filter")),
		mcp.WithString("statusLabel", mcp.Description("search: status label filter")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("search: any-of tag filter")),
		mcp.WithString("query", mcp.Description("search: substring match on title and summary")),
		mcp.WithString("createdAfter", mcp.Description("search: ISO timestamp or relative expression like '3 days ago'")),
		mcp.WithString("createdBefore", mcp.Description("search: upper bound on creation time")),
		mcp.WithString("modifiedAfter", mcp.Description("search: lower bound on modification time")),
		mcp.WithString("modifiedBefore", mcp.Description("search: upper bound on modification time")),
		mcp.WithString("roleChangedAfter", mcp.Description("search: lower bound on the last role change")),
		mcp.WithString("roleChangedBefore", mcp.Description("search: upper bound on the last role change")),
		mcp.WithString("sortBy", mcp.Description("search: title, priority, complexity, createdAt, modifiedAt")),
		mcp.WithBoolean("sortDesc", mcp.Description("search: descending sort")),
		mcp.WithNumber("limit", mcp.Description("search: page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("search: page offset")),
		mcp.WithBoolean("includeAncestors", mcp.Description("search: attach ancestor chains")),
		mcp.WithBoolean("minimal", mcp.Description("search: return the minimal projection")),
		mcp.WithBoolean("includeChildren", mcp.Description("overview: list direct children")),
	)
}

func manageNotesTool() mcp.Tool {
	return mcp.NewTool("manage_notes",
		mcp.WithDescription("Upsert or delete notes. Upserts match on (itemId, key)."),
		mcp.WithString("action", mcp.Required(), mcp.Description("One of: upsert, delete")),
		mcp.WithString("itemId", mcp.Description("upsert: owning item")),
		mcp.WithString("key", mcp.Description("upsert: schema key")),
		mcp.WithString("role", mcp.Description("upsert: phase the note belongs to (default work)")),
		mcp.WithString("body", mcp.Description("upsert: note text")),
		mcp.WithNumber("id", mcp.Description("delete: note row ID")),
	)
}

func queryNotesTool() mcp.Tool {
	return mcp.NewTool("query_notes",
		mcp.WithDescription("List the notes attached to one item."),
		mcp.WithString("itemId", mcp.Required(), mcp.Description("Owning item")),
		mcp.WithString("role", mcp.Description("Filter by phase")),
		mcp.WithString("key", mcp.Description("Filter by key")),
		mcp.WithBoolean("metadataOnly", mcp.Description("Omit bodies")),
	)
}

func manageDependenciesTool() mcp.Tool {
	return mcp.NewTool("manage_dependencies",
		mcp.WithDescription("Create or delete typed dependency edges. Creation accepts individual edges or a pattern (linear, fan-out, fan-in); the whole batch is cycle-checked before any edge is written."),
		mcp.WithString("action", mcp.Required(), mcp.Description("One of: create, delete")),
		mcp.WithArray("dependencies",
			mcp.Description("Edges {from, to, type (BLOCKS default), unblockAt}. delete: exactly one entry naming the edge."),
		),
		mcp.WithObject("pattern",
			mcp.Description("create: {shape: linear|fan-out|fan-in, items: [ids...], unblockAt}"),
		),
	)
}

func queryDependenciesTool() mcp.Tool {
	return mcp.NewTool("query_dependencies",
		mcp.WithDescription("Inspect the dependency graph around one item."),
		mcp.WithString("itemId", mcp.Required(), mcp.Description("Seed item")),
		mcp.WithString("mode", mcp.Description("neighbors (default) or traverse")),
		mcp.WithNumber("maxDepth", mcp.Description("traverse: hop bound (default 3)")),
	)
}

func advanceItemTool() mcp.Tool {
	return mcp.NewTool("advance_item",
		mcp.WithDescription("Request role transitions by trigger. Single form: itemId + trigger. Batch form: transitions list applied in order inside one transaction."),
		mcp.WithString("itemId", mcp.Description("single: item to advance")),
		mcp.WithString("trigger", mcp.Description("single: start, complete, block, hold, resume, cancel")),
		mcp.WithString("summary", mcp.Description("optional audit summary")),
		mcp.WithArray("transitions", mcp.Description("batch: [{itemId, trigger, summary}]")),
	)
}

func getNextStatusTool() mcp.Tool {
	return mcp.NewTool("get_next_status",
		mcp.WithDescription("Read-only report of the triggers legal for an item right now, with gate and blocking analysis per trigger."),
		mcp.WithString("itemId", mcp.Required(), mcp.Description("Item to analyze")),
	)
}

func getNextItemTool() mcp.Tool {
	return mcp.NewTool("get_next_item",
		mcp.WithDescription("Recommend the single most actionable item: not blocked or terminal, no open blockers, highest priority, deepest first, oldest first."),
	)
}

func getBlockedItemsTool() mcp.Tool {
	return mcp.NewTool("get_blocked_items",
		mcp.WithDescription("List every item currently held by open dependency blockers, with the blockers and their roles."),
	)
}

func createWorkTreeTool() mcp.Tool {
	return mcp.NewTool("create_work_tree",
		mcp.WithDescription("Atomically create a root item, children, dependencies between them (refs; 'root' names the root), and optionally blank schema notes."),
		mcp.WithObject("root", mcp.Required(), mcp.Description("Root item spec {title, summary, priority, complexity, tags, ...}")),
		mcp.WithString("parentId", mcp.Description("Existing parent for the tree root")),
		mcp.WithArray("children", mcp.Description("Child specs, each with a unique ref")),
		mcp.WithArray("deps", mcp.Description("Edges between refs {from, to, type, unblockAt}")),
		mcp.WithBoolean("createNotes", mcp.Description("Create blank notes from each item's tag schema")),
	)
}

func completeTreeTool() mcp.Tool {
	return mcp.NewTool("complete_tree",
		mcp.WithDescription("Close a whole subtree in dependency order, leaves first. Partial commit: items already transitioned stay if a later one fails."),
		mcp.WithString("rootId", mcp.Description("Subtree root")),
		mcp.WithArray("rootIds", mcp.WithStringItems(), mcp.Description("Multiple subtree roots")),
		mcp.WithString("mode", mcp.Description("complete (default) or cancel")),
		mcp.WithString("summary", mcp.Description("optional audit summary")),
		mcp.WithBoolean("cleanupChildren", mcp.Description("Delete non-preserved terminal children under completed roots")),
	)
}

func getContextTool() mcp.Tool {
	return mcp.NewTool("get_context",
		mcp.WithDescription("Session-resume bundle for one item: the item, parent and children, notes with fill status, gate status, open blockers and legal triggers."),
		mcp.WithString("itemId", mcp.Required(), mcp.Description("Item to bundle")),
	)
}
