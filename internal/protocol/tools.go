package protocol

// toolDefinitions returns the six tool schemas the engine exposes (§6).
// Every field here is re-validated on call in the corresponding handler;
// the schema is advisory for clients, not a substitute for server-side
// validation.
func toolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "store_memory",
			Description: "Store a new memory, embedding its content for later semantic search",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"content": {
						Type:        "string",
						Description: "The memory content to store (max 1 MiB)",
					},
					"importance_score": {
						Type:        "number",
						Description: "Importance in [0,1]; defaults to 0.5",
						Minimum:     ptr(0),
						Maximum:     ptr(1),
					},
					"tier": {
						Type:        "string",
						Description: "Initial tier; defaults to working",
						Enum:        []string{"working", "warm", "cold", "frozen"},
					},
					"metadata": {
						Type:        "object",
						Description: "Arbitrary caller-supplied metadata",
					},
				},
				Required: []string{"content"},
			},
		},
		{
			Name:        "search_memory",
			Description: "Search memories by semantic similarity, recency, full text, or a weighted hybrid of all three",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "Query text, embedded for semantic/hybrid search and used verbatim for fulltext search",
					},
					"search_type": {
						Type:        "string",
						Description: "Search variant",
						Enum:        []string{"semantic", "temporal", "fulltext", "hybrid"},
						Default:     "hybrid",
					},
					"limit": {
						Type:        "integer",
						Description: "Maximum results, 1-1000",
						Default:     10,
						Minimum:     ptr(1),
						Maximum:     ptr(1000),
					},
					"threshold": {
						Type:        "number",
						Description: "Minimum score in [0,1]: similarity for semantic/fulltext/hybrid, recency for temporal, combined for hybrid without a query embedding",
						Minimum:     ptr(0),
						Maximum:     ptr(1),
					},
					"tier": {
						Type:        "string",
						Description: "Restrict to one tier",
						Enum:        []string{"working", "warm", "cold", "frozen"},
					},
					"time_range": {
						Type:        "object",
						Description: "Restrict to memories created within {start, end} RFC3339 timestamps",
					},
					"min_importance": {
						Type:        "number",
						Description: "Minimum importance_score in [0,1]",
						Minimum:     ptr(0),
						Maximum:     ptr(1),
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "get_memory",
			Description: "Retrieve a single memory by id",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id": {Type: "string", Description: "Memory UUID"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "delete_memory",
			Description: "Soft-delete a memory by id; requires explicit confirmation",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":      {Type: "string", Description: "Memory UUID"},
					"confirm": {Type: "boolean", Description: "Must be true to execute the delete"},
				},
				Required: []string{"id", "confirm"},
			},
		},
		{
			Name:        "migrate_memory",
			Description: "Move a memory to a different tier, subject to the tier transition table",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":          {Type: "string", Description: "Memory UUID"},
					"target_tier": {Type: "string", Description: "Destination tier", Enum: []string{"working", "warm", "cold", "frozen"}},
					"reason":      {Type: "string", Description: "Optional audit note"},
				},
				Required: []string{"id", "target_tier"},
			},
		},
		{
			Name:        "get_stats",
			Description: "Report per-tier memory counts and average scores",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{},
			},
		},
	}
}
