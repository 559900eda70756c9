// Package graphmodel holds the data types shared by every component of the
// code graph engine: entities, relationships, files, embeddings, and the
// transient ParseResult produced by analyzers.
package graphmodel

import "time"

// EntityType enumerates the syntactic constructs an analyzer can emit.
type EntityType string

const (
	EntityFile      EntityType = "file"
	EntityModule    EntityType = "module"
	EntityClass     EntityType = "class"
	EntityInterface EntityType = "interface"
	EntityFunction  EntityType = "function"
	EntityMethod    EntityType = "method"
	EntityVariable  EntityType = "variable"
	EntityConstant  EntityType = "constant"
	EntityImport    EntityType = "import"
	EntityExport    EntityType = "export"
	EntityTypedef   EntityType = "typedef"
	EntityStruct    EntityType = "struct"
	EntityTrait     EntityType = "trait"
	EntityEnum      EntityType = "enum"
	EntityField     EntityType = "field"
	EntityMacro     EntityType = "macro"
	EntityProperty  EntityType = "property"
	EntityEvent     EntityType = "event"
	EntityExternal  EntityType = "external"
)

// RelationshipType enumerates the directed edges between entities.
type RelationshipType string

const (
	RelContains   RelationshipType = "contains"
	RelImports    RelationshipType = "imports"
	RelExports    RelationshipType = "exports"
	RelCalls      RelationshipType = "calls"
	RelReferences RelationshipType = "references"
	RelExtends    RelationshipType = "extends"
	RelImplements RelationshipType = "implements"
	RelDependsOn  RelationshipType = "depends_on"
)

// Position locates a byte offset in a file at line/column granularity.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Index  int `json:"byte_index"`
}

// Location is the half-open [Start,End) span an entity occupies.
type Location struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Entity is a node in the code graph.
type Entity struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            EntityType     `json:"type"`
	FilePath        string         `json:"file_path"`
	Location        Location       `json:"location"`
	Hash            string         `json:"hash"`
	Language        string         `json:"language"`
	SizeBytes       int64          `json:"size_bytes"`
	ComplexityScore float64        `json:"complexity_score"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Key returns the tuple that deterministically identifies this entity.
func (e *Entity) Key() EntityKey {
	return EntityKey{
		FilePath: e.FilePath,
		Type:     e.Type,
		Name:     e.Name,
		Start:    e.Location.Start.Index,
		End:      e.Location.End.Index,
	}
}

// EntityKey is the tuple EntityID derives an entity's ID from.
type EntityKey struct {
	FilePath string
	Type     EntityType
	Name     string
	Start    int
	End      int
}

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID        string           `json:"id"`
	FromID    string           `json:"from_id"`
	ToID      string           `json:"to_id"`
	Type      RelationshipType `json:"type"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Weight    float64          `json:"weight"`
	CreatedAt time.Time        `json:"created_at"`
}

// RelationshipKey is the tuple a relationship ID is derived from.
type RelationshipKey struct {
	FromID string
	ToID   string
	Type   RelationshipType
}

func (r *Relationship) Key() RelationshipKey {
	return RelationshipKey{FromID: r.FromID, ToID: r.ToID, Type: r.Type}
}

// EntityRef is a lightweight projection of Entity used in traversal and
// query results where the full row isn't needed.
type EntityRef struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// RelationshipRef is a lightweight projection of Relationship.
type RelationshipRef struct {
	ID   string           `json:"id"`
	Type RelationshipType `json:"type,omitempty"`
}

// FileInfo tracks whole-file indexing state for incremental runs.
type FileInfo struct {
	Path        string    `json:"path"`
	Hash        string    `json:"hash"`
	LastIndexed time.Time `json:"last_indexed"`
	EntityCount int       `json:"entity_count"`
}

// Embedding is a dense vector tied to an entity.
type Embedding struct {
	ID        string    `json:"id"`
	EntityID  string     `json:"entity_id"`
	Content   string     `json:"content"`
	Vector    []float32  `json:"vector"`
	ModelName string     `json:"model_name"`
	CreatedAt time.Time  `json:"created_at"`
}

// ParseError is a recoverable issue encountered while parsing; it never
// escalates into a hard failure of the file's ParseResult.
type ParseError struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// ParseResult is the transient output of an analyzer for a single file.
type ParseResult struct {
	FilePath      string            `json:"file_path"`
	Language      string            `json:"language"`
	Entities      []Entity          `json:"entities"`
	Relationships []Relationship    `json:"relationships"`
	Patterns      map[string]any    `json:"patterns,omitempty"`
	ContentHash   string            `json:"content_hash"`
	Timestamp     time.Time         `json:"timestamp"`
	ParseTimeMs   int64             `json:"parse_time_ms"`
	Errors        []ParseError      `json:"errors,omitempty"`
	Truncated     bool              `json:"truncated,omitempty"`
}
