// Package domain defines the core domain types and validation gate for the
// document RAG pipeline: documents, pages, chunks, traces, events, and
// conversations. It has no dependency on any external adapter.
package domain

import "time"

// DocumentStatus is the processing lifecycle state of a Document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusDone       DocumentStatus = "done"
	StatusFailed     DocumentStatus = "failed"
)

// DocumentKind is the declared file kind accepted at upload.
type DocumentKind string

const (
	KindPDF  DocumentKind = "pdf"
	KindPPTX DocumentKind = "pptx"
	KindPPT  DocumentKind = "ppt"
)

// ValidDocumentKinds enumerates the accepted upload kinds.
var ValidDocumentKinds = map[DocumentKind]bool{
	KindPDF:  true,
	KindPPTX: true,
	KindPPT:  true,
}

// Document is the descriptor for an uploaded artifact. (content_hash, group_id)
// is unique; status transitions are monotonic except done|failed -> pending on
// an explicit retry.
type Document struct {
	ID          int64
	DisplayName string
	ContentHash string // SHA-256 of bytes
	GroupID     int64
	ObjectKey   string
	// LocalPath is a fallback source the ingestion worker copies from when
	// ObjectKey is empty (spec §4.9) — set only for documents uploaded
	// before an object store was configured.
	LocalPath    string
	Status       DocumentStatus
	ErrorMessage string
	ChunkCount   int
	TaskHandle   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExtractionMethod tags which pipeline produced a page's text.
type ExtractionMethod string

const (
	MethodStructural ExtractionMethod = "structural"
	MethodVisionOCR  ExtractionMethod = "vision-ocr"
	MethodFallback   ExtractionMethod = "fallback"
)

// Table is an extracted table rendered as markdown.
type Table struct {
	Markdown string
	Rows     int
	Cols     int
}

// Image is an embedded raster image extracted from a page. Caption is filled
// in by the extractor's vision adapter; it is empty when no captioning model
// is configured.
type Image struct {
	Bytes   []byte
	Width   int
	Height  int
	Caption string
}

// Page is an ephemeral intermediate record produced by the Extractor. Pages
// exist only during ingestion; they are never persisted.
type Page struct {
	PageNumber      int // 1-based
	Text            string
	Tables          []Table
	Images          []Image
	ExtractionMethod ExtractionMethod
}

// ChunkType classifies the retrieval unit produced by the Chunker.
type ChunkType string

const (
	ChunkProse        ChunkType = "prose"
	ChunkTable        ChunkType = "table"
	ChunkSlide        ChunkType = "slide"
	ChunkImageCaption ChunkType = "image-caption"
)

// ChunkMetadata is the derived structured metadata carried on a Chunk's
// payload. All fields are optional; a zero value means "not extracted".
type ChunkMetadata struct {
	DocID            string
	Section          string
	VehicleModel     string
	ChassisNo        string
	TestDate         string
	TestType         string
	ComplianceStatus []string
	Standards        []string
	Keywords         []string
	PageNumber       int
}

// Chunk is the atomic retrieval unit: a span of text plus its payload.
// Tables are never split; slides are a single chunk unless exceptionally
// long; every chunk carries its group id so retrieval filters are
// authoritative.
type Chunk struct {
	ID               string // opaque, globally unique
	Text             string
	Type             ChunkType
	PageNumber       int
	DocumentID       int64
	GroupID          int64
	ExtractionMethod ExtractionMethod
	Metadata         ChunkMetadata
}

// EventType classifies an observability Event.
type EventType string

const (
	EventRequest    EventType = "request"
	EventEmbedding  EventType = "embedding"
	EventRetrieval  EventType = "retrieval"
	EventGeneration EventType = "generation"
	EventResponse   EventType = "response"
	EventUpload     EventType = "upload"
	EventReindex    EventType = "reindex"
	EventSystem     EventType = "system"
	EventError      EventType = "error"
)

// EventLevel is the severity of an Event.
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// EventStatus is the outcome recorded on an Event.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusError   EventStatus = "error"
)

// Event is a single append-only observability record. Ordering within a
// trace is by Timestamp.
type Event struct {
	ID          string
	Timestamp   time.Time // UTC, millisecond precision
	Type        EventType
	Level       EventLevel
	TraceID     string // may be empty
	UserID      *int64
	UserEmail   *string
	Message     string
	Query       string
	Response    string
	ChunksJSON  string
	LatencyMs   *float64
	TokenCount  *int
	Status      EventStatus
	ErrorDetail string
	Provider    string
	Model       string
}

// MessageRole distinguishes user from assistant turns.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Conversation is durable chat history owned by a user.
type Conversation struct {
	ID        int64
	UserID    int64
	Title     string
	GroupID   *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single turn within a Conversation.
type Message struct {
	ID             int64
	ConversationID int64
	Role           MessageRole
	Content        string
	SourcesJSON    string // serialized sources, assistant only
	Intent         string // assistant only
	CreatedAt      time.Time
}

// GroupProfile selects the prompt template family used by the Generator.
type GroupProfile string

const (
	ProfileTechnical  GroupProfile = "technical"
	ProfileCompliance GroupProfile = "compliance"
	ProfileGeneral    GroupProfile = "general"
)

// Source is the trimmed, client-facing record describing one retrieved chunk.
type Source struct {
	PageNumber  *int
	Filename    string
	FilePath    string
	Section     string
	GroupID     int64
	Score       float32
	TextSnippet string
	FullText    string
}
