package index

import "time"

// VectorDimension is the embedding width stored in the documents table.
// It must match the vector(N) column in the schema, so the embedder is
// always asked for exactly this many dimensions.
const VectorDimension = 768

// Metadata keys recognized on document chunks. Stats aggregates over
// these, and retrieval surfaces them for citations.
const (
	MetaDocumentName = "document_name"
	MetaStudyType    = "study_type"
	MetaYear         = "year"
	MetaBrand        = "brand"
)

// Document is a single indexed chunk of a research document.
type Document struct {
	ID          string
	IndexHandle string
	Content     string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// Stats summarizes the corpus behind one index handle.
type Stats struct {
	IndexHandle    string         `json:"index_handle"`
	TotalDocuments int            `json:"total_documents"`
	StudyTypes     map[string]int `json:"study_types"`
	Years          map[string]int `json:"years"`
	Brands         map[string]int `json:"brands"`
}
