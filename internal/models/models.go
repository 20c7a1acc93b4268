package models

import (
	"maps"
	"strings"
	"time"
)

// Category is one of the fixed legal document classes, derived from the source folder.
type Category string

const (
	CategoryConstitution Category = "constitucion"
	CategoryConvention   Category = "convenio_internacional"
	CategoryLaw          Category = "ley"
	CategoryCode         Category = "codigo"
	CategoryUnknown      Category = "unknown"
)

// AllSourcesSentinel is the selector value meaning "do not restrict by source".
const AllSourcesSentinel = "todos"

const defaultPageLabel = "0"

// Metadata keys persisted on every index record.
const (
	MetaSource           = "source"
	MetaFilePath         = "file_path"
	MetaFilename         = "filename"
	MetaOriginalFilename = "original_filename"
	MetaCategory         = "category"
	MetaPageLabel        = "page_label"
	MetaCreatedAt        = "created_at"
	MetaCompositeText    = "composite_text"
	MetaID               = "id"
)

// DefaultCategoryFolders maps the data root layout onto category labels.
func DefaultCategoryFolders() map[string]Category {
	return map[string]Category{
		"01_constitucion":              CategoryConstitution,
		"02_convenios_internacionales": CategoryConvention,
		"03_leyes":                     CategoryLaw,
		"04_codigos":                   CategoryCode,
	}
}

// SourceFile is a discovered PDF before any text is extracted.
type SourceFile struct {
	Source   string   `json:"source"`
	Path     string   `json:"path"`
	Folder   string   `json:"folder"`
	Filename string   `json:"filename"`
	Category Category `json:"category"`
}

type Page struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Document exists only while a source is being ingested.
type Document struct {
	SourceFile
	Pages []Page `json:"pages"`
}

// Metadata is the string-valued map persisted with every index record.
type Metadata map[string]string

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	PageLabel string    `json:"page_label"`
	Category  Category  `json:"category"`
	Ordinal   int       `json:"ordinal"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  Metadata  `json:"metadata"`
	Vector    []float32 `json:"vector,omitempty"`
}

// IndexRecord is what the vector index stores for a chunk.
type IndexRecord struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

func (r IndexRecord) Source() string {
	return r.Metadata[MetaSource]
}

type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// SourceFilter is either "all sources" or an explicit set of source paths.
type SourceFilter struct {
	Sources []string `json:"sources,omitempty"`
}

func AllSources() SourceFilter {
	return SourceFilter{}
}

// ParseSourceFilter treats an empty selection or the "todos"/"all" sentinels as all sources.
func ParseSourceFilter(selected []string) SourceFilter {
	out := make([]string, 0, len(selected))
	seen := map[string]struct{}{}
	for _, s := range selected {
		s = strings.TrimSpace(strings.ReplaceAll(s, "\\", "/"))
		if s == "" {
			continue
		}
		switch strings.ToLower(s) {
		case AllSourcesSentinel, "all":
			return AllSources()
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return AllSources()
	}
	return SourceFilter{Sources: out}
}

func (f SourceFilter) IsAll() bool {
	return len(f.Sources) == 0
}

func (f SourceFilter) Allows(source string) bool {
	if f.IsAll() {
		return true
	}
	for _, s := range f.Sources {
		if s == source {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Citation is a retrieved chunk as shown to a caller.
type Citation struct {
	ID               string   `json:"id"`
	Source           string   `json:"source"`
	Filename         string   `json:"filename"`
	OriginalFilename string   `json:"original_filename"`
	Category         Category `json:"category"`
	PageLabel        string   `json:"page_label"`
	Score            float64  `json:"score"`
	Text             string   `json:"text"`
}

func CitationFromMatch(m Match) Citation {
	return Citation{
		ID:               m.ID,
		Source:           m.Metadata[MetaSource],
		Filename:         m.Metadata[MetaFilename],
		OriginalFilename: m.Metadata[MetaOriginalFilename],
		Category:         Category(m.Metadata[MetaCategory]),
		PageLabel:        pageLabelOrDefault(m.Metadata[MetaPageLabel]),
		Score:            m.Score,
		Text:             m.Metadata[MetaCompositeText],
	}
}

func pageLabelOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return defaultPageLabel
	}
	return s
}

// CatalogEntry lists one source file for the source selector.
type CatalogEntry struct {
	Source   string   `json:"source"`
	Filename string   `json:"filename"`
	Folder   string   `json:"folder"`
	Category Category `json:"category"`
}
