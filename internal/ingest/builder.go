package ingest

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type IDPolicy string

const (
	IDRandom IDPolicy = "random"
	IDHash   IDPolicy = "hash"
)

const (
	unknownValue     = "unknown"
	defaultPageLabel = "0"
	tokenLength      = 8
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Sanitize reduces s to an ASCII token safe for record ids: diacritics are
// stripped, other non-ASCII and non-word characters dropped, whitespace runs
// become underscores.
func Sanitize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	out := nonWord.ReplaceAllString(b.String(), "")
	return whitespace.ReplaceAllString(strings.TrimSpace(out), "_")
}

// NormalizeFilename is the display form of a file name: NFC, trimmed, inner
// whitespace collapsed to single spaces.
func NormalizeFilename(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// BaseMetadata is the per-document metadata every chunk starts from.
func BaseMetadata(sf models.SourceFile) models.Metadata {
	return models.Metadata{
		models.MetaSource:           sf.Source,
		models.MetaFilePath:         sf.Path,
		models.MetaFilename:         NormalizeFilename(sf.Filename),
		models.MetaOriginalFilename: path.Base(strings.ReplaceAll(sf.Filename, "\\", "/")),
		models.MetaCategory:         string(sf.Category),
	}
}

// Builder turns raw chunks into records ready to embed: it assigns ids, builds the
// composite searchable text and fills the provenance metadata.
type Builder struct {
	policy IDPolicy
	now    func() time.Time
	token  func() string
	log    *zap.Logger
}

func NewBuilder(policy IDPolicy, log *zap.Logger) (*Builder, error) {
	switch policy {
	case "":
		policy = IDRandom
	case IDRandom, IDHash:
	default:
		return nil, util.ConfigError("unsupported id policy %q", policy)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		token:  func() string { return uuid.NewString()[:tokenLength] },
		log:    log,
	}, nil
}

// Build returns new chunks; the inputs are left untouched.
func (b *Builder) Build(chunks []models.Chunk) []models.Chunk {
	out := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, b.buildOne(c))
	}
	return out
}

func (b *Builder) buildOne(c models.Chunk) models.Chunk {
	meta := c.Metadata.Clone()
	source := b.orDefault(meta[models.MetaSource], unknownValue, "source", c)

	category := string(c.Category)
	if category == "" {
		category = meta[models.MetaCategory]
	}
	category = b.orDefault(category, unknownValue, "category", c)

	filename := b.orDefault(NormalizeFilename(meta[models.MetaFilename]), unknownValue, "filename", c)
	original := meta[models.MetaOriginalFilename]
	if strings.TrimSpace(original) == "" {
		original = filename
	}

	page := c.PageLabel
	if page == "" {
		page = meta[models.MetaPageLabel]
	}
	page = b.orDefault(page, defaultPageLabel, "page_label", c)

	id := strings.Join([]string{
		b.orDefault(Sanitize(category), unknownValue, "category", c),
		b.orDefault(Sanitize(filename), unknownValue, "filename", c),
		b.orDefault(Sanitize(page), defaultPageLabel, "page_label", c),
		b.idToken(source, page, c),
	}, ":")
	created := b.now()
	composite := fmt.Sprintf("Type: %s. File: %s. Page: %s. %s", category, filename, page, c.Text)

	meta[models.MetaSource] = source
	meta[models.MetaCategory] = category
	meta[models.MetaFilename] = filename
	meta[models.MetaOriginalFilename] = original
	meta[models.MetaPageLabel] = page
	meta[models.MetaCreatedAt] = created.Format(time.RFC3339)
	meta[models.MetaCompositeText] = composite
	meta[models.MetaID] = id

	c.ID = id
	c.Text = composite
	c.PageLabel = page
	c.Category = models.Category(category)
	c.CreatedAt = created
	c.Metadata = meta
	return c
}

func (b *Builder) idToken(source, page string, c models.Chunk) string {
	if b.policy == IDHash {
		return util.HashToken(tokenLength, source, page, strconv.Itoa(c.Ordinal), c.Text)
	}
	return b.token()
}

func (b *Builder) orDefault(v, def, field string, c models.Chunk) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	b.log.Warn("missing chunk field; using default",
		zap.String("field", field),
		zap.String("default", def),
		zap.String("source", c.Metadata[models.MetaSource]),
		zap.Int("ordinal", c.Ordinal),
		zap.Error(util.DataError("%s is empty", field)))
	return def
}

// Records converts built chunks that carry vectors into index records.
func Records(chunks []models.Chunk) []models.IndexRecord {
	out := make([]models.IndexRecord, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, models.IndexRecord{ID: c.ID, Values: c.Vector, Metadata: c.Metadata.Clone()})
	}
	return out
}
