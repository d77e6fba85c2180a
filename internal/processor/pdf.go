// internal/processor/pdf.go
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"lextransition/internal/models"
)

const (
	// DefaultChunkSize is the target chunk length in characters
	DefaultChunkSize = 1200
	// DefaultChunkOverlap is carried from the end of one chunk into the next
	DefaultChunkOverlap = 200
	// MinChunkSize drops preamble fragments shorter than this
	MinChunkSize = 100
)

// chunkNamespace seeds deterministic chunk IDs
var chunkNamespace = uuid.MustParse("6f1c2a52-5d0e-4b8e-9a43-1f0d7c3e2b19")

var (
	chapterRe    = regexp.MustCompile(`^CHAPTER\s+([IVXLC]+[A-Z]?)\b\.?\s*(.*)$`)
	sectionRe    = regexp.MustCompile(`^(\d{1,3}[A-Z]{0,2})\.\s+(\S.*)$`)
	pageNumberRe = regexp.MustCompile(`^(?:Page\s+)?\d{1,4}$`)
	spaceRe      = regexp.MustCompile(`[ \t\r\v]+`)
)

// PDFProcessor turns official act PDFs into section-tagged chunks
type PDFProcessor struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(chunkSize, chunkOverlap int) *PDFProcessor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &PDFProcessor{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// ExtractPages extracts the plain text of every page of a PDF file
func (p *PDFProcessor) ExtractPages(ctx context.Context, filePath string) ([]string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text of page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	return pages, nil
}

// ReadTextPages reads a plain-text export whose pages are separated by
// form feeds, as produced by pdftotext
func ReadTextPages(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return strings.Split(string(data), "\f"), nil
}

// Supported reports whether ProcessFile can read the file
func Supported(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

// ProcessFile processes a PDF or form-feed separated text file and returns
// its chunks. An empty act is detected from the text of the first pages.
func (p *PDFProcessor) ProcessFile(ctx context.Context, filePath, act string) ([]models.Chunk, error) {
	var (
		pages []string
		err   error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		pages, err = p.ExtractPages(ctx, filePath)
	case ".txt":
		pages, err = ReadTextPages(filePath)
	default:
		return nil, fmt.Errorf("unsupported file type %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	if act == "" {
		act = DetectAct(filepath.Base(filePath), pages)
	}
	if act == "" {
		return nil, fmt.Errorf("could not detect the act of %s", filePath)
	}

	return p.ChunkPages(filepath.Base(filePath), act, pages), nil
}

// DetectAct names the code whose title appears first in the opening pages,
// falling back to the file name
func DetectAct(fileName string, pages []string) string {
	var head strings.Builder
	for i := 0; i < len(pages) && i < 2; i++ {
		head.WriteString(pages[i])
		head.WriteByte('\n')
	}
	folded := strings.ToLower(spaceRe.ReplaceAllString(head.String(), " "))

	best, at := models.CodeFamily(""), -1
	for _, f := range models.Families {
		name := strings.ToLower(strings.SplitN(f.Title(), ",", 2)[0])
		if i := strings.Index(folded, name); i >= 0 && (at < 0 || i < at) {
			best, at = f, i
		}
	}
	if best != "" {
		return best.Title()
	}

	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	for _, part := range strings.FieldsFunc(stem, func(r rune) bool { return r == '_' || r == '-' || r == ' ' || r == '.' }) {
		if f, ok := models.ParseCodeFamily(part); ok {
			return f.Title()
		}
	}
	return ""
}

// segment is the text under one section heading
type segment struct {
	chapter string
	section *models.SectionID
	page    int
	lines   []string
}

// ChunkPages splits page texts into chunks tagged with act, chapter,
// section and the page where each chunk starts
func (p *PDFProcessor) ChunkPages(source, act string, pages []string) []models.Chunk {
	family, _ := models.FamilyForAct(act)
	segments := p.segment(family, pages)

	var chunks []models.Chunk
	for _, seg := range segments {
		text := strings.TrimSpace(strings.Join(seg.lines, "\n"))
		if text == "" || (seg.section == nil && len(text) < MinChunkSize) {
			continue
		}
		for _, part := range p.split(text) {
			seq := len(chunks)
			chunks = append(chunks, models.Chunk{
				ID:   uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s|%s|%d", source, act, seq))).String(),
				Text: part,
				Provenance: models.Provenance{
					Act:     act,
					Section: seg.section,
					Chapter: seg.chapter,
					Page:    seg.page,
					Source:  source,
				},
			})
		}
	}
	return chunks
}

func (p *PDFProcessor) segment(family models.CodeFamily, pages []string) []segment {
	var (
		segments []segment
		chapter  string
	)
	cur := segment{page: 1}

	for i, page := range pages {
		pageNum := i + 1
		for _, line := range cleanLines(page) {
			if m := chapterRe.FindStringSubmatch(line); m != nil {
				chapter = strings.TrimSpace("CHAPTER " + m[1] + " " + m[2])
				continue
			}
			if m := sectionRe.FindStringSubmatch(line); m != nil && family != "" {
				segments = append(segments, cur)
				id := models.NewSectionID(family, m[1], "")
				cur = segment{chapter: chapter, section: &id, page: pageNum}
				cur.lines = append(cur.lines, line)
				continue
			}
			if len(cur.lines) == 0 {
				cur.page = pageNum
				cur.chapter = chapter
			}
			cur.lines = append(cur.lines, line)
		}
	}
	return append(segments, cur)
}

// cleanLines normalizes whitespace and drops running headers, footers and
// bare page numbers
func cleanLines(page string) []string {
	var lines []string
	for _, line := range strings.Split(page, "\n") {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line == "" || pageNumberRe.MatchString(line) {
			continue
		}
		upper := strings.ToUpper(line)
		if len(line) < 60 && (strings.Contains(upper, "GAZETTE OF INDIA") || strings.Contains(upper, "EXTRAORDINARY")) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// split breaks text into windows of at most ChunkSize characters on word
// boundaries, repeating about ChunkOverlap characters between windows
func (p *PDFProcessor) split(text string) []string {
	if len(text) <= p.ChunkSize {
		return []string{text}
	}
	words := strings.Fields(text)

	var parts []string
	start := 0
	for start < len(words) {
		n, end := 0, start
		for end < len(words) && (end == start || n+len(words[end])+1 <= p.ChunkSize) {
			n += len(words[end]) + 1
			end++
		}
		parts = append(parts, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		back, m := end, 0
		for back > start+1 && m+len(words[back-1])+1 <= p.ChunkOverlap {
			m += len(words[back-1]) + 1
			back--
		}
		start = back
	}
	return parts
}

// HashFile returns the hex SHA-256 digest of a file's contents
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
