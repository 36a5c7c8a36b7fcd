// Package report renders the per-upload PDF summary artifact.
//
// The document is text only: a title, source/timestamp lines, the summary
// statistics, and one line per category in the type distribution. Charts
// live in the frontends; this file is the printable record.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/equipflow/equipflow/internal/pipeline"
	"github.com/go-pdf/fpdf"
)

// Layout constants, in points on an A4 portrait page. The cursor starts
// topMargin below the top edge and a new page begins once a distribution
// line would land within bottomMargin of the page bottom.
const (
	leftMargin   = 40.0
	indent       = 60.0
	topMargin    = 50.0
	bottomMargin = 60.0
	lineHeight   = 15.0
)

const filePrefix = "Equipment_Summary_Report_"

// Generator writes report PDFs into a directory and hands out relative
// references. Names are timestamp-derived and de-collided in-process, so
// repeated generations within the same second still get unique files.
type Generator struct {
	dir string

	mu       sync.Mutex
	lastBase string
	seq      int
}

// NewGenerator creates the reports directory if needed.
func NewGenerator(dir string) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}
	return &Generator{dir: dir}, nil
}

// Generate renders the summary into a new PDF and returns its reference,
// always forward-slash separated regardless of host platform. The
// document is rendered fully into memory and written in a single call, so
// no partial file is left behind on failure.
func (g *Generator) Generate(summary pipeline.Summary, originalFilename string, generatedAt time.Time) (string, error) {
	doc := render(summary, originalFilename, generatedAt)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return "", fmt.Errorf("render pdf: %w", err)
	}

	name := g.nextName(generatedAt)
	if err := os.WriteFile(filepath.Join(g.dir, name), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	return path.Join("reports", name), nil
}

// render lays the document out with a manual vertical cursor. Automatic
// page breaking is disabled: the only break rule is the distribution-loop
// check below, which must start a new page and reset the font before
// drawing a line that would fall below the bottom margin.
func render(s pipeline.Summary, originalFilename string, generatedAt time.Time) *fpdf.Fpdf {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	_, pageHeight := pdf.GetPageSize()

	y := topMargin

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(leftMargin, y, "Chemical Equipment Summary Report")
	y += 30

	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(leftMargin, y, "Source file: "+originalFilename)
	y += 20
	pdf.Text(leftMargin, y, "Generated at: "+generatedAt.Format("2006-01-02 15:04:05"))
	y += 30

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(leftMargin, y, "Summary Statistics")
	y += 20

	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(indent, y, fmt.Sprintf("Total equipment count: %d", s.RecordCount))
	y += lineHeight
	pdf.Text(indent, y, fmt.Sprintf("Average flowrate: %.2f", s.AvgFlowRate))
	y += lineHeight
	pdf.Text(indent, y, fmt.Sprintf("Average pressure: %.2f", s.AvgPressure))
	y += lineHeight
	pdf.Text(indent, y, fmt.Sprintf("Average temperature: %.2f", s.AvgTemperature))
	y += 25

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(leftMargin, y, "Type Distribution")
	y += 20

	pdf.SetFont("Helvetica", "", 10)
	for _, category := range sortedCategories(s.CategoryDistribution) {
		if y > pageHeight-bottomMargin {
			pdf.AddPage()
			pdf.SetFont("Helvetica", "", 10)
			y = topMargin
		}
		pdf.Text(indent, y, fmt.Sprintf("%s: %d", category, s.CategoryDistribution[category]))
		y += lineHeight
	}

	return pdf
}

// sortedCategories gives the distribution a stable render order; map
// iteration would shuffle lines between generations.
func sortedCategories(dist map[string]int) []string {
	categories := make([]string, 0, len(dist))
	for c := range dist {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

// nextName returns a unique timestamp-derived file name. Two generations
// within the same second get _2, _3, ... suffixes.
func (g *Generator) nextName(t time.Time) string {
	base := filePrefix + t.Format("20060102_150405")

	g.mu.Lock()
	defer g.mu.Unlock()

	if base == g.lastBase {
		g.seq++
		return fmt.Sprintf("%s_%d.pdf", base, g.seq)
	}
	g.lastBase = base
	g.seq = 1
	return base + ".pdf"
}
