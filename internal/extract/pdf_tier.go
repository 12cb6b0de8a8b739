package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// extractPDFTier is the fourth extraction tier: PDF documents never go
// through the HTML tiers, since pdfcpu's content-stream extraction is the
// only route to page text for this mime type.
func (c *Chain) extractPDFTier(ctx context.Context, capture *models.CaptureRecord) (*models.Page, error) {
	tempDir, err := os.MkdirTemp("", "chrono-scraper-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir for PDF extraction: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "capture.pdf")
	if err := os.WriteFile(tempFile, capture.RawBody, 0644); err != nil {
		return nil, fmt.Errorf("writing temp PDF file: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("reading PDF context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating PDF output dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	var fullText strings.Builder
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		c.logger.Warn().Err(err).Msg("pdfcpu content extraction failed, returning metadata-only page")
	} else {
		files, _ := os.ReadDir(outDir)
		pageTexts := make(map[int]string, len(files))
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			content, readErr := os.ReadFile(filepath.Join(outDir, file.Name()))
			if readErr != nil {
				continue
			}
			var pageNum int
			if _, scanErr := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); scanErr == nil {
				pageTexts[pageNum] = string(content)
			}
		}
		for pageNum := 1; pageNum <= pageCount; pageNum++ {
			text, ok := pageTexts[pageNum]
			if !ok {
				continue
			}
			if fullText.Len() > 0 {
				fullText.WriteString("\n\n")
			}
			fullText.WriteString(text)
		}
	}

	text := cleanWhitespace(fullText.String())
	words := len(strings.Fields(text))

	breakdown := models.QualityBreakdown{
		Readability:  60,
		Completeness: clamp(float64(words) / 2),
		Metadata:     40,
		Uniqueness:   70,
		Structure:    30,
	}

	return &models.Page{
		URL:              capture.URL,
		ContentText:      text,
		ExtractionTier:   4,
		QualityBreakdown: breakdown,
		QualityScore:     breakdown.Overall(),
		Metadata: map[string]string{
			"extractor":  "pdfcpu",
			"page_count": fmt.Sprintf("%d", pageCount),
		},
	}, nil
}
