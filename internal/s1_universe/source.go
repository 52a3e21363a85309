package s1_universe

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/httputil"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// MemberSource lists the current constituents of an index basket
type MemberSource interface {
	Members(ctx context.Context, index string) ([]string, error)
}

var symbolPattern = regexp.MustCompile(`^\d{6}$`)

// HTMLSource scrapes constituent symbols out of an HTML table
// ⭐ SSOT: 지수 구성종목 HTML 파싱은 여기서만
type HTMLSource struct {
	client      *httputil.Client
	urlTemplate string // "{index}" is replaced by the lower-case index name
	logger      *logger.Logger
}

// NewHTMLSource creates a new HTML constituent source
func NewHTMLSource(client *httputil.Client, urlTemplate string, log *logger.Logger) *HTMLSource {
	return &HTMLSource{
		client:      client,
		urlTemplate: urlTemplate,
		logger:      log.Module("universe"),
	}
}

// Members fetches the page of index and returns its codes in archive form
func (s *HTMLSource) Members(ctx context.Context, index string) ([]string, error) {
	if s.urlTemplate == "" {
		return nil, fmt.Errorf("index source url is not configured")
	}
	url := strings.ReplaceAll(s.urlTemplate, "{index}", strings.ToLower(index))

	resp, err := s.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", index, err)
	}

	codes := parseMembers(doc)
	if len(codes) == 0 {
		return nil, fmt.Errorf("no constituents found for %s", index)
	}

	s.logger.WithFields(map[string]interface{}{
		"index": index,
		"count": len(codes),
	}).Debug("Fetched index constituents")
	return codes, nil
}

// parseMembers collects every six digit cell of the page's tables, in order
func parseMembers(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var codes []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			text := strings.TrimSpace(cell.Text())
			if !symbolPattern.MatchString(text) {
				return true
			}
			code, err := contracts.CodeFromSymbol(text)
			if err == nil && !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
			return false // 한 행에 종목코드 하나
		})
	})
	return codes
}
