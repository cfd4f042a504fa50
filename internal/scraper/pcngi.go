package scraper

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/model"
	"github.com/harmattan-labs/cng-atlas/pkg/anthropic"
)

// maxPageBytes caps the PCNGI page size fed to extraction.
const maxPageBytes = 2 << 20

const pcngiSystemPrompt = `You extract CNG (compressed natural gas) refuelling station listings from Nigerian web page text.

Return ONLY a JSON array. Each element:
{"name": "...", "operator": "...", "address": "...", "city": "...", "state": "...", "lga": "...", "status": "operational"|"planned"|"closed"}

Rules:
- One element per physical station. Conversion centres without refuelling are excluded.
- Use "" for unknown fields; never invent addresses.
- "state" is the Nigerian state name only, without the word "State".
- Default status to "operational" unless the text says the site is upcoming or closed.`

// PCNGI scrapes the Presidential CNG Initiative's station listing page. The
// page is unstructured marketing HTML, so rows are extracted with Claude.
type PCNGI struct {
	url       string
	modelName string
	http      *fetcher.HTTPFetcher
	llm       anthropic.Client
}

// NewPCNGI creates the PCNGI source.
func NewPCNGI(url, modelName string, httpf *fetcher.HTTPFetcher, llm anthropic.Client) *PCNGI {
	return &PCNGI{url: url, modelName: modelName, http: httpf, llm: llm}
}

func (s *PCNGI) Name() string       { return "pcngi" }
func (s *PCNGI) Category() Category { return Official }
func (s *PCNGI) Cadence() Cadence   { return Weekly }

func (s *PCNGI) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return WeeklySchedule(now, lastSync)
}

// Fetch downloads the listing page and extracts station rows.
func (s *PCNGI) Fetch(ctx context.Context, _ string) ([]model.Station, error) {
	body, err := s.http.Download(ctx, s.url)
	if err != nil {
		return nil, eris.Wrap(err, "pcngi: download page")
	}
	defer body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "pcngi: read page")
	}

	text := htmlToText(string(raw))
	if strings.TrimSpace(text) == "" {
		return nil, eris.New("pcngi: page yielded no text")
	}

	resp, err := s.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.modelName,
		MaxTokens: 8192,
		System:    anthropic.BuildCachedSystemBlocks(pcngiSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: "Page text:\n\n" + text},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "pcngi: extraction request")
	}
	resp.Usage.LogCost(s.modelName, "pcngi_extract")

	items, err := parseExtractedStations(resp.Text())
	if err != nil {
		return nil, err
	}

	stations := make([]model.Station, 0, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		stations = append(stations, model.Station{
			Source:    s.Name(),
			SourceKey: slugKey(it.Name, it.State),
			Name:      it.Name,
			Operator:  it.Operator,
			Address:   it.Address,
			City:      it.City,
			State:     it.State,
			LGA:       it.LGA,
			Status:    licenceStatus(it.Status),
		})
	}

	zap.L().Info("pcngi page extracted", zap.Int("stations", len(stations)))
	return stations, nil
}

// extractedStation mirrors the JSON shape the extraction prompt requests.
type extractedStation struct {
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	LGA      string `json:"lga"`
	Status   string `json:"status"`
}

// parseExtractedStations decodes the model's reply, tolerating code fences
// and prose around the array.
func parseExtractedStations(reply string) ([]extractedStation, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, eris.Errorf("pcngi: no JSON array in extraction reply (%d bytes)", len(reply))
	}

	var items []extractedStation
	if err := json.Unmarshal([]byte(reply[start:end+1]), &items); err != nil {
		return nil, eris.Wrap(err, "pcngi: parse extraction reply")
	}
	return items, nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]{2,}`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// htmlToText strips markup to plain text. Extraction doesn't need a DOM,
// just the visible strings in document order.
func htmlToText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, "\n")
	text = strings.NewReplacer("&amp;", "&", "&nbsp;", " ", "&lt;", "<", "&gt;", ">", "&#39;", "'", "&quot;", `"`).Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugKey builds a stable source key from name and state, e.g.
// "nipco-ikeja-lagos".
func slugKey(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, " "))
	return strings.Trim(slugRe.ReplaceAllString(joined, "-"), "-")
}
