// Package manifest renders the CSV listing that accompanies a bulk QR job.
package manifest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Mapping is one short link and the URL it redirects to.
type Mapping struct {
	ShortURL string `json:"shortUrl"`
	LongURL  string `json:"longUrl"`
}

// Header is the first row of every manifest.
var Header = []string{"Short URL", "Original URL"}

// RenderCSV returns the manifest for mappings. Short URLs are expanded to
// https://{domain}/{shortUrl}. Cells that a spreadsheet would evaluate as a
// formula are prefixed with a single quote.
func RenderCSV(mappings []Mapping, domain string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, m := range mappings {
		row := []string{
			fmt.Sprintf("https://%s/%s", strings.TrimSuffix(domain, "/"), m.ShortURL),
			neutralize(m.LongURL),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + cell
	}
	return cell
}
