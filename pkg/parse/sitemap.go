package parse

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// ExtractSitemapLocs returns the text of every <loc> element in a sitemap or
// sitemap index document, in document order.
//
// The walk is deliberately lenient about structure: it does not care whether
// the root is <urlset> or <sitemapindex>, only that <loc> leaves exist.
// Malformed XML yields an empty slice, never an error, so a broken sitemap
// is skipped instead of aborting a run.
func ExtractSitemapLocs(xmlBytes []byte) []string {
	decoder := xml.NewDecoder(bytes.NewReader(xmlBytes))

	var locs []string
	var inLoc bool
	var text strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Treat any structural error as "no usable sitemap"
			return nil
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "loc" {
				inLoc = true
				text.Reset()
			}
		case xml.CharData:
			if inLoc {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "loc" {
				inLoc = false
				if value := strings.TrimSpace(text.String()); value != "" {
					locs = append(locs, value)
				}
			}
		}
	}
	return locs
}
