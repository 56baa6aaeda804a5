package citation

import "regexp"

// TypeURLCitation tags every normalized entry.
const TypeURLCitation = "url_citation"

// Entry is the canonical citation shape handed to the rendering layer,
// regardless of which provider produced the underlying metadata.
type Entry struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	CitedText string `json:"citedText,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// FromMetadata converts provider metadata into canonical entries. Known
// shapes are probed in fixed priority order: grounding chunks first, then a
// plain sources list. The boolean reports whether citations are present at
// all; an empty or unrecognized metadata object is absent, which is distinct
// from an empty list (absent means the citation UI should not render).
func FromMetadata(meta map[string]any) ([]Entry, bool) {
	if len(meta) == 0 {
		return nil, false
	}

	if entries := fromGroundingChunks(meta["groundingChunks"]); len(entries) > 0 {
		return entries, true
	}
	if entries := fromSources(meta["sources"]); len(entries) > 0 {
		return entries, true
	}
	return nil, false
}

// fromGroundingChunks maps the grounding-style shape: each chunk carries a
// web block with uri/title plus optional retrieved text.
func fromGroundingChunks(raw any) []Entry {
	chunks, ok := raw.([]any)
	if !ok {
		return nil
	}

	entries := make([]Entry, 0, len(chunks))
	for _, item := range chunks {
		chunk, ok := item.(map[string]any)
		if !ok {
			continue
		}
		web, ok := chunk["web"].(map[string]any)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Type:      TypeURLCitation,
			URL:       stringField(web, "uri"),
			Title:     stringField(web, "title"),
			CitedText: stringField(chunk, "retrievedText"),
		})
	}
	return entries
}

// fromSources maps the flat sources-list shape used by search-backed
// providers.
func fromSources(raw any) []Entry {
	sources, ok := raw.([]any)
	if !ok {
		return nil
	}

	entries := make([]Entry, 0, len(sources))
	for _, item := range sources {
		source, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Type:    TypeURLCitation,
			URL:     stringField(source, "url"),
			Title:   stringField(source, "title"),
			Snippet: stringField(source, "snippet"),
		})
	}
	return entries
}

var markdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)

var numericLabelPattern = regexp.MustCompile(`^\d+$`)

// FromMarkdown extracts citations from inline markdown links in streamed
// text. Duplicate URLs keep their first occurrence; purely numeric labels
// are footnote markers, so the URL stands in for the title. Unlike metadata
// extraction there is no "not applicable" outcome here: zero matches is an
// empty list.
func FromMarkdown(text string) []Entry {
	matches := markdownLinkPattern.FindAllStringSubmatch(text, -1)
	entries := make([]Entry, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))

	for _, match := range matches {
		label, url := match[1], match[2]
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}

		title := label
		if numericLabelPattern.MatchString(label) {
			title = url
		}
		entries = append(entries, Entry{Type: TypeURLCitation, URL: url, Title: title})
	}
	return entries
}

// Merge folds incoming entries into existing ones, deduplicating by URL with
// first occurrence winning. The input slices are not modified.
func Merge(existing, incoming []Entry) []Entry {
	merged := make([]Entry, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, entry := range existing {
		if _, dup := seen[entry.URL]; dup {
			continue
		}
		seen[entry.URL] = struct{}{}
		merged = append(merged, entry)
	}
	for _, entry := range incoming {
		if _, dup := seen[entry.URL]; dup {
			continue
		}
		seen[entry.URL] = struct{}{}
		merged = append(merged, entry)
	}
	return merged
}

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return value
}
