package citation

import "testing"

func TestFromMetadataGroundingChunks(t *testing.T) {
	meta := map[string]any{
		"groundingChunks": []any{
			map[string]any{
				"web":           map[string]any{"uri": "https://a.com", "title": "Alpha"},
				"retrievedText": "quoted passage",
			},
			map[string]any{
				"web": map[string]any{"uri": "https://b.com", "title": "Beta"},
			},
		},
	}

	entries, ok := FromMetadata(meta)
	if !ok {
		t.Fatal("expected citations to be present")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].URL != "https://a.com" || entries[0].CitedText != "quoted passage" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].CitedText != "" {
		t.Fatalf("expected empty citedText for chunk without retrieved text, got %q", entries[1].CitedText)
	}
	if entries[0].Type != TypeURLCitation || entries[1].Type != TypeURLCitation {
		t.Fatal("entries must carry the url_citation tag")
	}
}

func TestFromMetadataSourcesList(t *testing.T) {
	meta := map[string]any{
		"sources": []any{
			map[string]any{"url": "https://s.com", "title": "Source", "snippet": "excerpt"},
		},
	}

	entries, ok := FromMetadata(meta)
	if !ok {
		t.Fatal("expected citations to be present")
	}
	if len(entries) != 1 || entries[0].Snippet != "excerpt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFromMetadataGroundingTakesPriority(t *testing.T) {
	meta := map[string]any{
		"groundingChunks": []any{
			map[string]any{"web": map[string]any{"uri": "https://g.com", "title": "G"}},
		},
		"sources": []any{
			map[string]any{"url": "https://s.com", "title": "S"},
		},
	}

	entries, ok := FromMetadata(meta)
	if !ok || len(entries) != 1 || entries[0].URL != "https://g.com" {
		t.Fatalf("expected grounding shape to win, got %+v", entries)
	}
}

func TestFromMetadataAbsent(t *testing.T) {
	cases := []struct {
		name string
		meta map[string]any
	}{
		{"nil", nil},
		{"empty object", map[string]any{}},
		{"empty chunk list", map[string]any{"groundingChunks": []any{}}},
		{"empty sources list", map[string]any{"sources": []any{}}},
		{"unrecognized shape", map[string]any{"usage": map[string]any{"tokens": 12}}},
	}

	for _, tc := range cases {
		if entries, ok := FromMetadata(tc.meta); ok {
			t.Fatalf("%s: expected absent, got %+v", tc.name, entries)
		}
	}
}

func TestFromMarkdownDedupAndNumericLabels(t *testing.T) {
	text := "[Intro](https://a.com) ... [1](https://b.com) ... [Intro](https://a.com)"

	entries := FromMarkdown(text)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Title != "Intro" || entries[0].URL != "https://a.com" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Title != "https://b.com" || entries[1].URL != "https://b.com" {
		t.Fatalf("numeric label should fall back to the URL, got %+v", entries[1])
	}
}

func TestFromMarkdownNoMatches(t *testing.T) {
	entries := FromMarkdown("plain prose without links")
	if entries == nil {
		t.Fatal("markdown extraction has no absent state, expected empty list")
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}

func TestMergeFirstOccurrenceWins(t *testing.T) {
	existing := []Entry{{Type: TypeURLCitation, URL: "https://a.com", Title: "Old"}}
	incoming := []Entry{
		{Type: TypeURLCitation, URL: "https://a.com", Title: "New"},
		{Type: TypeURLCitation, URL: "https://c.com", Title: "Fresh"},
	}

	merged := Merge(existing, incoming)
	if len(merged) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(merged))
	}
	if merged[0].Title != "Old" {
		t.Fatalf("first occurrence must win, got %q", merged[0].Title)
	}
	if merged[1].URL != "https://c.com" {
		t.Fatalf("unexpected second entry: %+v", merged[1])
	}
}
