package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seedDoc struct {
	path, ext, text string
}

func seedSearch(t *testing.T, s *Store, docs []seedDoc) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		name := d.path[len("/docs/"):]
		id, err := s.UpsertArtifact(ctx, ArtifactMeta{Path: d.path, Filename: name, Ext: d.ext})
		require.NoError(t, err)
		if d.text != "" {
			require.NoError(t, s.SaveExtractedText(ctx, id, d.text, "plain", len(d.text), name, d.path))
		}
		ids = append(ids, id)
	}
	return ids
}

func TestSearchModes(t *testing.T) {
	docs := []seedDoc{
		{"/docs/hello.txt", ".txt", "hello world"},
		{"/docs/notes.md", ".md", "nothing to see here, hello again and again"},
		{"/docs/other.txt", ".txt", "unrelated"},
	}

	for _, fullText := range []bool{true, false} {
		s := openTestStore(t, fullText)
		ids := seedSearch(t, s, docs)
		ctx := context.Background()

		want := ModeLike
		if fullText {
			want = ModeFullText
		}

		rows, err := s.Search(ctx, SearchQuery{Text: "hello"})
		require.NoError(t, err)
		require.Len(t, rows, 2, "fullText=%v", fullText)
		for _, r := range rows {
			assert.Equal(t, want, r.Mode)
			assert.Equal(t, StatusIndexed, r.Status)
		}
		assert.Equal(t, ids[0], rows[0].ID, "shorter match ranks first")

		if fullText {
			require.NotNil(t, rows[0].Rank)
			assert.Contains(t, rows[0].Snippet, HighlightOpen+"hello"+HighlightClose)
		} else {
			assert.Nil(t, rows[0].Rank)
			assert.Equal(t, "hello world", rows[0].Snippet)
		}

		rows, err = s.Search(ctx, SearchQuery{Text: "hello", Filters: SearchFilters{Ext: ".md"}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, ids[1], rows[0].ID)

		rows, err = s.Search(ctx, SearchQuery{Text: "hello", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, ids[1], rows[0].ID)

		rows, err = s.Search(ctx, SearchQuery{Text: "absent"})
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
}

func TestSearchBrowse(t *testing.T) {
	s := openTestStore(t, true)
	ids := seedSearch(t, s, []seedDoc{
		{"/docs/a.txt", ".txt", "first"},
		{"/docs/b.txt", ".txt", ""},
		{"/docs/c.pdf", ".pdf", "third"},
	})
	ctx := context.Background()

	rows, err := s.Search(ctx, SearchQuery{Text: "   "})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, ModeBrowse, r.Mode)
	}

	// equal timestamps fall back to identity, newest first
	assert.Equal(t, ids[2], rows[0].ID)

	rows, err = s.Search(ctx, SearchQuery{Filters: SearchFilters{Status: StatusNew}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[1], rows[0].ID)
	assert.Equal(t, "", rows[0].Snippet)
}

func TestSearchLiteralInput(t *testing.T) {
	s := openTestStore(t, false)
	seedSearch(t, s, []seedDoc{
		{"/docs/pct.txt", ".txt", "100% done"},
		{"/docs/plain.txt", ".txt", "1000 done"},
	})
	ctx := context.Background()

	rows, err := s.Search(ctx, SearchQuery{Text: "0%"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/docs/pct.txt", rows[0].Path)

	fts := openTestStore(t, true)
	seedSearch(t, fts, []seedDoc{{"/docs/q.txt", ".txt", "alpha AND beta"}})
	for _, q := range []string{`alpha AND (`, `"unbalanced`, `NEAR(`, `col:alpha`} {
		_, err := fts.Search(ctx, SearchQuery{Text: q})
		assert.NoError(t, err, "query %q", q)
	}
}

func TestSearchFragmentsAndCase(t *testing.T) {
	docs := []seedDoc{{"/docs/greet.txt", ".txt", "Hello World from äpfel"}}
	ctx := context.Background()

	like := openTestStore(t, false)
	seedSearch(t, like, docs)
	fts := openTestStore(t, true)
	seedSearch(t, fts, docs)

	count := func(s *Store, text string) int {
		rows, err := s.Search(ctx, SearchQuery{Text: text})
		require.NoError(t, err)
		return len(rows)
	}

	// substring inside words
	assert.Equal(t, 1, count(like, "llo Wor"))
	assert.Equal(t, 0, count(fts, "llo Wor"))

	// whole words, any case
	assert.Equal(t, 1, count(like, "hello WORLD"))
	assert.Equal(t, 1, count(fts, "hello WORLD"))

	// non-ASCII case folding
	assert.Equal(t, 0, count(like, "ÄPFEL"))
	assert.Equal(t, 1, count(fts, "ÄPFEL"))
	assert.Equal(t, 1, count(like, "äpfel"))
}

func TestFullTextQuery(t *testing.T) {
	assert.Equal(t, `"hello" "world"`, FullTextQuery("  hello   world "))
	assert.Equal(t, `"say" """hi"""`, FullTextQuery(`say "hi"`))
	assert.Equal(t, `"a""b"`, FullTextQuery(`a"b`))
	assert.Equal(t, "", FullTextQuery("   "))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now \\ ok`, EscapeLike(`50% off_now \ ok`))
}
