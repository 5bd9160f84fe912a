package finder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/pagehelper/internal/dom/htmldom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"
)

func loadTable(t *testing.T) *htmldom.Document {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "table.html"))
	require.NoError(t, err)
	doc, err := htmldom.ParseString(string(raw), "https://example.test/table")
	require.NoError(t, err)
	return doc
}

func parse(t *testing.T, page string) *htmldom.Document {
	t.Helper()
	doc, err := htmldom.ParseString(page, "https://example.test/")
	require.NoError(t, err)
	return doc
}

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(0, ts) }
}

func TestFindByText(t *testing.T) {
	ctx := context.Background()

	t.Run("tag filter keeps matching cells", func(t *testing.T) {
		f := New(loadTable(t))
		records, err := f.FindByText(ctx, "Blue King", "td")
		require.NoError(t, err)
		require.Len(t, records, 6, "three rows with title and description cells")
		for _, r := range records {
			assert.Equal(t, "TD", r.TagName)
			assert.Equal(t, "Blue King", r.Text)
			assert.NotEmpty(t, r.UID)
		}
	})

	t.Run("tag filter is case insensitive", func(t *testing.T) {
		f := New(loadTable(t))
		lower, err := f.FindByText(ctx, "Blue King", "td")
		require.NoError(t, err)
		upper, err := f.FindByText(ctx, "Blue King", "TD")
		require.NoError(t, err)
		assert.Len(t, upper, len(lower))
	})

	t.Run("no tag filter includes every parent", func(t *testing.T) {
		f := New(loadTable(t))
		records, err := f.FindByText(ctx, "Blue King", "")
		require.NoError(t, err)
		assert.Len(t, records, 7, "table cells plus the caption heading")
	})

	t.Run("substring without whitespace normalisation", func(t *testing.T) {
		f := New(parse(t, `<body><p>Blue  King</p><p>The Blue King rules</p></body>`))
		records, err := f.FindByText(ctx, "Blue King", "")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "The Blue King rules", records[0].Text)
	})

	t.Run("one record per matching text node", func(t *testing.T) {
		f := New(parse(t, `<body><p id="para">Save <b>now</b> Save</p></body>`))
		records, err := f.FindByText(ctx, "Save", "")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, records[0].UID, records[1].UID)
		assert.Equal(t, "para", records[0].UID)
		assert.Equal(t, "para", records[0].Name)
	})

	t.Run("record fields", func(t *testing.T) {
		f := New(parse(t, `<body><button name="go" role="button" class="btn primary">Launch</button></body>`))
		records, err := f.FindByText(ctx, "Launch", "button")
		require.NoError(t, err)
		require.Len(t, records, 1)
		r := records[0]
		assert.Equal(t, "BUTTON", r.TagName)
		assert.Equal(t, "button", r.Role)
		assert.Equal(t, "go", r.Name)
		assert.Equal(t, "btn primary", r.ClassName)
	})
}

func TestFindByRole(t *testing.T) {
	ctx := context.Background()
	f := New(parse(t, `<body>
		<div role="button">Open</div>
		<span role="buttons">Nope</span>
		<a role="button" href="#">  Close  </a>
	</body>`))

	records, err := f.FindByRole(ctx, "button")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "DIV", records[0].TagName)
	assert.Equal(t, "Open", records[0].Text)
	assert.Equal(t, "A", records[1].TagName)
	assert.Equal(t, "Close", records[1].Text)
	assert.Equal(t, "button", records[1].Role)
}

func TestFindByTagAndText(t *testing.T) {
	ctx := context.Background()
	f := New(parse(t, `<body>
		<input id="email" type="email" value="me@example.test">
		<input name="q">
		<button>Search now</button>
	</body>`))

	t.Run("unfiltered", func(t *testing.T) {
		records, err := f.FindByTagAndText(ctx, "input", "")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "email", records[0].Name)
		assert.Equal(t, "email", records[0].Type)
		assert.Equal(t, "q", records[1].Name)
		assert.Equal(t, "text", records[1].Type)
	})

	t.Run("matches value", func(t *testing.T) {
		records, err := f.FindByTagAndText(ctx, "input", "example")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "me@example.test", records[0].Text)
	})

	t.Run("matches text content", func(t *testing.T) {
		records, err := f.FindByTagAndText(ctx, "button", "Search")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Search now", records[0].Text)
	})
}

func TestFindBySelector(t *testing.T) {
	ctx := context.Background()

	t.Run("valid selector", func(t *testing.T) {
		f := New(loadTable(t))
		records, err := f.FindBySelector(ctx, "tbody tr:nth-child(2) td")
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, "2", records[0].Text)
		assert.Equal(t, "warning", records[3].Text)
	})

	t.Run("syntax error degrades to empty result", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := New(loadTable(t), WithLogger(zap.New(core)))

		records, err := f.FindBySelector(ctx, "td[[")
		require.NoError(t, err)
		assert.Empty(t, records)

		entries := logs.FilterMessage("Selector rejected.").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "td[[", entries[0].ContextMap()["selector"])
	})
}

func TestUID(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent for an attached element", func(t *testing.T) {
		f := New(parse(t, `<body><div><span>hello</span></div></body>`))
		records, err := f.FindByText(ctx, "hello", "")
		require.NoError(t, err)
		require.Len(t, records, 1)

		first, err := f.UID(ctx, records[0].Element)
		require.NoError(t, err)
		second, err := f.UID(ctx, records[0].Element)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, records[0].UID, first)
	})

	t.Run("dom id is used verbatim", func(t *testing.T) {
		f := New(parse(t, `<body><section id="main-panel">hello</section></body>`))
		records, err := f.FindByText(ctx, "hello", "")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "main-panel", records[0].UID)
	})

	t.Run("path identifier format", func(t *testing.T) {
		f := New(parse(t, `<body><header></header><div><p>a</p><span>hello</span></div></body>`), WithClock(fixedClock(42)))
		records, err := f.FindByText(ctx, "hello", "")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "test_div:nth-child(2)>span:nth-child(2)_42", records[0].UID)
	})

	t.Run("identical sibling subtrees get distinct identifiers", func(t *testing.T) {
		f := New(parse(t, `<body><ul><li><em>row</em></li><li><em>row</em></li></ul></body>`), WithClock(fixedClock(7)))
		records, err := f.FindByText(ctx, "row", "em")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.NotEqual(t, records[0].UID, records[1].UID)
		assert.True(t, strings.HasPrefix(records[0].UID, UIDPrefix))
	})

	t.Run("identifier survives a later id change", func(t *testing.T) {
		doc := parse(t, `<body><p>hello</p></body>`)
		f := New(doc)
		records, err := f.FindByText(ctx, "hello", "")
		require.NoError(t, err)
		uid := records[0].UID

		node, ok := htmldom.NodeOf(records[0].Element)
		require.True(t, ok)
		doc.Mutate(func(*html.Node) {
			node.Attr = append(node.Attr, html.Attribute{Key: "id", Val: "late-id"})
		})

		again, err := f.FindByText(ctx, "hello", "")
		require.NoError(t, err)
		assert.Equal(t, uid, again[0].UID)
	})
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	doc := parse(t, `<body><div class="gone">bye</div><div class="stays">hi</div></body>`)
	f := New(doc)

	gone, err := f.FindByText(ctx, "bye", "")
	require.NoError(t, err)
	stays, err := f.FindByText(ctx, "hi", "")
	require.NoError(t, err)

	el, ok := f.Lookup(ctx, gone[0].UID)
	require.True(t, ok)
	assert.Equal(t, gone[0].Element, el)

	n, err := doc.Remove(".gone")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok = f.Lookup(ctx, gone[0].UID)
	assert.False(t, ok, "detached element must not be returned")

	_, ok = f.Lookup(ctx, stays[0].UID)
	assert.True(t, ok)

	_, ok = f.Lookup(ctx, "never-assigned")
	assert.False(t, ok)
}
