package ai

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/v0xg/pagehelper/internal/helper"
)

// Page is what the model sees of the page under test.
type Page struct {
	Snapshot *helper.Snapshot
	Content  string // page body as Markdown, may be empty
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// NewPage pairs a snapshot with the page HTML converted to Markdown. When the
// conversion fails the page is described by the snapshot alone.
func NewPage(snap *helper.Snapshot, html string) *Page {
	p := &Page{Snapshot: snap}
	if strings.TrimSpace(html) == "" {
		return p
	}
	domain := ""
	if snap != nil {
		domain = snap.URL
	}
	md, err := mdConverter.ConvertString(html, converter.WithDomain(domain))
	if err == nil {
		p.Content = strings.TrimSpace(md)
	}
	return p
}
