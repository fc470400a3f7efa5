package api

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/pagecomb/pagecomb/app/database"
)

// RSSGenerator renders stored feed items as RSS 2.0 XML
type RSSGenerator struct {
	baseURL string
}

// NewRSSGenerator creates a new RSS generator
func NewRSSGenerator(baseURL string) *RSSGenerator {
	return &RSSGenerator{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Generate creates RSS 2.0 XML from a feed and its items
func (g *RSSGenerator) Generate(feed database.Feed, items []database.Item) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")

	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	title := feed.Title
	if title == "" {
		title = feed.Name
	}
	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", feed.SourceURL, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Articles extracted from %s", feed.SourceURL), 4)

	selfLink := fmt.Sprintf("%s/feeds/%s", g.baseURL, feed.Name)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	g.writeElement(&buf, "lastBuildDate", time.Now().Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", "Page Comb/1.0", 4)

	if feed.TtlMinutes > 0 {
		g.writeElement(&buf, "ttl", fmt.Sprintf("%d", feed.TtlMinutes), 4)
	}

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String()
}

// writeItem writes a single RSS item
func (g *RSSGenerator) writeItem(buf *bytes.Buffer, item database.Item) {
	buf.WriteString("    <item>\n")

	if item.Link != "" {
		buf.WriteString("      <guid isPermaLink=\"true\">")
		xml.EscapeText(buf, []byte(item.Link))
		buf.WriteString("</guid>\n")
	} else {
		buf.WriteString("      <guid isPermaLink=\"false\">")
		xml.EscapeText(buf, []byte(item.Fingerprint))
		buf.WriteString("</guid>\n")
	}

	if item.Title != "" {
		g.writeElement(buf, "title", item.Title, 6)
	}
	if item.Link != "" {
		g.writeElement(buf, "link", item.Link, 6)
	}
	if item.Summary != "" {
		g.writeElement(buf, "description", item.Summary, 6)
	}

	pubDate := item.DiscoveredAt
	if item.PublishedAt != nil {
		pubDate = *item.PublishedAt
	}
	g.writeElement(buf, "pubDate", pubDate.Format(time.RFC1123Z), 6)

	buf.WriteString("    </item>\n")
}

func (g *RSSGenerator) writeElement(buf *bytes.Buffer, name, value string, indent int) {
	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<" + name + ">")
	xml.EscapeText(buf, []byte(value))
	buf.WriteString("</" + name + ">\n")
}
