// Package opengraph extracts Open Graph metadata from HTML documents.
package opengraph

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// imageProperties are consulted in order; the first non-empty value wins.
var imageProperties = []string{
	"og:image",
	"og:image:url",
	"og:image:secure_url",
}

var twitterImageProperties = []string{
	"twitter:image",
	"twitter:image:src",
}

// Options tunes extraction.
type Options struct {
	// TwitterFallback consults twitter:image when no og:image is declared.
	TwitterFallback bool
}

// Metadata holds the Open Graph fields the worker cares about.
type Metadata struct {
	Title string
	Image string
}

// Extract parses an HTML document and returns its Open Graph metadata.
// Relative image URLs are resolved against pageURL when it is non-nil.
func Extract(r io.Reader, pageURL *url.URL, opts Options) (Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse html: %w", err)
	}

	meta := Metadata{
		Title: firstContent(doc, []string{"og:title"}),
	}
	image := firstContent(doc, imageProperties)
	if image == "" && opts.TwitterFallback {
		image = firstContent(doc, twitterImageProperties)
	}
	meta.Image = resolve(pageURL, image)
	return meta, nil
}

// ExtractImage is a shortcut returning only the preview image URL.
func ExtractImage(r io.Reader, pageURL *url.URL, opts Options) (string, error) {
	meta, err := Extract(r, pageURL, opts)
	if err != nil {
		return "", err
	}
	return meta.Image, nil
}

// firstContent returns the content of the first meta tag whose property or
// name attribute matches one of the properties, honoring their order.
func firstContent(doc *goquery.Document, properties []string) string {
	for _, property := range properties {
		selector := fmt.Sprintf("meta[property=%q], meta[name=%q]", property, property)
		var value string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			content, ok := s.Attr("content")
			content = strings.TrimSpace(content)
			if ok && content != "" {
				value = content
				return false
			}
			return true
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
