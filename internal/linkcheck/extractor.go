// Package linkcheck verifies that internal links in the built site resolve
// to files that actually exist before the site is packaged and deployed.
package linkcheck

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

// Link is a single reference extracted from an HTML page.
type Link struct {
	URL       string // raw href/src value
	Tag       string // a, img, script, link
	Attribute string // href or src
	Internal  bool   // true when the link stays within the site
}

// ExtractLinks parses an HTML file and returns every a/img/script/link
// reference it contains.
func ExtractLinks(htmlPath string) ([]Link, error) {
	file, err := os.Open(filepath.Clean(htmlPath))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to open HTML file").
			WithContext("path", htmlPath)
	}
	defer file.Close()

	return extractFromReader(file)
}

func extractFromReader(r io.Reader) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryValidation, apperrors.SeverityError, "failed to parse HTML")
	}

	var links []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "link":
				if href := getAttr(n, "href"); href != "" {
					links = append(links, newLink(href, n.Data, "href"))
				}
			case "img", "script":
				if src := getAttr(n, "src"); src != "" {
					links = append(links, newLink(src, n.Data, "src"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

func newLink(url, tag, attribute string) Link {
	return Link{URL: url, Tag: tag, Attribute: attribute, Internal: isInternal(url)}
}

func isInternal(raw string) bool {
	switch {
	case strings.Contains(raw, "://"), strings.HasPrefix(raw, "//"):
		return false
	case strings.HasPrefix(raw, "mailto:"), strings.HasPrefix(raw, "tel:"), strings.HasPrefix(raw, "data:"):
		return false
	case strings.HasPrefix(raw, "#"):
		return false
	default:
		return true
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
