// Package catalog fetches and parses the upstream directory listing into
// archive descriptors.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrCatalogUnavailable marks listing fetch or parse failures. A run with no
// catalog has nothing to import, so callers treat this as fatal.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Archive describes one downloadable archive from the listing.
type Archive struct {
	// Name is the bare file name, e.g. "Empresas0.zip".
	Name string
	// URL is the resolved absolute download location.
	URL string
	// Size is the human-readable size label from the listing table, e.g.
	// "1.2G". Informational only.
	Size string
}

// Fetch retrieves the directory listing at baseURL and returns a descriptor
// for every archive link found. An empty result is not an error; the
// upstream directory may legitimately hold no matches.
func Fetch(ctx context.Context, client *http.Client, baseURL string, logger *slog.Logger) ([]Archive, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url %s: %w", ErrCatalogUnavailable, baseURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrCatalogUnavailable, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrCatalogUnavailable, baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: bad status %q fetching %s", ErrCatalogUnavailable, resp.Status, baseURL)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing html: %w", ErrCatalogUnavailable, err)
	}

	archives := parseListing(root, base)
	logger.Info("Catalog fetched.", slog.String("base_url", baseURL), slog.Int("archives", len(archives)))
	return archives, nil
}

// parseListing walks the listing's anchor elements, keeps links ending in
// .zip, and pulls the size label from the third cell of the enclosing table
// row when the listing is tabular.
func parseListing(root *html.Node, base *url.URL) []Archive {
	var out []Archive
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := findAttr(n, "href"); ok && strings.HasSuffix(strings.ToLower(href), ".zip") {
				resolved, err := base.Parse(href)
				if err == nil {
					out = append(out, Archive{
						Name: pathBase(href),
						URL:  resolved.String(),
						Size: sizeLabel(n),
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// sizeLabel finds the <tr> enclosing the anchor and returns the trimmed text
// of its third <td>, mirroring the Apache/nginx autoindex column layout.
func sizeLabel(anchor *html.Node) string {
	row := anchor
	for row != nil && !(row.Type == html.ElementNode && row.Data == "tr") {
		row = row.Parent
	}
	if row == nil {
		return ""
	}
	cell := 0
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "td" {
			cell++
			if cell == 3 {
				return strings.TrimSpace(nodeText(c))
			}
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if nd.Type == html.TextNode {
			b.WriteString(nd.Data)
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func pathBase(href string) string {
	href = strings.TrimSuffix(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
