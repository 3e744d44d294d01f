package linkcheck

import (
	"context"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

// BrokenLink records one internal link whose target file is missing.
type BrokenLink struct {
	Page   string // page containing the link, relative to the site root
	URL    string // raw link value
	Target string // resolved site-relative path that was checked
}

// Verifier checks internal links in a built site directory.
type Verifier struct {
	siteDir string
}

// NewVerifier creates a verifier for the given site directory.
func NewVerifier(siteDir string) *Verifier {
	return &Verifier{siteDir: siteDir}
}

// Verify walks every HTML page under the site directory and resolves each
// internal link against the site tree. It returns the broken links found;
// a non-nil error means verification itself could not run.
func (v *Verifier) Verify(ctx context.Context) ([]BrokenLink, error) {
	var broken []BrokenLink
	pages := 0

	err := filepath.WalkDir(v.siteDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}

		pages++
		rel, err := filepath.Rel(v.siteDir, p)
		if err != nil {
			return err
		}

		links, err := ExtractLinks(p)
		if err != nil {
			return err
		}

		for _, link := range links {
			if !link.Internal {
				continue
			}
			target, ok := v.resolve(rel, link.URL)
			if !ok {
				continue
			}
			if !v.exists(target) {
				broken = append(broken, BrokenLink{Page: rel, URL: link.URL, Target: target})
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "link verification walk failed")
	}

	slog.Info("Link verification finished", "pages", pages, "broken", len(broken))
	return broken, nil
}

// resolve turns a raw link on the given page into a site-relative file path.
// The second return is false for links that carry only a fragment or fail to
// parse, which are skipped rather than reported.
func (v *Verifier) resolve(page, raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Path == "" {
		return "", false
	}

	var target string
	if strings.HasPrefix(u.Path, "/") {
		target = strings.TrimPrefix(u.Path, "/")
	} else {
		target = path.Join(path.Dir(filepath.ToSlash(page)), u.Path)
	}
	target = path.Clean(target)

	if target == ".." || strings.HasPrefix(target, "../") {
		// Points outside the site tree, nothing to check on disk.
		return "", false
	}
	return target, true
}

func (v *Verifier) exists(target string) bool {
	full := filepath.Join(v.siteDir, filepath.FromSlash(target))
	info, err := os.Stat(full)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err = os.Stat(filepath.Join(full, "index.html"))
		return err == nil
	}
	return true
}
