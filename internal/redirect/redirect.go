// Package redirect rewrites the site root so visitors land on the generated
// documentation entry page instead of a bare directory listing.
package redirect

import (
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

// pageTemplate is the complete root page. The meta refresh does the work;
// the canonical link keeps crawlers pointed at the real entry page and the
// script covers clients that ignore meta refresh.
const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0; url=%[1]s">
<link rel="canonical" href="%[1]s">
<title>Redirecting</title>
</head>
<body>
<p>Redirecting to <a href="%[1]s">%[1]s</a></p>
<script>window.location.replace("%[2]s");</script>
</body>
</html>
`

// ValidateTarget rejects absolute URLs, protocol-relative URLs and path
// traversal. Targets are always sub-paths within the published site.
func ValidateTarget(target string) error {
	if target == "" {
		return apperrors.ValidationError("redirect target must not be empty")
	}
	if strings.Contains(target, "://") {
		return apperrors.ValidationError("redirect target must be a relative path, not a URL")
	}
	if strings.HasPrefix(target, "//") {
		return apperrors.ValidationError("redirect target must not be protocol-relative")
	}
	if strings.HasPrefix(target, "/") {
		return apperrors.ValidationError("redirect target must not start with /")
	}
	for _, segment := range strings.Split(target, "/") {
		if segment == ".." {
			return apperrors.ValidationError("redirect target must not contain .. segments")
		}
	}
	return nil
}

// WriteRootPage writes index.html in siteDir pointing at target. An existing
// root page from the build tool is replaced.
func WriteRootPage(siteDir, target string) error {
	if err := ValidateTarget(target); err != nil {
		return err
	}

	if _, err := os.Stat(siteDir); err != nil {
		return apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "site directory missing before redirect rewrite").
			WithContext("site_dir", siteDir)
	}

	page := fmt.Sprintf(pageTemplate, html.EscapeString(target), jsEscape(target))
	indexPath := filepath.Join(siteDir, "index.html")
	if err := os.WriteFile(indexPath, []byte(page), 0o644); err != nil { // #nosec G306 - published page is world readable
		return apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to write root redirect page")
	}

	slog.Info("Root redirect written", "target", target, "path", indexPath)
	return nil
}

func jsEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "<", `\x3c`, ">", `\x3e`)
	return r.Replace(s)
}
