package archive

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// DocumentExt is the file extension of source documents on the listing.
const DocumentExt = ".pdf"

// DefaultCanonicalBase is the archive folder that hosts the 2025 release files.
const DefaultCanonicalBase = "https://www.archives.gov/files/research/jfk/releases/2025/0318"

// LocalLinkPrefix marks legacy catalog links that point at a local download.
const LocalLinkPrefix = "downloaded-pdfs/"

// DeriveDocumentNumber returns the document number encoded in a source URL:
// the trailing path segment with the ".pdf" suffix removed.
func DeriveDocumentNumber(rawURL string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = u.Path
	} else if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = path.Base(strings.TrimRight(name, "/"))
	if name == "." || name == "/" {
		return ""
	}
	if strings.HasSuffix(strings.ToLower(name), DocumentExt) {
		name = name[:len(name)-len(DocumentExt)]
	}
	return name
}

// DeriveCanonicalURL rebuilds the public URL of a source file from its filename.
func DeriveCanonicalURL(base, filename string) string {
	if base == "" {
		base = DefaultCanonicalBase
	}
	name := path.Base(filepath.ToSlash(filename))
	if !strings.HasSuffix(strings.ToLower(name), DocumentExt) {
		name += DocumentExt
	}
	return strings.TrimRight(base, "/") + "/" + name
}

// IsLocalLink reports whether a catalog link points at a local download instead of the archive.
func IsLocalLink(link string) bool {
	return strings.HasPrefix(filepath.ToSlash(link), LocalLinkPrefix)
}

// IsDocumentLink reports whether href targets a source document.
func IsDocumentLink(href string) bool {
	p := href
	if u, err := url.Parse(href); err == nil {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(p), DocumentExt)
}

// SourcePath is where the downloaded source of a document lives.
func SourcePath(dir, number string) string {
	return filepath.Join(dir, number+DocumentExt)
}

// TranscriptPath is where the assembled transcript of a document lives.
func TranscriptPath(dir, number string) string {
	return filepath.Join(dir, number+".txt")
}

// ImageName is the image store name of a rendered page.
func ImageName(number string, page int) string {
	return fmt.Sprintf("%s_page_%d", number, page)
}
