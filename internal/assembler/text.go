package assembler

import (
	"sort"
	"strings"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// fence is the code-fence opener some OCR answers wrap their text in.
const fence = "```text"

// StripFencing removes every "```text" marker from s.
func StripFencing(s string) string {
	return strings.ReplaceAll(s, fence, "")
}

// Concatenate joins the text of the non-error pages in ascending page order,
// each followed by a newline.
func Concatenate(pages []archive.Page) string {
	ordered := make([]archive.Page, 0, len(pages))
	for _, p := range pages {
		if !p.Error {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	var b strings.Builder
	for _, p := range ordered {
		b.WriteString(StripFencing(p.TextOrEmpty()))
		b.WriteByte('\n')
	}
	return b.String()
}
