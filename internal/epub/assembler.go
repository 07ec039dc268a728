// Package epub assembles per-page OCR text into an EPUB3 file,
// grounded on original_source/app/pipeline/assembler.py: pages are
// partitioned into fixed-size chapters, paragraphs are split on blank
// lines, and chapter markup picks RTL or LTR CSS and font stacks based
// on language. No example repo in the corpus writes EPUB containers, so
// github.com/bmaupin/go-epub is introduced as a named, ungrounded
// out-of-pack dependency (DESIGN.md).
package epub

import (
	"context"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	epublib "github.com/bmaupin/go-epub"

	"github.com/spherical/vppe/internal/domain"
)

// rtlLanguages mirrors assembler.py's RTL_LANGUAGES set.
var rtlLanguages = map[string]bool{
	"fa": true,
	"ar": true,
	"he": true,
	"ur": true,
}

const failedPagePlaceholder = "[This page could not be processed.]"

// fixedModified pins the OPF package document's dcterms:modified date
// instead of letting go-epub stamp wall-clock time, so re-assembling the
// same job (e.g. after a retry) produces a byte-for-byte identical EPUB.
const fixedModified = "2020-01-01T00:00:00Z"

// Assembler builds EPUB3 files from ordered page text. It implements
// domain.Assembler.
type Assembler struct{}

// New creates an Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Assemble builds one EPUB file at req.OutputPath, partitioning pages
// into chapters of req.PagesPerChapter pages each. Pages missing
// from req.PageText (failed pages) render a placeholder paragraph rather
// than aborting the whole book, matching assembler.py's behavior of
// always producing a complete EPUB regardless of per-page failures.
func (a *Assembler) Assemble(ctx context.Context, req domain.AssembleRequest) error {
	if req.TotalPages <= 0 {
		return domain.NewBadRequestError("cannot assemble an EPUB with zero pages")
	}
	pagesPerChapter := req.PagesPerChapter
	if pagesPerChapter <= 0 {
		pagesPerChapter = 20
	}

	book := epublib.NewEpub(req.Title)
	book.SetLang(req.Language)
	book.SetIdentifier(req.JobID)
	book.SetModified(fixedModified)

	rtl := rtlLanguages[strings.ToLower(req.Language)]
	css, err := book.AddCSS(cssBytesPath(rtl), "chapter.css")
	if err != nil {
		// go-epub's AddCSS reads from a filesystem path; if the temp
		// stylesheet could not be written or added, chapters are added
		// without a stylesheet.
		css = ""
	}

	chapterCount := (req.TotalPages + pagesPerChapter - 1) / pagesPerChapter
	for chapter := 0; chapter < chapterCount; chapter++ {
		start := chapter * pagesPerChapter
		end := start + pagesPerChapter
		if end > req.TotalPages {
			end = req.TotalPages
		}

		body := buildChapterBody(req.PageText, start, end, rtl)
		title := fmt.Sprintf("Chapter %d", chapter+1)
		if _, err := book.AddSection(body, title, "", css); err != nil {
			return domain.NewPipelineError(fmt.Sprintf("failed to add chapter %d", chapter+1), err)
		}
	}

	if err := book.Write(req.OutputPath); err != nil {
		return domain.NewPersistenceError("failed to write EPUB file", err)
	}
	return nil
}

// buildChapterBody renders one chapter's XHTML body for 0-based pages
// [start,end) (half-open, matching the [k*N, min((k+1)*N, total)) chapter
// partition), splitting each page's text into paragraphs on blank lines,
// matching assembler.py's _page_to_paragraphs. Each paragraph gets
// dir="auto" so mixed-direction text renders correctly regardless of the
// chapter's overall direction, and a page separator is inserted between
// pages.
func buildChapterBody(pageText map[int]string, start, end int, rtl bool) string {
	dir := "ltr"
	if rtl {
		dir = "rtl"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div dir="%s">`, dir)
	for page := start; page < end; page++ {
		if page > start {
			b.WriteString(`<hr class="page-separator"/>`)
		}
		text, ok := pageText[page]
		if !ok || strings.TrimSpace(text) == "" {
			fmt.Fprintf(&b, `<p class="page-failed" dir="auto">%s</p>`, html.EscapeString(failedPagePlaceholder))
			continue
		}
		for _, para := range splitParagraphs(text) {
			fmt.Fprintf(&b, `<p dir="auto">%s</p>`, html.EscapeString(para))
		}
	}
	b.WriteString("</div>")
	return b.String()
}

var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// splitParagraphs splits on one-or-more blank lines, trimming each
// paragraph and dropping empties, matching assembler.py's
// re.split(r"\n\s*\n", text.strip()). Whitespace inside a paragraph,
// including single newlines, is collapsed to one space.
func splitParagraphs(text string) []string {
	var out []string
	for _, raw := range blankLineRe.Split(strings.TrimSpace(text), -1) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		trimmed = strings.Join(strings.Fields(trimmed), " ")
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return out
}

// cssBytesPath is a placeholder path fed to go-epub's AddCSS, which
// requires a filesystem path; writeTempCSS writes chapterCSS's text to a
// temp file for it. It returns "" if that write fails.
func cssBytesPath(rtl bool) string {
	path, err := writeTempCSS(chapterCSS(rtl))
	if err != nil {
		return ""
	}
	return path
}

// writeTempCSS writes css to a temp file and returns its path, since
// go-epub's AddCSS reads the stylesheet from disk rather than accepting
// inline content.
func writeTempCSS(css string) (string, error) {
	f, err := os.CreateTemp("", "vppe-chapter-*.css")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(css); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// chapterCSS returns the RTL or LTR stylesheet, matching assembler.py's
// two embedded CSS blocks (font stacks tuned for Arabic/Persian vs Latin
// scripts).
func chapterCSS(rtl bool) string {
	if rtl {
		return `body { direction: rtl; font-family: "Scheherazade New", "Noto Naskh Arabic", serif; line-height: 1.8; }
p { margin: 0 0 1em 0; text-align: justify; }
p.page-failed { color: #888; font-style: italic; }
hr.page-separator { border: none; border-top: 1px solid #ccc; margin: 1.5em 0; }`
	}
	return `body { direction: ltr; font-family: "Georgia", "Noto Serif", serif; line-height: 1.5; }
p { margin: 0 0 1em 0; text-align: justify; }
p.page-failed { color: #888; font-style: italic; }
hr.page-separator { border: none; border-top: 1px solid #ccc; margin: 1.5em 0; }`
}
