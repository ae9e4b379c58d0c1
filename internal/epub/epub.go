// Package epub turns feed entries into standalone EPUB 3 files, one file
// per entry, named after the entry title.
package epub

import (
	"archive/zip"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/package.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

// maxDescriptionLength mirrors the summary bound used at ingestion: feeds
// that stuff full articles into the summary field don't get to pollute the
// EPUB description either.
const maxDescriptionLength = 1000

// WriteEntry packages one feed item as an EPUB file in dir. Re-converting
// the same entry overwrites the previous file, since polling delivers
// entries at least once.
func WriteEntry(feedName, dir string, item *gofeed.Item) error {
	if item.Title == "" {
		return fmt.Errorf("entry has no title")
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	if content == "" {
		return fmt.Errorf("entry %q has neither content nor summary", item.Title)
	}

	f, err := os.Create(FileName(dir, item.Title))
	if err != nil {
		return fmt.Errorf("creating epub file: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)

	// The mimetype member must come first and be stored uncompressed.
	mimetype, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("writing mimetype: %w", err)
	}
	if _, err := mimetype.Write([]byte("application/epub+zip")); err != nil {
		return fmt.Errorf("writing mimetype: %w", err)
	}

	files := []struct {
		name     string
		contents string
	}{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/package.opf", packageOPF(feedName, item)},
		{"OEBPS/nav.xhtml", navXHTML(item.Title)},
		{"OEBPS/content.xhtml", contentXHTML(item.Title, content)},
	}
	for _, file := range files {
		member, err := w.Create(file.name)
		if err != nil {
			return fmt.Errorf("writing %s: %w", file.name, err)
		}
		if _, err := member.Write([]byte(file.contents)); err != nil {
			return fmt.Errorf("writing %s: %w", file.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing epub: %w", err)
	}
	return f.Close()
}

// FileName maps an entry title to its EPUB path inside dir. Slashes in the
// title would otherwise escape into subdirectories.
func FileName(dir, title string) string {
	return filepath.Join(dir, strings.ReplaceAll(title, "/", "_")+".epub")
}

func packageOPF(feedName string, item *gofeed.Item) string {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&b, "    <dc:identifier id=\"pub-id\">urn:uuid:%s</dc:identifier>\n", uuid.New())
	fmt.Fprintf(&b, "    <dc:title>%s</dc:title>\n", html.EscapeString(item.Title))
	b.WriteString("    <dc:language>en</dc:language>\n")

	modified := time.Now().UTC()
	if item.UpdatedParsed != nil {
		modified = item.UpdatedParsed.UTC()
	} else if item.PublishedParsed != nil {
		modified = item.PublishedParsed.UTC()
	}
	fmt.Fprintf(&b, "    <meta property=\"dcterms:modified\">%s</meta>\n", modified.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "    <meta property=\"belongs-to-collection\">%s</meta>\n", html.EscapeString(feedName))

	for _, author := range item.Authors {
		if author != nil && author.Name != "" {
			fmt.Fprintf(&b, "    <dc:creator>%s</dc:creator>\n", html.EscapeString(author.Name))
		}
	}

	if item.Description != "" && len(item.Description) < maxDescriptionLength {
		fmt.Fprintf(&b, "    <dc:description>%s</dc:description>\n", html.EscapeString(item.Description))
	}

	b.WriteString(`  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="content" href="content.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="content"/>
  </spine>
</package>
`)
	return b.String()
}

func navXHTML(title string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
  <head>
    <title>%s</title>
  </head>
  <body>
    <nav epub:type="toc">
      <ol>
        <li><a href="content.xhtml">%[1]s</a></li>
      </ol>
    </nav>
  </body>
</html>
`, html.EscapeString(title))
}

func contentXHTML(title, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
  <head>
    <meta http-equiv="Content-Type" content="application/xhtml+xml; charset=utf-8"/>
    <title>%s</title>
  </head>
  <body>
%s
  </body>
</html>
`, html.EscapeString(title), body)
}
