package census

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Failure stages reported by Error.
const (
	StageRequest = "request"
	StageStatus  = "status"
	StageDecode  = "decode"
)

// Error is a fatal demographic-service failure.
type Error struct {
	Stage      string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("census ")
	b.WriteString(e.Stage)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(trimmed, []byte("<"))
}

// errorMessage extracts a one-line message from a failed response. The ACS
// service answers bad keys and unknown variables with HTML pages; for those
// the page title and body text are used.
func errorMessage(contentType string, body []byte) string {
	if !isHTML(contentType, body) {
		return collapse(string(body))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return collapse(string(body))
	}
	doc.Find("script, style").Remove()
	title := collapse(doc.Find("title").First().Text())
	text := collapse(doc.Find("body").Text())
	switch {
	case title != "" && text != "" && !strings.Contains(text, title):
		return title + ": " + text
	case text != "":
		return text
	default:
		return title
	}
}

func collapse(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
