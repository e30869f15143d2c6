// Package page defines the rendered-page capability consumed by the signal
// extractors, plus a goquery-backed implementation built from raw HTML.
package page

import "net/http"

// RenderedPage exposes everything extractors may read from one loaded page.
// Implementations must return zero values for missing elements, never errors.
type RenderedPage interface {
	URL() string
	Status() int
	OK() bool
	Headers() http.Header
	HTML() string
	Text() string
	Title() string
	Meta(name string) string
	LinkRel(rel string) string
	HeadingCount(tag string) int
	Links() []Link
	Images() []Image
	Forms() []Form
	Scripts() []string
	JSONLD() []string
	Clickables() []Clickable
	Responses() []Response
	Console() []ConsoleEvent
}

// Link is an anchor with an href attribute.
type Link struct {
	// Href is the raw attribute value.
	Href string
	// Abs is Href resolved against the page URL; empty when unresolvable.
	Abs  string
	Rel  string
	Text string
}

// Image is an <img> element.
type Image struct {
	Src string
	Alt string
	// HasAlt distinguishes a missing alt attribute from an empty one.
	HasAlt bool
}

// Form is a <form> element and its fields.
type Form struct {
	Action string      `json:"action"`
	Method string      `json:"method"`
	Inputs []FormInput `json:"inputs"`
}

// FormInput is an input, textarea or select inside a form.
type FormInput struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder"`
}

// Clickable is an anchor, button or submit input a visitor could press.
type Clickable struct {
	Tag     string
	Text    string
	Href    string
	Visible bool
}

// Response is one network response observed while the page loaded.
type Response struct {
	URL      string
	Host     string
	Type     string
	MIMEType string
	Status   int
	Size     int64
	// TTFBMillis is populated for the main document only.
	TTFBMillis int64
}

// ConsoleEvent is a console call or uncaught exception raised by the page.
type ConsoleEvent struct {
	Level string
	Text  string
}

// IsError reports whether the event represents an error condition.
func (e ConsoleEvent) IsError() bool {
	return e.Level == "error" || e.Level == "exception" || e.Level == "assert"
}
