package extract

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/JakeFAU/site-signals-crawler/internal/page"
)

// MaxJSONLDSample bounds the raw JSON-LD blocks kept per page.
const MaxJSONLDSample = 5

// Person is a team member pulled from schema.org Person markup.
type Person struct {
	Name     string   `json:"name"`
	JobTitle string   `json:"job_title,omitempty"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Profiles []string `json:"profiles,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// JSONLDSample returns at most MaxJSONLDSample raw blocks, never nil.
func JSONLDSample(p page.RenderedPage) []string {
	blocks := p.JSONLD()
	if len(blocks) > MaxJSONLDSample {
		blocks = blocks[:MaxJSONLDSample]
	}
	out := make([]string, len(blocks))
	copy(out, blocks)
	return out
}

// Persons walks every JSON-LD block on the page and returns the Person nodes.
// A block that fails to parse is skipped.
func Persons(p page.RenderedPage) []Person {
	var out []Person
	for _, block := range p.JSONLD() {
		var doc any
		if err := json.Unmarshal([]byte(block), &doc); err != nil {
			continue
		}
		walkJSONLD(doc, func(node map[string]any) {
			if person, ok := personFrom(node); ok {
				person.Source = p.URL()
				out = append(out, person)
			}
		})
	}
	return out
}

// walkJSONLD visits every object in the tree, including @graph members and
// nested values. Object members are visited @graph first, then by key, so the
// order is stable across runs.
func walkJSONLD(v any, visit func(map[string]any)) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			walkJSONLD(item, visit)
		}
	case map[string]any:
		visit(node)
		if graph, ok := node["@graph"]; ok {
			walkJSONLD(graph, visit)
		}
		for _, key := range slices.Sorted(maps.Keys(node)) {
			if key != "@graph" {
				walkJSONLD(node[key], visit)
			}
		}
	}
}

func personFrom(node map[string]any) (Person, bool) {
	if !hasType(node["@type"], "person") {
		return Person{}, false
	}
	person := Person{
		Name:     stringField(node["name"]),
		JobTitle: stringField(node["jobTitle"]),
		Email:    strings.TrimPrefix(stringField(node["email"]), "mailto:"),
		Phone:    strings.TrimPrefix(stringField(node["telephone"]), "tel:"),
	}
	for _, cp := range asList(node["contactPoint"]) {
		point, ok := cp.(map[string]any)
		if !ok {
			continue
		}
		if person.Email == "" {
			person.Email = strings.TrimPrefix(stringField(point["email"]), "mailto:")
		}
		if person.Phone == "" {
			person.Phone = strings.TrimPrefix(stringField(point["telephone"]), "tel:")
		}
	}
	for _, same := range asList(node["sameAs"]) {
		if s := stringField(same); s != "" {
			person.Profiles = append(person.Profiles, s)
		}
	}
	if person.Name == "" && person.Email == "" && person.Phone == "" {
		return Person{}, false
	}
	return person, true
}

func hasType(v any, want string) bool {
	for _, t := range asList(v) {
		if s, ok := t.(string); ok && strings.EqualFold(strings.TrimSpace(s), want) {
			return true
		}
	}
	return false
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return stringField(t[0])
		}
	case map[string]any:
		// {"@value": ...} or {"name": ...} wrappers.
		if s := stringField(t["@value"]); s != "" {
			return s
		}
		return stringField(t["name"])
	}
	return ""
}
