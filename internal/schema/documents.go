package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"voice-order-service/internal/models"
)

// Document names a JSON request body that has a schema.
type Document string

const (
	DocSetup Document = "setup"
	DocTurn  Document = "turn"
)

// Phone numbers may be empty, otherwise 7 to 15 digits with the usual
// separators.
const phonePattern = `^$|^[-+(). ]*(?:[0-9][-+(). ]*){7,15}$`

const setupSchemaTemplate = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": { "type": "string", "maxLength": %[1]d },
    "locations": {
      "type": ["array", "null"],
      "maxItems": %[2]d,
      "items": { "type": "string" }
    },
    "ownerName": { "type": "string", "maxLength": %[1]d },
    "restaurantNumber": { "$ref": "#/definitions/phone" },
    "aiNumber": { "$ref": "#/definitions/phone" },
    "posSystem": { "type": "string", "pattern": %[3]q },
    "menu": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "category": { "type": "string" },
          "items": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": { "$ref": "#/definitions/nonBlank" },
                "price": { "type": "number", "minimum": 0 },
                "description": { "type": "string" },
                "category": { "type": "string" }
              }
            }
          }
        }
      }
    },
    "deals": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": { "$ref": "#/definitions/nonBlank" },
          "description": { "type": "string" },
          "price": { "type": "number", "minimum": 0 }
        }
      }
    },
    "language": { "type": "string" },
    "voice": { "type": "string" },
    "accent": { "type": "string" },
    "step": { "type": "integer", "minimum": 0, "maximum": %[4]d },
    "setupComplete": { "type": "boolean" }
  },
  "definitions": {
    "phone": { "type": "string", "pattern": %[5]q },
    "nonBlank": { "type": "string", "pattern": "\\S" }
  }
}`

const turnSchemaTemplate = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "transcript": { "type": "string", "maxLength": %d }
  }
}`

func posPattern() string {
	names := make([]string, len(models.POSSystems))
	for i, p := range models.POSSystems {
		names[i] = regexp.QuoteMeta(p)
	}
	return "^$|^(?i:" + strings.Join(names, "|") + ")$"
}

func mustSchema(doc string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("schema: compile: %v", err))
	}
	return s
}

func compileDocuments(maxTranscriptLen int) map[Document]*gojsonschema.Schema {
	return map[Document]*gojsonschema.Schema{
		DocSetup: mustSchema(fmt.Sprintf(setupSchemaTemplate,
			maxNameLen, maxLocations, posPattern(), maxSetupStep, phonePattern)),
		DocTurn: mustSchema(fmt.Sprintf(turnSchemaTemplate, maxTranscriptLen)),
	}
}

// ValidateJSON checks a raw request body against the document's schema.
// Malformed JSON and schema violations both match ErrInvalid.
func (v *Validator) ValidateJSON(doc Document, body []byte) error {
	s, ok := v.documents[doc]
	if !ok {
		return fmt.Errorf("%w: unknown document %q", ErrInvalid, doc)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, e := range result.Errors() {
		verr.add(fieldPath(e), "%s", e.Description())
	}
	sort.SliceStable(verr.Fields, func(i, j int) bool {
		return verr.Fields[i].Field < verr.Fields[j].Field
	})
	return verr
}

const rootContext = "(root)"

// fieldPath renders an error location as menu[0].items[1].name.
func fieldPath(e gojsonschema.ResultError) string {
	path := strings.TrimPrefix(e.Context().String(), rootContext)
	path = strings.TrimPrefix(path, ".")
	if e.Type() == "required" {
		if p, ok := e.Details()["property"].(string); ok {
			if path != "" {
				path += "."
			}
			path += p
		}
	}
	if path == "" {
		return "body"
	}

	var b strings.Builder
	for i, part := range strings.Split(path, ".") {
		if _, err := strconv.Atoi(part); err == nil {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
