package course

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedListing is returned for listing documents that cannot be used:
// undecodable, failure-flagged, or without lessons.
var ErrMalformedListing = errors.New("malformed listing")

// StatusOK is the success indicator a listing document must carry.
const StatusOK = 200

// Format selects the encoding of a listing document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// FormatFor picks the document format from an address's extension.
func FormatFor(address string) Format {
	if i := strings.IndexAny(address, "?#"); i >= 0 {
		address = address[:i]
	}
	switch strings.ToLower(path.Ext(address)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// listingDocument is the wire shape of a listing source:
//
//	{"status": 200, "data": {"items": [{"id": "1", "title": "...",
//	  "location": "a.html", "metadata": {"timecode": "10 min"}}]}}
type listingDocument struct {
	Status int `json:"status" yaml:"status"`
	Data   struct {
		Items []listingItem `json:"items" yaml:"items"`
	} `json:"data" yaml:"data"`
}

type listingItem struct {
	ID       scalar `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Location string `json:"location" yaml:"location"`
	Metadata struct {
		Timecode scalar `json:"timecode" yaml:"timecode"`
	} `json:"metadata" yaml:"metadata"`
}

// scalar accepts either a string or a bare number.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = scalar(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = scalar(n.String())
	return nil
}

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	*s = scalar(node.Value)
	return nil
}

// ParseListing decodes a listing document. The document must carry status 200
// and at least one lesson, and every lesson needs a location.
func ParseListing(data []byte, format Format) (Listing, error) {
	var doc listingDocument
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrMalformedListing, format, err)
	}

	if doc.Status != StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrMalformedListing, doc.Status)
	}
	if len(doc.Data.Items) == 0 {
		return nil, fmt.Errorf("%w: no lessons", ErrMalformedListing)
	}

	listing := make(Listing, 0, len(doc.Data.Items))
	for i, item := range doc.Data.Items {
		loc := strings.TrimSpace(item.Location)
		if loc == "" {
			return nil, fmt.Errorf("%w: lesson %d has no location", ErrMalformedListing, i)
		}
		listing = append(listing, Lesson{
			ID:       string(item.ID),
			Title:    item.Title,
			Location: loc,
			Timecode: string(item.Metadata.Timecode),
		})
	}
	return listing, nil
}

// EncodeListing renders a listing as a status-200 listing document.
func EncodeListing(l Listing, format Format) ([]byte, error) {
	type metadata struct {
		Timecode string `json:"timecode" yaml:"timecode"`
	}
	type item struct {
		ID       string   `json:"id" yaml:"id"`
		Title    string   `json:"title" yaml:"title"`
		Location string   `json:"location" yaml:"location"`
		Metadata metadata `json:"metadata" yaml:"metadata"`
	}
	type data struct {
		Items []item `json:"items" yaml:"items"`
	}
	doc := struct {
		Status int  `json:"status" yaml:"status"`
		Data   data `json:"data" yaml:"data"`
	}{Status: StatusOK}

	for _, lesson := range l {
		doc.Data.Items = append(doc.Data.Items, item{
			ID:       lesson.ID,
			Title:    lesson.Title,
			Location: lesson.Location,
			Metadata: metadata{Timecode: lesson.Timecode},
		})
	}

	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}
