// Package record decodes the tablet's descriptor and content JSON files.
//
// Every document or collection on the device is described by a flat
// <uuid>.metadata descriptor; documents additionally carry a <uuid>.content
// record with rendering information. Neither file is authoritative about
// byte content — rendered pdf/epub targets live next to them.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Node types as they appear in descriptor files.
const (
	TypeCollection = "CollectionType"
	TypeDocument   = "DocumentType"
)

// FileKind classifies a document's renderable content.
type FileKind int

const (
	// KindNone means the content record was an empty object.
	KindNone FileKind = iota
	KindPDF
	KindEPUB
	KindNotebook
	// KindLines is the device-native format, serialized as an empty
	// fileType string.
	KindLines
)

func (k FileKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindEPUB:
		return "epub"
	case KindNotebook:
		return "notebook"
	case KindLines:
		return "lines"
	default:
		return "none"
	}
}

// Extension returns the on-device file extension for renderable kinds,
// and false for kinds that have no single renderable target.
func (k FileKind) Extension() (string, bool) {
	switch k {
	case KindPDF:
		return "pdf", true
	case KindEPUB:
		return "epub", true
	default:
		return "", false
	}
}

// Millis is an epoch-milliseconds timestamp that the device serializes
// either as a JSON string or as a bare number.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		*m = Millis(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Millis(v)
	return nil
}

// Metadata is a decoded descriptor file.
type Metadata struct {
	Deleted          bool   `json:"deleted"`
	LastModified     Millis `json:"lastModified"`
	CreatedTime      Millis `json:"createdTime"`
	MetadataModified bool   `json:"metadatamodified"`
	Modified         bool   `json:"modified"`
	Parent           string `json:"parent"`
	Pinned           bool   `json:"pinned"`
	Synced           bool   `json:"synced"`
	Type             string `json:"type"`
	Version          int    `json:"version"`
	VisibleName      string `json:"visibleName"`
}

// IsDocument reports whether the descriptor describes a document (as
// opposed to a collection).
func (m *Metadata) IsDocument() bool {
	return m.Type == TypeDocument
}

// Synthetic builds an in-memory descriptor for sentinel nodes (root,
// trash) that have no backing file on the device.
func Synthetic(visibleName string) *Metadata {
	return &Metadata{
		Type:        TypeCollection,
		VisibleName: visibleName,
	}
}

// Content is a decoded content record. The device writes an empty JSON
// object for documents that have no content yet; FileType stays nil in
// that case, distinct from the empty-string "lines" kind.
type Content struct {
	FileType        *string `json:"fileType"`
	PageCount       int     `json:"pageCount"`
	CoverPageNumber int     `json:"coverPageNumber"`
	FontName        string  `json:"fontName"`
	LineHeight      int     `json:"lineHeight"`
	Margins         int     `json:"margins"`
	Orientation     string  `json:"orientation"`
	FormatVersion   int     `json:"formatVersion"`
}

// Kind returns the classified file kind of the content record.
func (c *Content) Kind() FileKind {
	if c == nil || c.FileType == nil {
		return KindNone
	}
	switch *c.FileType {
	case "pdf":
		return KindPDF
	case "epub":
		return KindEPUB
	case "notebook":
		return KindNotebook
	case "":
		return KindLines
	default:
		return KindNone
	}
}

// DecodeMetadata parses descriptor text.
func DecodeMetadata(text string) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if meta.Type != TypeCollection && meta.Type != TypeDocument {
		return nil, fmt.Errorf("decode descriptor: unknown type %q", meta.Type)
	}
	return &meta, nil
}

// DecodeContent parses content record text.
func DecodeContent(text string) (*Content, error) {
	c := &Content{FormatVersion: 1}
	if err := json.Unmarshal([]byte(text), c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return c, nil
}
