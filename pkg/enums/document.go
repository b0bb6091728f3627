package enums

import (
	"fmt"
	"strings"
)

// DocumentType is the rendered format of an uploaded work report.
type DocumentType string

const (
	DocumentTypePDF  DocumentType = "pdf"
	DocumentTypeDOCX DocumentType = "docx"
)

var validDocumentTypes = []DocumentType{
	DocumentTypePDF,
	DocumentTypeDOCX,
}

func (d DocumentType) IsValid() bool {
	for _, candidate := range validDocumentTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDocumentType converts raw input into DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validDocumentTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document type %q", value)
}
