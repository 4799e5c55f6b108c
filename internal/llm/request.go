package llm

import (
	"github.com/hyperjump/ticktie/internal/models"
)

const fallbackMIMEType = "application/octet-stream"

// BuildExtractionRequest turns a document and the field list into an extraction request.
// It does not touch the network.
func BuildExtractionRequest(doc *models.Document, fields []models.FieldDefinition) *ExtractionRequest {
	mimeType := doc.FileType
	if mimeType == "" {
		mimeType = fallbackMIMEType
	}
	return &ExtractionRequest{
		DocumentID:  doc.ID,
		FileName:    doc.FileName,
		MIMEType:    mimeType,
		Data:        doc.Content,
		Instruction: ExtractionPrompt(fields),
		Schema:      ResponseSchema(fields),
	}
}
