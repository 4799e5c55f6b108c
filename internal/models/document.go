// Package models defines core data structures for fields, documents, extraction results and searches.
package models

import "time"

// Document is one uploaded file under audit.
type Document struct {
	ID         string                    `json:"id" db:"id"`
	FileName   string                    `json:"fileName" db:"file_name"`
	FileType   string                    `json:"fileType" db:"file_type"`
	Size       int64                     `json:"size" db:"size"`
	Content    []byte                    `json:"-" db:"content"`
	PreviewURL string                    `json:"previewUrl,omitempty" db:"preview_url"`
	Status     Status                    `json:"status" db:"status"`
	ErrorMsg   string                    `json:"errorMsg,omitempty" db:"error_msg"`
	Data       map[string]ExtractedValue `json:"data" db:"data"`
	CreatedAt  time.Time                 `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at" db:"updated_at"`
}

// DocumentInput is the input for uploading a document.
type DocumentInput struct {
	ID       string `json:"id,omitempty"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType,omitempty"`
	Content  []byte `json:"content"`
}

// Clone returns a deep copy so callers never share Content or Data with the store.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Content != nil {
		c.Content = append([]byte(nil), d.Content...)
	}
	c.Data = make(map[string]ExtractedValue, len(d.Data))
	for k, v := range d.Data {
		c.Data[k] = v.Clone()
	}
	return &c
}

// WithStatus returns a copy of d moved to status. errMsg is kept only for StatusError.
// Data is replaced only when data is non-nil.
func (d *Document) WithStatus(status Status, errMsg string, data map[string]ExtractedValue) *Document {
	c := d.Clone()
	c.Status = status
	c.ErrorMsg = ""
	if status == StatusError {
		c.ErrorMsg = errMsg
	}
	if data != nil {
		c.Data = data
	}
	return c
}
