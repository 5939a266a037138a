package message

import "strings"

// BlockType discriminates content blocks.
type BlockType string

// Block types.
const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
	BlockFile  BlockType = "file"
)

// ContentBlock is one piece of message content. Type decides which fields
// are meaningful.
type ContentBlock struct {
	Type     BlockType `json:"type"`
	Text     string    `json:"text,omitempty"`
	FileID   string    `json:"file_id,omitempty"`
	URL      string    `json:"url,omitempty"`
	MIMEType string    `json:"mime_type,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	Size     int64     `json:"size,omitempty"`
}

// NewTextBlock creates a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewImageBlock creates an image block referencing a platform file.
func NewImageBlock(fileID, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockImage, FileID: fileID, MIMEType: mimeType}
}

// NewFileBlock creates a document block referencing a platform file.
func NewFileBlock(fileID, mimeType, fileName string, size int64) ContentBlock {
	return ContentBlock{Type: BlockFile, FileID: fileID, MIMEType: mimeType, FileName: fileName, Size: size}
}

// TextContent joins the text blocks with newlines.
func TextContent(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
