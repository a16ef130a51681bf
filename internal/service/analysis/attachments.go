package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/google/uuid"

	"mindscope/internal/models"
)

// Extractor pulls readable text out of uploaded attachments so their
// content can flow into sentiment analysis. Uploads are staged under a temp
// directory and removed as soon as they have been read.
type Extractor struct {
	loader *file.FileLoader
	dir    string
}

// NewExtractor builds an extractor staging files under dir; an empty dir
// uses the system temp directory.
func NewExtractor(ctx context.Context, dir string) (*Extractor, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "mindscope-uploads")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Extractor{loader: loader, dir: dir}, nil
}

// ExtractText stages the attachment, parses it, and returns its text. The
// staged copy is always removed. Unreadable content yields an empty string,
// not an error; an attachment the parser cannot read simply contributes no
// sentiment signal.
func (e *Extractor) ExtractText(ctx context.Context, att models.Attachment) (string, error) {
	if len(att.Data) == 0 {
		return "", nil
	}
	ext := strings.ToLower(filepath.Ext(att.Name))
	staged := filepath.Join(e.dir, uuid.NewString()+ext)
	if err := os.WriteFile(staged, att.Data, 0o600); err != nil {
		return "", fmt.Errorf("stage attachment %s: %w", att.Name, err)
	}
	defer os.Remove(staged)

	docs, err := e.loader.Load(ctx, document.Source{URI: staged})
	if err != nil {
		return "", nil
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	return strings.TrimSpace(builder.String()), nil
}
