package ocr

import (
	"context"
	"fmt"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/adverant/nexus/supplylist-worker/internal/logging"
)

// DocumentAIConfig holds the processor coordinates
type DocumentAIConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

// DocumentAIEngine sends documents to a Google Document AI OCR processor
type DocumentAIEngine struct {
	client *documentai.DocumentProcessorClient
	name   string
	logger *logging.Logger
}

// NewDocumentAIEngine creates a regional Document AI client.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
func NewDocumentAIEngine(ctx context.Context, cfg *DocumentAIConfig, opts ...option.ClientOption) (*DocumentAIEngine, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document ai project and processor ids are required")
	}
	location := cfg.Location
	if location == "" {
		location = "eu"
	}

	opts = append([]option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", location)),
	}, opts...)

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create document ai client: %w", err)
	}

	return &DocumentAIEngine{
		client: client,
		name:   fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, location, cfg.ProcessorID),
		logger: logging.NewLogger("DocumentAI"),
	}, nil
}

func (e *DocumentAIEngine) Name() string { return "documentai" }

// Process runs the processor on raw bytes
func (e *DocumentAIEngine) Process(ctx context.Context, content []byte, mimeType string) (*Document, error) {
	start := time.Now()

	resp, err := e.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("document ai process failed: %w", err)
	}

	doc := FromProto(resp.GetDocument())
	e.logger.Info("Document processed",
		"pages", len(doc.Pages),
		"chars", len(doc.Text),
		"duration", time.Since(start).Round(time.Millisecond))

	return doc, nil
}

// Close releases the gRPC connection
func (e *DocumentAIEngine) Close() error {
	return e.client.Close()
}

// FromProto converts a Document AI response into line geometry
func FromProto(pb *documentaipb.Document) *Document {
	if pb == nil {
		return &Document{}
	}

	doc := &Document{
		Text:  pb.GetText(),
		Pages: make([]Page, 0, len(pb.GetPages())),
	}

	for _, p := range pb.GetPages() {
		page := Page{
			Dimension: Dimension{
				Width:  float64(p.GetDimension().GetWidth()),
				Height: float64(p.GetDimension().GetHeight()),
				Unit:   p.GetDimension().GetUnit(),
			},
			Lines: make([]Line, 0, len(p.GetLines())),
		}

		for _, l := range p.GetLines() {
			layout := l.GetLayout()
			line := Line{}

			for _, seg := range layout.GetTextAnchor().GetTextSegments() {
				line.TextAnchor = append(line.TextAnchor, TextSegment{
					StartIndex: seg.GetStartIndex(),
					EndIndex:   seg.GetEndIndex(),
				})
			}
			for _, v := range layout.GetBoundingPoly().GetNormalizedVertices() {
				line.BoundingPoly = append(line.BoundingPoly, Vertex{X: float64(v.GetX()), Y: float64(v.GetY())})
			}
			if layout != nil {
				c := float64(layout.GetConfidence())
				line.Confidence = &c
			}

			page.Lines = append(page.Lines, line)
		}

		doc.Pages = append(doc.Pages, page)
	}

	return doc
}
