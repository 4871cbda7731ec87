package ocr

import (
	"image"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromProto(t *testing.T) {
	pb := &documentaipb.Document{
		Text: "École Jean Jaurès\nCM2\n",
		Pages: []*documentaipb.Document_Page{
			{
				Dimension: &documentaipb.Document_Page_Dimension{Width: 1700, Height: 2200, Unit: "pixels"},
				Lines: []*documentaipb.Document_Page_Line{
					{
						Layout: &documentaipb.Document_Page_Layout{
							TextAnchor: &documentaipb.Document_TextAnchor{
								TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 0, EndIndex: 18}},
							},
							Confidence: 0.5,
							BoundingPoly: &documentaipb.BoundingPoly{
								NormalizedVertices: []*documentaipb.NormalizedVertex{{X: 0.25, Y: 0.5}, {X: 0.75, Y: 0.5}},
							},
						},
					},
					{
						Layout: &documentaipb.Document_Page_Layout{
							TextAnchor: &documentaipb.Document_TextAnchor{
								TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 18, EndIndex: 22}},
							},
						},
					},
				},
			},
		},
	}

	doc := FromProto(pb)

	require.Len(t, doc.Pages, 1)
	page := doc.Pages[0]
	assert.Equal(t, Dimension{Width: 1700, Height: 2200, Unit: "pixels"}, page.Dimension)
	require.Len(t, page.Lines, 2)

	first := page.Lines[0]
	assert.Equal(t, []TextSegment{{StartIndex: 0, EndIndex: 18}}, first.TextAnchor)
	assert.Equal(t, []Vertex{{X: 0.25, Y: 0.5}, {X: 0.75, Y: 0.5}}, first.BoundingPoly)
	require.NotNil(t, first.Confidence)
	assert.InDelta(t, 0.5, *first.Confidence, 1e-9)

	assert.Empty(t, page.Lines[1].BoundingPoly)
}

func TestFromProtoNil(t *testing.T) {
	doc := FromProto(nil)
	assert.Empty(t, doc.Text)
	assert.Empty(t, doc.Pages)
}

func TestTesseractLinesToDocument(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 20, 110, 40), Word: "Liste CM2 ", Confidence: 91},
		{Box: image.Rect(0, 0, 1, 1), Word: "   "},
		{Box: image.Rect(10, 50, 210, 70), Word: "Cahier d'écriture", Confidence: 80},
	}

	doc := linesToDocument(boxes, 200, 100)

	assert.Equal(t, "Liste CM2\nCahier d'écriture\n", doc.Text)
	require.Len(t, doc.Pages, 1)
	lines := doc.Pages[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, []TextSegment{{StartIndex: 0, EndIndex: 9}}, lines[0].TextAnchor)
	assert.Equal(t, []TextSegment{{StartIndex: 10, EndIndex: 27}}, lines[1].TextAnchor)
	assert.InDelta(t, 0.91, *lines[0].Confidence, 1e-9)
	assert.Equal(t, Vertex{X: 0.05, Y: 0.2}, lines[0].BoundingPoly[0])
}
