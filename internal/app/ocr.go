package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const ocrPrompt = "Extract all text content from this image, preserving the original reading order. Return only the extracted text, nothing else. If the image contains no text, return an empty response."

// OCRClient extracts text from embedded page images with a multimodal model.
type OCRClient struct {
	g       *genkit.Genkit
	modelID string
}

// NewOCRClient creates an OCRClient bound to the given model.
func NewOCRClient(g *genkit.Genkit, modelID string) *OCRClient {
	return &OCRClient{g: g, modelID: modelID}
}

// OCR extracts text from one image. Content type is detected from the bytes
// themselves, not trusted metadata.
func (c *OCRClient) OCR(ctx context.Context, image []byte) (string, error) {
	mediaType := http.DetectContentType(image)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("not an image (detected %s)", mediaType)
	}

	encoded := base64.StdEncoding.EncodeToString(image)
	message := ai.NewUserMessage(
		ai.NewMediaPart(mediaType, "data:"+mediaType+";base64,"+encoded),
		ai.NewTextPart(ocrPrompt),
	)

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelID),
		ai.WithMessages(message),
	)
	if err != nil {
		return "", fmt.Errorf("OCR generation failed: %w", err)
	}
	return resp.Text(), nil
}
