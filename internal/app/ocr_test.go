package app

import (
	"context"
	"strings"
	"testing"
)

func TestOCR_RejectsNonImageBytes(t *testing.T) {
	client := NewOCRClient(nil, "googleai/gemini-2.5-flash")

	// Plain text is detected before any model call happens.
	_, err := client.OCR(context.Background(), []byte("just some text"))
	if err == nil {
		t.Fatal("expected error for non-image input")
	}
	if !strings.Contains(err.Error(), "not an image") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOCR_RejectsEmptyInput(t *testing.T) {
	client := NewOCRClient(nil, "googleai/gemini-2.5-flash")

	if _, err := client.OCR(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
