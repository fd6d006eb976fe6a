package extract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer runs Tesseract on page images. A client is created
// per call because gosseract clients must not be shared between goroutines.
type TesseractRecognizer struct {
	Languages []string
}

func (t TesseractRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(t.Languages) > 0 {
		if err := client.SetLanguage(t.Languages...); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}
