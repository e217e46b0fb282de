// Package imagegen produces concept images (ad mockups, stimulus
// material) through the Imagen API.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/genius-labs/insight/internal/log"
)

// Sentinel errors.
var (
	// ErrEmptyPrompt indicates a request without a prompt.
	ErrEmptyPrompt = errors.New("image prompt is empty")

	// ErrGenerationFailed indicates the provider call failed.
	ErrGenerationFailed = errors.New("image generation failed")
)

// Image is one generated image.
type Image struct {
	Data     []byte
	MIMEType string
}

// Generator is the image capability consumers depend on.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) (Image, error)
}

// Imagen generates images through the Google GenAI SDK.
type Imagen struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  log.Logger
}

// NewImagen creates an Imagen generator. logger may be nil.
func NewImagen(ctx context.Context, apiKey, model string, timeout time.Duration, logger log.Logger) (*Imagen, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("image model is required")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid image timeout %v", timeout)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Imagen{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// GenerateImage produces one image for the prompt, under the
// configured per-call timeout.
func (g *Imagen) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	if prompt == "" {
		return Image{}, ErrEmptyPrompt
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateImages(callCtx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return Image{}, fmt.Errorf("%w: no image returned", ErrGenerationFailed)
	}

	img := resp.GeneratedImages[0].Image
	g.logger.Debug("image generated", "model", g.model, "bytes", len(img.ImageBytes))
	return Image{
		Data:     img.ImageBytes,
		MIMEType: img.MIMEType,
	}, nil
}
