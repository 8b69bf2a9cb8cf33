package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dahdouh-ai/internal/config"
)

// VisionProvider answers questions about an image through a Hugging Face style
// inference endpoint: POST <base_url>/<model> {"inputs":{"image":...,"question":...}}.
type VisionProvider struct {
	client        *resty.Client
	fetcher       *resty.Client
	model         string
	imageInput    string
	maxImageBytes int64
}

type visionRequest struct {
	Inputs visionInputs `json:"inputs"`
}

type visionInputs struct {
	Image    string `json:"image"`
	Question string `json:"question"`
}

const defaultMaxImageBytes = 10 << 20

// NewVisionProvider builds the provider. maxImageBytes caps images fetched by
// URL for inline requests.
func NewVisionProvider(cfg config.VisionConfig, maxImageBytes int64) *VisionProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	imageInput := cfg.ImageInput
	if imageInput == "" {
		imageInput = config.ImageInputInline
	}
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	return &VisionProvider{
		client:        client,
		fetcher:       resty.New().SetTimeout(timeout),
		model:         strings.Trim(cfg.Model, "/"),
		imageInput:    imageInput,
		maxImageBytes: maxImageBytes,
	}
}

func (p *VisionProvider) Name() string { return "vision:" + p.model }

func (p *VisionProvider) Supports(m Modality) bool {
	_, ok := m.(Vision)
	return ok
}

func (p *VisionProvider) Generate(ctx context.Context, m Modality) (string, error) {
	turn, ok := m.(Vision)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoProvider, m.Kind())
	}

	image, err := p.imageField(ctx, turn.Image)
	if err != nil {
		return "", err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(visionRequest{Inputs: visionInputs{Image: image, Question: turn.Prompt}}).
		Post("/" + p.model)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamTransport, err)
	}

	body := resp.Body()
	if msg, ok := errorMessage(body); ok {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstreamPayload, resp.StatusCode(), msg)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstreamStatus, resp.StatusCode(), truncate(string(body), 256))
	}

	answer, ok := extractAnswer(body)
	if !ok {
		return "", fmt.Errorf("%w: no answer field in vision response", ErrUnparseable)
	}
	return answer, nil
}

func (p *VisionProvider) imageField(ctx context.Context, img Image) (string, error) {
	if p.imageInput == config.ImageInputURL {
		if img.URL == "" {
			return "", fmt.Errorf("%w: provider needs an image url", ErrImageReference)
		}
		return img.URL, nil
	}

	data := img.Data
	if len(data) == 0 {
		if img.URL == "" {
			return "", fmt.Errorf("%w: no image data", ErrImageReference)
		}
		fetched, err := p.fetch(ctx, img.URL)
		if err != nil {
			return "", err
		}
		data = fetched
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// fetch downloads an image the caller already vetted, reading at most
// maxImageBytes.
func (p *VisionProvider) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := p.fetcher.R().SetContext(ctx).SetDoNotParseResponse(true).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch image failed: %v", ErrImageReference, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("%w: fetch image status %d", ErrImageReference, resp.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(body, p.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read image failed: %v", ErrImageReference, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: fetched image is empty", ErrImageReference)
	}
	if int64(len(data)) > p.maxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrImageReference, p.maxImageBytes)
	}
	return data, nil
}

// answerFields is the extraction order for vision replies.
var answerFields = []string{"answer", "generated_text"}

// extractAnswer looks for an answer field on the top-level object first, then on
// the first element of an array of generations.
func extractAnswer(body []byte) (string, bool) {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false
	}

	switch v := parsed.(type) {
	case map[string]interface{}:
		return firstField(v)
	case []interface{}:
		if len(v) == 0 {
			return "", false
		}
		if obj, ok := v[0].(map[string]interface{}); ok {
			return firstField(obj)
		}
	}
	return "", false
}

func firstField(obj map[string]interface{}) (string, bool) {
	for _, field := range answerFields {
		if s, ok := obj[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// errorMessage recognises {"error": "..."}, {"error": ["..."]} and {"error": {"message": "..."}}.
func errorMessage(body []byte) (string, bool) {
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false
	}
	raw, ok := parsed["error"]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "; "), true
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg, true
		}
	}
	return fmt.Sprint(raw), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
