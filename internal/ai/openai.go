package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/recipesnap/apiserver/config"
	"github.com/sirupsen/logrus"
)

const (
	OpVision = "vision"
	OpRecipe = "recipe"
	OpImage  = "image"

	visionSystemPrompt = "あなたは料理の食材を見分けるアシスタントです。"
	visionUserPrompt   = "この画像に写っている食材をリストアップしてください。食材名だけを日本語で返してください。例: [\"トマト\",\"玉ねぎ\",\"鶏肉\"]"
	recipeSystemPrompt = "あなたは優秀な料理アシスタントです。"
	recipeUserPrompt   = "以下の食材を使った家庭料理のレシピを1つ考えてください。\n" +
		"次の形式で日本語で答えてください。\n" +
		"料理名: <料理の名前>\n材料:\n- <材料と分量>\n手順:\n1. <手順>\n\n食材: %s"
	imagePrompt = "料理名: %s\n食材: %s\n\n日本の家庭料理風の完成品写真を生成してください。"

	visionMaxTokens   = 200
	recipeTemperature = 0.7

	// A b64_json 1024x1024 PNG is a few MB.
	defaultMaxResponseBytes = 32 << 20
)

// Observer records the outcome of each provider call.
type Observer interface {
	ObserveAICall(op string, duration time.Duration, err error)
}

// Client talks to an OpenAI-compatible API for ingredient detection,
// recipe writing and dish image generation.
type Client struct {
	apiKey      string
	baseURL     string
	visionModel string
	textModel   string
	imageModel  string
	imageSize   string
	http        *http.Client
	observer    Observer
	log         logrus.FieldLogger

	maxResponseBytes int64
}

func NewClient(cfg config.AIConfig, observer Observer, log logrus.FieldLogger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		visionModel: cfg.VisionModel,
		textModel:   cfg.TextModel,
		imageModel:  cfg.ImageModel,
		imageSize:   cfg.ImageSize,
		http:        &http.Client{Timeout: timeout},
		observer:    observer,
		log:         log,

		maxResponseBytes: defaultMaxResponseBytes,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractIngredients asks the vision model which ingredients appear in the
// photo. An image with no recognizable food yields an empty list.
func (c *Client) ExtractIngredients(ctx context.Context, image []byte, contentType string) ([]string, error) {
	if len(image) == 0 {
		return nil, &UpstreamError{Op: OpVision, Err: errors.New("empty image")}
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)

	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{Role: "system", Content: visionSystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: visionUserPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}},
		},
		MaxTokens: visionMaxTokens,
	}

	content, err := c.chat(ctx, OpVision, req)
	if err != nil {
		return nil, err
	}
	return ParseIngredients(content), nil
}

// WriteRecipe returns recipe text whose first line names the dish.
func (c *Client) WriteRecipe(ctx context.Context, ingredients []string) (string, error) {
	req := chatRequest{
		Model: c.textModel,
		Messages: []chatMessage{
			{Role: "system", Content: recipeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(recipeUserPrompt, strings.Join(ingredients, ", "))},
		},
		Temperature: recipeTemperature,
	}
	content, err := c.chat(ctx, OpRecipe, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// GenerateImage returns PNG bytes of a finished-dish photo.
func (c *Client) GenerateImage(ctx context.Context, title string, ingredients []string) ([]byte, error) {
	req := imageRequest{
		Model:          c.imageModel,
		Prompt:         fmt.Sprintf(imagePrompt, title, strings.Join(ingredients, ", ")),
		Size:           c.imageSize,
		N:              1,
		ResponseFormat: "b64_json",
	}

	var resp imageResponse
	if err := c.call(ctx, OpImage, "/images/generations", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &UpstreamError{Op: OpImage, Err: errors.New("no image returned")}
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &UpstreamError{Op: OpImage, Err: fmt.Errorf("decode image: %w", err)}
	}
	return data, nil
}

func (c *Client) chat(ctx context.Context, op string, req chatRequest) (string, error) {
	var resp chatResponse
	if err := c.call(ctx, op, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Op: op, Err: errors.New("no response choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) call(ctx context.Context, op, path string, payload, out any) error {
	start := time.Now()
	err := c.post(ctx, op, path, payload, out)
	elapsed := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveAICall(op, elapsed, err)
	}
	entry := c.log.WithFields(logrus.Fields{"op": op, "duration_ms": elapsed.Milliseconds()})
	if err != nil {
		entry.WithError(err).Warn("ai call failed")
	} else {
		entry.Debug("ai call finished")
	}
	return err
}

func (c *Client) post(ctx context.Context, op, path string, payload, out any) error {
	if c.apiKey == "" {
		return &UpstreamError{Op: op, Err: errors.New("OPENAI_API_KEY not configured")}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if int64(len(raw)) > c.maxResponseBytes {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", c.maxResponseBytes)}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}
