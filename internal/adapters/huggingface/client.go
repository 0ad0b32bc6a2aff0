package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mikey/subscription-tracker/internal/utils"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

// Client talks to the HuggingFace inference API. It serves zero-shot
// classification from one model and text generation from another.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	zeroShotModel   string
	generationModel string
	maxNewTokens    int
	temperature     float32
	maxBodySize     int
	logger          *zap.Logger
	textProcessor   *utils.TextProcessor
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

type zeroShotResponse struct {
	Sequence string    `json:"sequence"`
	Labels   []string  `json:"labels"`
	Scores   []float64 `json:"scores"`
}

type generationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters generationParameters `json:"parameters"`
	Options    generationOptions    `json:"options"`
}

type generationOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type generationParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generationResponse struct {
	GeneratedText string `json:"generated_text"`
}

// NewClient creates a new HuggingFace inference client
func NewClient(
	httpClient *http.Client,
	baseURL string,
	apiKey string,
	zeroShotModel string,
	generationModel string,
	maxNewTokens int,
	temperature float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		zeroShotModel:   zeroShotModel,
		generationModel: generationModel,
		maxNewTokens:    maxNewTokens,
		temperature:     temperature,
		maxBodySize:     maxBodySize,
		logger:          logger,
		textProcessor:   textProcessor,
	}
}

// Name identifies the backend
func (c *Client) Name() string {
	return "huggingface/" + c.zeroShotModel
}

// ZeroShot scores text against the candidate labels
func (c *Client) ZeroShot(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	req := zeroShotRequest{
		Inputs: c.textProcessor.ProcessText(text, c.maxBodySize),
		Parameters: zeroShotParameters{
			CandidateLabels: labels,
		},
	}

	var resp zeroShotResponse
	if err := c.post(ctx, c.zeroShotModel, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Labels) != len(resp.Scores) || len(resp.Labels) == 0 {
		return nil, fmt.Errorf("malformed zero-shot response: %d labels, %d scores", len(resp.Labels), len(resp.Scores))
	}

	scores := make(map[string]float64, len(labels))
	for i, label := range resp.Labels {
		scores[label] = resp.Scores[i]
	}
	return scores, nil
}

// Generate runs prompt on the generation model
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := generationRequest{
		Inputs: c.textProcessor.SanitizeUTF8(prompt),
		Parameters: generationParameters{
			MaxNewTokens:   c.maxNewTokens,
			Temperature:    c.temperature,
			ReturnFullText: false,
		},
		Options: generationOptions{WaitForModel: true},
	}

	var resp []generationResponse
	if err := c.post(ctx, c.generationModel, req, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("empty response from HuggingFace")
	}
	return resp[0].GeneratedText, nil
}

func (c *Client) post(ctx context.Context, model string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := c.baseURL + "/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call HuggingFace model %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("HuggingFace model %s returned status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode HuggingFace response: %w", err)
	}

	c.logger.Debug("HuggingFace inference completed",
		zap.String("model", model),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
