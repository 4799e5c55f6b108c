// Package gemini implements llm.Model on the Google Gen AI SDK (Gemini API or Vertex AI).
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/ticktie/internal/llm"
	"github.com/hyperjump/ticktie/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"

	defaultExtractionModel = "gemini-2.5-flash"
	defaultReconcileModel  = "gemini-2.5-pro"
)

// Config selects the backend and models.
type Config struct {
	Backend         string
	APIKey          string
	Project         string
	Location        string
	ExtractionModel string
	ReconcileModel  string
	Temperature     float32
	Timeout         time.Duration
	// BaseURL overrides the service endpoint (proxies, tests).
	BaseURL    string
	HTTPClient *http.Client
}

// Client is an llm.Model backed by genai.
type Client struct {
	client          *genai.Client
	extractionModel string
	reconcileModel  string
	temperature     float32
	timeout         time.Duration
	logger          *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

var _ llm.Model = (*Client)(nil)

// New creates a client for cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	cc := &genai.ClientConfig{
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	}
	switch cfg.Backend {
	case BackendVertex:
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	case BackendGemini, "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("unknown model backend: %s (supported: gemini, vertex)", cfg.Backend)
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c := &Client{
		client:          gc,
		extractionModel: cfg.ExtractionModel,
		reconcileModel:  cfg.ReconcileModel,
		temperature:     cfg.Temperature,
		timeout:         cfg.Timeout,
		logger:          zap.NewNop(),
	}
	if c.extractionModel == "" {
		c.extractionModel = defaultExtractionModel
	}
	if c.reconcileModel == "" {
		c.reconcileModel = defaultReconcileModel
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Extract sends the document inline with the response schema and returns the JSON text.
func (c *Client) Extract(ctx context.Context, req *llm.ExtractionRequest) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Data, req.MIMEType),
			genai.NewPartFromText(req.Instruction),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(c.temperature),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: req.Schema,
	}

	start := time.Now()
	c.logger.Debug("llm.extract.start",
		zap.String("model", c.extractionModel),
		zap.String("document_id", req.DocumentID),
		zap.String("mime_type", req.MIMEType),
		zap.Int("bytes", len(req.Data)),
	)
	resp, err := c.client.Models.GenerateContent(ctx, c.extractionModel, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	texts, _, err := collectParts(resp)
	if err != nil {
		return "", err
	}
	text := strings.Join(texts, "")
	c.logger.Debug("llm.extract.ok",
		zap.String("document_id", req.DocumentID),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("snippet", utils.Truncate(text, 200)),
	)
	return text, nil
}

// Reconcile runs the prompt with the code execution tool and collects narrative text and code.
func (c *Client) Reconcile(ctx context.Context, req *llm.ReconcileRequest) (*llm.ReconcileResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(req.Prompt)}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
		Tools:       []*genai.Tool{{CodeExecution: &genai.ToolCodeExecution{}}},
	}

	start := time.Now()
	c.logger.Debug("llm.reconcile.start",
		zap.String("model", c.reconcileModel),
		zap.Int("prompt_chars", len(req.Prompt)),
	)
	resp, err := c.client.Models.GenerateContent(ctx, c.reconcileModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	texts, code, err := collectParts(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("llm.reconcile.ok",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("code_blocks", len(code)),
	)
	return &llm.ReconcileResponse{Text: strings.Join(texts, ""), Code: code}, nil
}

// collectParts walks the first candidate's parts in order, returning non-thought text parts and
// executable code fragments.
func collectParts(resp *genai.GenerateContentResponse) (texts []string, code []string, err error) {
	if resp == nil {
		return nil, nil, errors.New("nil response")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return nil, nil, fmt.Errorf("prompt blocked: %s %s", fb.BlockReason, fb.BlockReasonMessage)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, nil, errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, nil, errors.New("response blocked by safety filters")
	}
	if cand.Content == nil {
		return nil, nil, fmt.Errorf("candidate has no content (finish reason %s)", cand.FinishReason)
	}
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
		if p.ExecutableCode != nil && p.ExecutableCode.Code != "" {
			code = append(code, p.ExecutableCode.Code)
		}
	}
	return texts, code, nil
}
