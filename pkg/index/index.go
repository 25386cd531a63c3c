// Package index uploads chunked email documents to the external search
// index. The index consumes finished pipeline output only; nothing here is
// called mid-pipeline.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haneul-labs/mailaction/pkg/llm"
	"github.com/haneul-labs/mailaction/pkg/logging"
	"github.com/haneul-labs/mailaction/pkg/pipeline"
)

// EmbeddingDims is the vector width of the reference embedding deployment.
// Total embedding failure yields a zero vector of this width per chunk
// rather than aborting indexing.
const EmbeddingDims = 1536

const (
	defaultAPIVersion = "2023-11-01"
	defaultTimeout    = 30 * time.Second
	previewLen        = 200
)

// Document is one chunk document uploaded to the search index. Action
// fields are duplicated onto every chunk of an email that produced one.
type Document struct {
	SearchAction   string    `json:"@search.action"`
	ID             string    `json:"id"`
	EmailID        string    `json:"emailId"`
	ConversationID string    `json:"conversationId"`
	Subject        string    `json:"subject"`
	FromName       string    `json:"from_name"`
	FromEmail      string    `json:"from_email"`
	ToNames        []string  `json:"to_names"`
	CcNames        []string  `json:"cc_names"`
	ReceivedAt     string    `json:"receivedAt"`
	Chunk          string    `json:"chunk"`
	BodyPreview    string    `json:"bodyPreview"`
	ChunkEmbedding []float32 `json:"chunkEmbedding"`
	WebLink        string    `json:"webLink"`
	HTMLBody       string    `json:"html_body"`

	ActionType string   `json:"action_type,omitempty"`
	Assignee   string   `json:"assignee,omitempty"`
	Due        string   `json:"due,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Client talks to the search index REST API.
type Client struct {
	endpoint   string
	indexName  string
	apiKey     string
	apiVersion string
	httpClient *http.Client
	log        logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(v string) Option {
	return func(c *Client) { c.apiVersion = v }
}

// NewClient creates a search index client.
func NewClient(endpoint, indexName, apiKey string, log logging.Logger, opts ...Option) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		indexName:  indexName,
		apiKey:     apiKey,
		apiVersion: defaultAPIVersion,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With(logging.F("component", "search_index")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends documents to the index in one mergeOrUpload batch.
func (c *Client) Upload(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"value": docs})
	if err != nil {
		return fmt.Errorf("encoding index batch: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", c.endpoint, c.indexName, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search index upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("search index upload failed: unexpected status %d: %s", resp.StatusCode, body)
	}

	c.log.Debug("index batch uploaded", logging.F("documents", len(docs)))
	return nil
}

// Uploader is the interface the batch runner needs from the index client.
type Uploader interface {
	Upload(ctx context.Context, docs []Document) error
}

var _ Uploader = (*Client)(nil)

// Indexer chunks emails, embeds the chunks, and uploads documents.
type Indexer struct {
	uploader Uploader
	embedder llm.Embedder
	log      logging.Logger
}

// NewIndexer wires an uploader and an embedder together.
func NewIndexer(uploader Uploader, embedder llm.Embedder, log logging.Logger) *Indexer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Indexer{
		uploader: uploader,
		embedder: embedder,
		log:      log.With(logging.F("component", "indexer")),
	}
}

// IndexEmail uploads one document per chunk of the email's subject and
// body. A nil action indexes the email without action fields. Embedding
// failure degrades to zero vectors; only the upload itself can fail.
func (ix *Indexer) IndexEmail(ctx context.Context, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) error {
	fullText := email.Subject + "\n\n" + email.Body
	chunks := pipeline.ChunkText(fullText, pipeline.DefaultChunkSize, pipeline.DefaultChunkOverlap)

	embeddings, err := ix.embedder.Embed(ctx, chunks)
	if err != nil || len(embeddings) != len(chunks) {
		ix.log.Warn("embedding failed, using zero vectors", logging.Err(err))
		embeddings = make([][]float32, len(chunks))
		for i := range embeddings {
			embeddings[i] = make([]float32, EmbeddingDims)
		}
	}

	docs := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		doc := Document{
			SearchAction:   "mergeOrUpload",
			ID:             pipeline.DocumentKey(email.EmailID, i),
			EmailID:        email.EmailID,
			ConversationID: email.ConversationID,
			Subject:        email.Subject,
			FromName:       email.From.Name,
			FromEmail:      email.From.Email,
			ToNames:        addressNames(email.To),
			CcNames:        addressNames(email.Cc),
			ReceivedAt:     email.ReceivedAt,
			Chunk:          chunk,
			BodyPreview:    bodyPreview(email.Body),
			ChunkEmbedding: embeddings[i],
			HTMLBody:       email.HTMLBody,
		}
		if action != nil {
			doc.ActionType = string(action.Type)
			doc.Assignee = action.Assignee
			doc.Due = action.Due
			doc.Priority = action.Priority
			doc.Tags = action.Tags
			doc.Confidence = action.Confidence
		}
		docs = append(docs, doc)
	}

	return ix.uploader.Upload(ctx, docs)
}

func addressNames(addrs []pipeline.Address) []string {
	names := make([]string, 0, len(addrs))
	for _, a := range addrs {
		names = append(names, a.Name)
	}
	return names
}

func bodyPreview(body string) string {
	runes := []rune(body)
	if len(runes) > previewLen {
		return string(runes[:previewLen]) + "..."
	}
	return body
}
