package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/remote"
)

const chromaService = "chroma"

// Chroma defaults.
const (
	DefaultTenant     = "default_tenant"
	DefaultDatabase   = "default_database"
	DefaultCollection = "kb_index"
)

// ChromaConfig addresses a collection on a Chroma server.
type ChromaConfig struct {
	BaseURL    string
	Tenant     string
	Database   string
	Collection string
	// EmbeddingModel is recorded in the collection's embedding_function on creation.
	EmbeddingModel string
	Timeout        time.Duration
}

// ChromaStore talks to the Chroma v2 REST API.
type ChromaStore struct {
	cfg    ChromaConfig
	client *remote.Client
	logger *zap.Logger
}

// NewChromaStore returns a store for cfg. Empty tenant, database and collection use the
// Chroma defaults.
func NewChromaStore(cfg ChromaConfig, opts ...Option) *ChromaStore {
	if cfg.Tenant == "" {
		cfg.Tenant = DefaultTenant
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-large"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	o := buildOptions(opts)
	return &ChromaStore{
		cfg:    cfg,
		client: remote.NewClient(chromaService, cfg.Timeout),
		logger: o.logger,
	}
}

func (s *ChromaStore) collectionsURL() string {
	return fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s/collections",
		s.cfg.BaseURL, url.PathEscape(s.cfg.Tenant), url.PathEscape(s.cfg.Database))
}

func (s *ChromaStore) collectionURL(id, op string) string {
	return fmt.Sprintf("%s/%s/%s", s.collectionsURL(), url.PathEscape(id), op)
}

type embeddingFunction struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

type createCollectionRequest struct {
	Name              string            `json:"name"`
	EmbeddingFunction embeddingFunction `json:"embedding_function"`
}

// EnsureCollection creates the collection. HTTP 409 (already exists) counts as success.
func (s *ChromaStore) EnsureCollection(ctx context.Context) error {
	req := createCollectionRequest{
		Name:              s.cfg.Collection,
		EmbeddingFunction: embeddingFunction{Type: "openai", Model: s.cfg.EmbeddingModel},
	}
	if err := s.client.Do(ctx, http.MethodPost, s.collectionsURL(), req, nil, http.StatusConflict); err != nil {
		return fmt.Errorf("create collection %q: %w", s.cfg.Collection, err)
	}
	s.logger.Debug("collection ensured", zap.String("collection", s.cfg.Collection))
	return nil
}

type collectionInfo struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

// CollectionID lists the collections and returns the id of the configured one. The result
// is not cached.
func (s *ChromaStore) CollectionID(ctx context.Context) (string, error) {
	var list []collectionInfo
	if err := s.client.Do(ctx, http.MethodGet, s.collectionsURL(), nil, &list); err != nil {
		return "", fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list {
		if c.Name != nil && *c.Name == s.cfg.Collection {
			if c.ID == nil || *c.ID == "" {
				return "", remote.Missing(chromaService, "collection id")
			}
			return *c.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrCollectionNotFound, s.cfg.Collection)
}

type addRequest struct {
	IDs        []string    `json:"ids"`
	Documents  []string    `json:"documents"`
	Embeddings [][]float32 `json:"embeddings"`
	Metadatas  []Metadata  `json:"metadatas"`
}

// Add stores one item.
func (s *ChromaStore) Add(ctx context.Context, item Item) error {
	id, err := s.CollectionID(ctx)
	if err != nil {
		return err
	}
	req := addRequest{
		IDs:        []string{item.ID},
		Documents:  []string{item.Document},
		Embeddings: [][]float32{item.Embedding},
		Metadatas:  []Metadata{item.Metadata},
	}
	if err := s.client.Do(ctx, http.MethodPost, s.collectionURL(id, "add"), req, nil); err != nil {
		return fmt.Errorf("add %s: %w", item.ID, err)
	}
	s.logger.Debug("chunk stored",
		zap.String("id", item.ID),
		zap.String("source", item.Metadata[MetadataSource]),
		zap.Int("bytes", len(item.Document)))
	return nil
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs       [][]string          `json:"ids"`
	Documents *[][]*string        `json:"documents"`
	Metadatas *[][]map[string]any `json:"metadatas"`
	Distances *[][]*float64       `json:"distances"`
}

// Query returns the topK nearest items.
func (s *ChromaStore) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	id, err := s.CollectionID(ctx)
	if err != nil {
		return nil, err
	}
	req := queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	if err := s.client.Do(ctx, http.MethodPost, s.collectionURL(id, "query"), req, &resp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return resp.matches(topK)
}

func (r *queryResponse) matches(topK int) ([]Match, error) {
	if r.Documents == nil || len(*r.Documents) == 0 {
		return nil, remote.Missing(chromaService, "documents")
	}
	if r.Metadatas == nil || len(*r.Metadatas) == 0 {
		return nil, remote.Missing(chromaService, "metadatas")
	}
	if r.Distances == nil || len(*r.Distances) == 0 {
		return nil, remote.Missing(chromaService, "distances")
	}
	docs, metas, dists := (*r.Documents)[0], (*r.Metadatas)[0], (*r.Distances)[0]
	if len(metas) != len(docs) || len(dists) != len(docs) {
		return nil, &remote.ParseError{
			Service: chromaService,
			Reason:  fmt.Sprintf("result arrays differ in length (%d documents, %d metadatas, %d distances)", len(docs), len(metas), len(dists)),
		}
	}

	n := len(docs)
	if topK > 0 && n > topK {
		n = topK
	}
	out := make([]Match, 0, n)
	for i := 0; i < n; i++ {
		m := Match{Metadata: toMetadata(metas[i])}
		if docs[i] != nil {
			m.Document = *docs[i]
		}
		if dists[i] != nil {
			m.Distance = *dists[i]
		}
		if len(r.IDs) > 0 && i < len(r.IDs[0]) {
			m.ID = r.IDs[0][i]
		}
		out = append(out, m)
	}
	return out, nil
}

func toMetadata(raw map[string]any) Metadata {
	if raw == nil {
		return nil
	}
	md := make(Metadata, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			md[k] = s
		} else {
			md[k] = fmt.Sprint(v)
		}
	}
	return md
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

// Delete removes ids in a single request.
func (s *ChromaStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	id, err := s.CollectionID(ctx)
	if err != nil {
		return err
	}
	if err := s.client.Do(ctx, http.MethodPost, s.collectionURL(id, "delete"), deleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("delete %d ids: %w", len(ids), err)
	}
	s.logger.Debug("chunks deleted", zap.Int("count", len(ids)))
	return nil
}

// Close releases idle connections.
func (s *ChromaStore) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}
