package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
)

// Document is the part of a CMS document the publisher cares about.
type Document struct {
	ID   string `json:"id"`
	Slug string `json:"slug,omitempty"`
}

// Client creates and updates documents in a content store.
type Client interface {
	// FindBySlug returns nil and no error when no document matches.
	FindBySlug(ctx context.Context, collection, slug string) (*Document, error)
	Create(ctx context.Context, collection string, data any) (*Document, error)
	Update(ctx context.Context, collection, id string, data any) (*Document, error)
}

// PayloadClient talks to the Payload CMS REST API.
type PayloadClient struct {
	baseURL string
	token   string
	client  httpclient.HTTPClient
}

func NewPayloadClient(baseURL, token string, client httpclient.HTTPClient) *PayloadClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &PayloadClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// docID accepts both string and numeric ids.
type docID string

func (d *docID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = docID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid document id %s: %w", b, err)
	}
	*d = docID(n.String())
	return nil
}

type payloadDoc struct {
	ID   docID  `json:"id"`
	Slug string `json:"slug"`
}

// Payload wraps writes as {"doc": {...}}; older versions return the bare doc.
type payloadWrite struct {
	payloadDoc
	Doc *payloadDoc `json:"doc"`
}

func (w payloadWrite) document() *Document {
	d := w.payloadDoc
	if w.Doc != nil {
		d = *w.Doc
	}
	return &Document{ID: string(d.ID), Slug: d.Slug}
}

func (c *PayloadClient) headers() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "users API-Key " + c.token}
}

func (c *PayloadClient) FindBySlug(ctx context.Context, collection, slug string) (*Document, error) {
	q := url.Values{}
	q.Set("where[slug][equals]", slug)
	q.Set("depth", "0")
	q.Set("limit", "1")
	endpoint := fmt.Sprintf("%s/api/%s?%s", c.baseURL, url.PathEscape(collection), q.Encode())

	var list struct {
		Docs []payloadDoc `json:"docs"`
	}
	if err := httpclient.SendRequest(ctx, c.client, http.MethodGet, endpoint, c.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to find %s/%s: %w", collection, slug, err)
	}
	if len(list.Docs) == 0 {
		return nil, nil
	}
	d := list.Docs[0]
	return &Document{ID: string(d.ID), Slug: d.Slug}, nil
}

func (c *PayloadClient) Create(ctx context.Context, collection string, data any) (*Document, error) {
	endpoint := fmt.Sprintf("%s/api/%s", c.baseURL, url.PathEscape(collection))
	var resp payloadWrite
	if err := httpclient.SendRequest(ctx, c.client, http.MethodPost, endpoint, c.headers(), data, &resp); err != nil {
		return nil, fmt.Errorf("failed to create %s document: %w", collection, err)
	}
	return resp.document(), nil
}

func (c *PayloadClient) Update(ctx context.Context, collection, id string, data any) (*Document, error) {
	endpoint := fmt.Sprintf("%s/api/%s/%s", c.baseURL, url.PathEscape(collection), url.PathEscape(id))
	var resp payloadWrite
	if err := httpclient.SendRequest(ctx, c.client, http.MethodPatch, endpoint, c.headers(), data, &resp); err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	doc := resp.document()
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, nil
}
