// Package client is a Go client for the catalog HTTP API plus a cache that
// mirrors what a UI shows: one listing page and one selected record.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/capes/internal/models"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Image is one file to upload.
type Image struct {
	Name string
	Data []byte
}

// Input is the payload of Create and Update.
type Input struct {
	Fields models.Fields
	Images []Image
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client calls the catalog API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API at baseURL (e.g. http://localhost:5501).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches one page of records.
func (c *Client) List(ctx context.Context, page, limit int) (*models.Page, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	target := "/resources"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var out models.Page
	if err := c.do(ctx, http.MethodGet, target, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one record.
func (c *Client) Get(ctx context.Context, id string) (*models.Superhero, error) {
	var out models.Superhero
	if err := c.do(ctx, http.MethodGet, "/resources/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create submits a new record with its images.
func (c *Client) Create(ctx context.Context, in Input) (*models.Superhero, error) {
	body, ct, err := encodeForm(in)
	if err != nil {
		return nil, err
	}
	var out models.Superhero
	if err := c.do(ctx, http.MethodPost, "/resources", body, ct, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the record's fields and appends in.Images.
func (c *Client) Update(ctx context.Context, id string, in Input) (*models.Superhero, error) {
	body, ct, err := encodeForm(in)
	if err != nil {
		return nil, err
	}
	var out models.Superhero
	if err := c.do(ctx, http.MethodPut, "/resources/"+url.PathEscape(id), body, ct, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/resources/"+url.PathEscape(id), nil, "", nil)
}

// RemoveImage deletes one image and returns the record's remaining images.
func (c *Client) RemoveImage(ctx context.Context, id, imageURL string) ([]string, error) {
	var out struct {
		Images []string `json:"images"`
	}
	target := "/resources/" + url.PathEscape(id) + "/image?url=" + url.QueryEscape(imageURL)
	if err := c.do(ctx, http.MethodDelete, target, nil, "", &out); err != nil {
		return nil, err
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	return out.Images, nil
}

func encodeForm(in Input) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := []struct{ k, v string }{
		{"nickname", in.Fields.Nickname},
		{"real_name", in.Fields.RealName},
		{"origin_description", in.Fields.OriginDescription},
		{"catch_phrase", in.Fields.CatchPhrase},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.k, f.v); err != nil {
			return nil, "", err
		}
	}
	for _, p := range in.Fields.Superpowers {
		if err := mw.WriteField("superpowers", p); err != nil {
			return nil, "", err
		}
	}
	for _, img := range in.Images {
		w, err := mw.CreateFormFile("images", img.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := w.Write(img.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
