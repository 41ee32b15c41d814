// Package heroservice coordinates the record store and the media store for
// the superhero catalog.
package heroservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/media"
	"github.com/starford/capes/internal/models"
	"github.com/starford/capes/internal/records"
)

// Event kinds published after successful mutations.
const (
	EventCreated      = "hero.created"
	EventUpdated      = "hero.updated"
	EventDeleted      = "hero.deleted"
	EventImageRemoved = "hero.image_removed"
)

// cleanupTimeout bounds compensating media deletes, which run detached from
// the request context.
const cleanupTimeout = 30 * time.Second

// Change describes one committed mutation.
type Change struct {
	Kind string
	ID   string
	// Record is the stored record after a create or update.
	Record *models.Superhero
	// Images is the remaining image list after an image removal.
	Images []string
}

// Publisher receives lifecycle events. The SSE broker implements it.
type Publisher interface {
	PublishHeroChange(c Change)
}

// Options tunes limits and deadlines.
type Options struct {
	MaxImagesPerBatch int
	MaxImageBytes     int64
	DefaultPageSize   int
	// MaxPageSize caps limit when positive. Zero leaves limit uncapped so
	// Pages always equals ceil(Total/limit).
	MaxPageSize       int
	// UploadConcurrency > 1 uploads a batch in parallel; result order is
	// always request order.
	UploadConcurrency int
	UploadTimeout     time.Duration
	StoreTimeout      time.Duration

	Publisher Publisher
	Logger    *slog.Logger
}

// DefaultOptions returns the stock catalog limits.
func DefaultOptions() Options {
	return Options{
		MaxImagesPerBatch: 5,
		MaxImageBytes:     10 << 20,
		DefaultPageSize:   5,
		MaxPageSize:       0,
		UploadConcurrency: 1,
		UploadTimeout:     30 * time.Second,
		StoreTimeout:      10 * time.Second,
	}
}

// CreateInput is the payload of Create.
type CreateInput struct {
	Fields models.Fields
	Images []media.Object
}

// UpdateInput is the payload of Update. Images are appended to the record.
type UpdateInput struct {
	ID     string
	Fields models.Fields
	Images []media.Object
}

// Service implements the resource lifecycle.
type Service struct {
	records records.Store
	media   media.Store
	opts    Options
	log     *slog.Logger
}

// NewService creates a service. Zero-valued limits fall back to DefaultOptions.
func NewService(rs records.Store, ms media.Store, opts Options) *Service {
	def := DefaultOptions()
	if opts.MaxImagesPerBatch <= 0 {
		opts.MaxImagesPerBatch = def.MaxImagesPerBatch
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = def.MaxImageBytes
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = def.DefaultPageSize
	}
	if opts.MaxPageSize < 0 {
		opts.MaxPageSize = 0
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = def.UploadConcurrency
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = def.UploadTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{records: rs, media: ms, opts: opts, log: log}
}

// Create validates input, uploads the image batch and persists the record.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Superhero, error) {
	fields := normalizeFields(in.Fields)
	if err := s.validate(fields, in.Images); err != nil {
		return nil, err
	}

	urls, err := s.uploadBatch(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	hero := models.Superhero{Images: urls}
	hero.Apply(fields)

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	created, err := s.records.Create(sctx, hero)
	if err != nil {
		s.cleanup(ctx, urls)
		return nil, storeErr("create", err)
	}

	s.log.Info("superhero created", slog.String("id", created.ID), slog.Int("images", len(urls)))
	s.publish(Change{Kind: EventCreated, ID: created.ID, Record: created})
	return created, nil
}

// Update replaces the descriptive fields and appends newly uploaded images.
// Images uploaded for a missing id are left in the media store.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*models.Superhero, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("%w: id is required", apperr.ErrValidation)
	}
	fields := normalizeFields(in.Fields)
	if err := s.validate(fields, in.Images); err != nil {
		return nil, err
	}

	urls, err := s.uploadBatch(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	updated, err := s.records.Update(sctx, in.ID, fields, urls)
	if err != nil {
		return nil, storeErr("update", err)
	}

	s.log.Info("superhero updated", slog.String("id", in.ID), slog.Int("new_images", len(urls)))
	s.publish(Change{Kind: EventUpdated, ID: in.ID, Record: updated})
	return updated, nil
}

// RemoveImage deletes url from the media store, then filters it out of the
// record. The media store is only touched when the record exists and
// references url; otherwise the current images are returned unchanged. A
// media failure leaves the record untouched.
func (s *Service) RemoveImage(ctx context.Context, id, url string) ([]string, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", apperr.ErrValidation)
	}
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: image url is required", apperr.ErrValidation)
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	current, err := s.records.Get(gctx, id)
	if err != nil {
		return nil, storeErr("remove image", err)
	}
	if !slices.Contains(current.Images, url) {
		return current.Images, nil
	}

	mctx, cancel := context.WithTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()
	if err := s.media.Delete(mctx, url); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMediaDelete, err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	images, err := s.records.RemoveImage(sctx, id, url)
	if err != nil {
		return nil, storeErr("remove image", err)
	}

	s.publish(Change{Kind: EventImageRemoved, ID: id, Images: images})
	return images, nil
}

// List returns one page of records, newest first.
func (s *Service) List(ctx context.Context, page, limit int) (*models.Page, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = s.opts.DefaultPageSize
	}
	if s.opts.MaxPageSize > 0 && limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	total, err := s.records.Count(sctx)
	if err != nil {
		return nil, storeErr("count", err)
	}
	items, err := s.records.List(sctx, (page-1)*limit, limit)
	if err != nil {
		return nil, storeErr("list", err)
	}
	if items == nil {
		items = []models.Superhero{}
	}
	return &models.Page{
		Records: items,
		Total:   total,
		Page:    page,
		Pages:   (total + limit - 1) / limit,
	}, nil
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id string) (*models.Superhero, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	h, err := s.records.Get(sctx, id)
	if err != nil {
		return nil, storeErr("get", err)
	}
	return h, nil
}

// Delete removes the record. Its images stay in the media store.
func (s *Service) Delete(ctx context.Context, id string) error {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.records.Delete(sctx, id); err != nil {
		return storeErr("delete", err)
	}
	s.log.Info("superhero deleted", slog.String("id", id))
	s.publish(Change{Kind: EventDeleted, ID: id})
	return nil
}

func normalizeFields(f models.Fields) models.Fields {
	out := models.Fields{
		Nickname:          strings.TrimSpace(f.Nickname),
		RealName:          strings.TrimSpace(f.RealName),
		OriginDescription: strings.TrimSpace(f.OriginDescription),
		CatchPhrase:       strings.TrimSpace(f.CatchPhrase),
		Superpowers:       make([]string, 0, len(f.Superpowers)),
	}
	for _, p := range f.Superpowers {
		out.Superpowers = append(out.Superpowers, strings.TrimSpace(p))
	}
	return out
}

func (s *Service) validate(f models.Fields, images []media.Object) error {
	err := validation.ValidateStruct(&f,
		validation.Field(&f.Nickname, validation.Required),
		validation.Field(&f.RealName, validation.Required),
		validation.Field(&f.OriginDescription, validation.Required),
		validation.Field(&f.CatchPhrase, validation.Required),
		validation.Field(&f.Superpowers, validation.Each(validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if len(images) > s.opts.MaxImagesPerBatch {
		return fmt.Errorf("%w: at most %d images per request", apperr.ErrValidation, s.opts.MaxImagesPerBatch)
	}
	for i, img := range images {
		if len(img.Data) == 0 {
			return fmt.Errorf("%w: image %d is empty", apperr.ErrValidation, i+1)
		}
		if int64(len(img.Data)) > s.opts.MaxImageBytes {
			return fmt.Errorf("%w: image %d exceeds %d bytes", apperr.ErrValidation, i+1, s.opts.MaxImageBytes)
		}
	}
	return nil
}

// uploadBatch uploads objs and returns their URLs in request order. On the
// first failure the URLs already produced are deleted and the error returned.
func (s *Service) uploadBatch(ctx context.Context, objs []media.Object) ([]string, error) {
	if len(objs) == 0 {
		return []string{}, nil
	}

	urls := make([]string, len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for i, obj := range objs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			url, err := s.uploadOne(gctx, obj)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.cleanup(ctx, urls)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		s.cleanup(ctx, urls)
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpload, err)
	}
	return urls, nil
}

func (s *Service) uploadOne(ctx context.Context, obj media.Object) (string, error) {
	uctx, cancel := context.WithTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()
	url, err := s.media.Upload(uctx, obj)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(uctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", apperr.ErrUploadTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", apperr.ErrUpload, err)
	}
	return url, nil
}

// cleanup deletes uploaded URLs best-effort. Failures are logged only.
func (s *Service) cleanup(ctx context.Context, urls []string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := s.media.Delete(cctx, url); err != nil {
			s.log.Warn("orphaned image after failed request", slog.String("url", url), slog.String("error", err.Error()))
		}
	}
}

func (s *Service) publish(c Change) {
	if s.opts.Publisher != nil {
		s.opts.Publisher.PublishHeroChange(c)
	}
}

func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", apperr.ErrStoreTimeout, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", apperr.ErrStore, op, err)
	}
}
