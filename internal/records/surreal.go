package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	surrealdb "github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/models"
)

const surrealTable = "superhero"

// SurrealOptions configures the SurrealDB connection.
type SurrealOptions struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Surreal is a Store backed by a SurrealDB table. Record ids are
// superhero:<uuid>; the uuid is kept in hero_id for ordering and lookups.
type Surreal struct {
	db *surrealdb.DB
}

// heroDoc is the stored shape. Timestamps are Unix nanoseconds.
type heroDoc struct {
	ID                surrealmodels.RecordID `json:"id,omitempty"`
	HeroID            string                 `json:"hero_id"`
	Nickname          string                 `json:"nickname"`
	RealName          string                 `json:"real_name"`
	OriginDescription string                 `json:"origin_description"`
	Superpowers       []string               `json:"superpowers"`
	CatchPhrase       string                 `json:"catch_phrase"`
	Images            []string               `json:"images"`
	CreatedNs         int64                  `json:"created_ns"`
	UpdatedNs         int64                  `json:"updated_ns"`
}

func (d heroDoc) hero() models.Superhero {
	h := models.Superhero{
		ID:                d.HeroID,
		Nickname:          d.Nickname,
		RealName:          d.RealName,
		OriginDescription: d.OriginDescription,
		Superpowers:       d.Superpowers,
		CatchPhrase:       d.CatchPhrase,
		Images:            d.Images,
		CreatedAt:         time.Unix(0, d.CreatedNs).UTC(),
		UpdatedAt:         time.Unix(0, d.UpdatedNs).UTC(),
	}
	h.Normalize()
	return h
}

// OpenSurreal connects, signs in when credentials are set and selects the
// namespace and database.
func OpenSurreal(ctx context.Context, opts SurrealOptions) (*Surreal, error) {
	if opts.URL == "" {
		return nil, errors.New("records: surrealdb url is required")
	}
	db, err := surrealdb.FromEndpointURLString(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("records: connect surrealdb: %w", err)
	}
	if opts.Username != "" {
		if _, err := db.SignIn(ctx, surrealdb.Auth{
			Username: opts.Username,
			Password: opts.Password,
		}); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("records: surrealdb sign in: %w", err)
		}
	}
	if err := db.Use(ctx, opts.Namespace, opts.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("records: surrealdb use %s/%s: %w", opts.Namespace, opts.Database, err)
	}
	return NewSurreal(db), nil
}

// NewSurreal wraps a connection that is already authenticated and has a
// namespace and database selected.
func NewSurreal(db *surrealdb.DB) *Surreal {
	return &Surreal{db: db}
}

// Close closes the connection.
func (s *Surreal) Close() error {
	return s.db.Close(context.Background())
}

func recordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(surrealTable, id)
}

// queryDocs runs a single statement and returns its result rows.
func (s *Surreal) queryDocs(ctx context.Context, query string, params map[string]any) ([]heroDoc, error) {
	res, err := surrealdb.Query[[]heroDoc](ctx, s.db, query, params)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	return (*res)[0].Result, nil
}

// Create stores a new record with a fresh UUID.
func (s *Surreal) Create(ctx context.Context, h models.Superhero) (*models.Superhero, error) {
	now := time.Now().UTC()
	h.ID = uuid.NewString()
	h.Normalize()
	doc := heroDoc{
		ID:                recordID(h.ID),
		HeroID:            h.ID,
		Nickname:          h.Nickname,
		RealName:          h.RealName,
		OriginDescription: h.OriginDescription,
		Superpowers:       h.Superpowers,
		CatchPhrase:       h.CatchPhrase,
		Images:            h.Images,
		CreatedNs:         now.UnixNano(),
		UpdatedNs:         now.UnixNano(),
	}
	if _, err := surrealdb.Create[heroDoc](ctx, s.db, doc.ID, doc); err != nil {
		return nil, fmt.Errorf("records: insert: %w", err)
	}
	out := doc.hero()
	return &out, nil
}

// Get returns the record with the given id.
func (s *Surreal) Get(ctx context.Context, id string) (*models.Superhero, error) {
	docs, err := s.queryDocs(ctx, "SELECT * FROM $rid", map[string]any{"rid": recordID(id)})
	if err != nil {
		return nil, fmt.Errorf("records: get: %w", err)
	}
	if len(docs) == 0 {
		return nil, apperr.ErrNotFound
	}
	h := docs[0].hero()
	return &h, nil
}

// Update replaces the descriptive fields and appends images in one statement.
// The WHERE guard keeps UPDATE from creating a missing record.
func (s *Surreal) Update(ctx context.Context, id string, f models.Fields, images []string) (*models.Superhero, error) {
	if images == nil {
		images = []string{}
	}
	powers := f.Superpowers
	if powers == nil {
		powers = []string{}
	}
	docs, err := s.queryDocs(ctx, `UPDATE $rid SET
		nickname = $nickname,
		real_name = $real_name,
		origin_description = $origin_description,
		superpowers = $superpowers,
		catch_phrase = $catch_phrase,
		images = array::concat(images, $images),
		updated_ns = $now
		WHERE created_ns != NONE
		RETURN AFTER`, map[string]any{
		"rid":                recordID(id),
		"nickname":           f.Nickname,
		"real_name":          f.RealName,
		"origin_description": f.OriginDescription,
		"superpowers":        powers,
		"catch_phrase":       f.CatchPhrase,
		"images":             images,
		"now":                time.Now().UTC().UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("records: update: %w", err)
	}
	if len(docs) == 0 {
		return nil, apperr.ErrNotFound
	}
	h := docs[0].hero()
	return &h, nil
}

// RemoveImage filters url out of the record's images in one statement.
func (s *Surreal) RemoveImage(ctx context.Context, id, url string) ([]string, error) {
	docs, err := s.queryDocs(ctx, `UPDATE $rid SET
		images = images[WHERE $this != $url],
		updated_ns = $now
		WHERE created_ns != NONE
		RETURN AFTER`, map[string]any{
		"rid": recordID(id),
		"url": url,
		"now": time.Now().UTC().UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("records: update images: %w", err)
	}
	if len(docs) == 0 {
		return nil, apperr.ErrNotFound
	}
	return docs[0].hero().Images, nil
}

// Delete removes a record by id.
func (s *Surreal) Delete(ctx context.Context, id string) error {
	docs, err := s.queryDocs(ctx, "DELETE $rid RETURN BEFORE", map[string]any{"rid": recordID(id)})
	if err != nil {
		return fmt.Errorf("records: delete: %w", err)
	}
	if len(docs) == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// List returns one window of records, newest first.
func (s *Surreal) List(ctx context.Context, skip, limit int) ([]models.Superhero, error) {
	docs, err := s.queryDocs(ctx,
		"SELECT * FROM type::table($tb) ORDER BY created_ns DESC, hero_id DESC LIMIT $limit START $skip",
		map[string]any{"tb": surrealTable, "limit": limit, "skip": skip})
	if err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	out := make([]models.Superhero, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.hero())
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Surreal) Count(ctx context.Context) (int, error) {
	type countRow struct {
		Total int `json:"total"`
	}
	res, err := surrealdb.Query[[]countRow](ctx, s.db,
		"SELECT count() AS total FROM type::table($tb) GROUP ALL",
		map[string]any{"tb": surrealTable})
	if err != nil {
		return 0, fmt.Errorf("records: count: %w", err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return 0, nil
	}
	return (*res)[0].Result[0].Total, nil
}
