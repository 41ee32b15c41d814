package heroservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/media"
	"github.com/starford/capes/internal/models"
	"github.com/starford/capes/internal/records"
	"github.com/starford/capes/internal/testutil"
)

// fakeMedia records every upload and delete. failOn makes the n-th upload
// (1-based) fail; deleteErr fails every delete.
type fakeMedia struct {
	mu        sync.Mutex
	next      int
	uploads   []string
	deleted   []string
	failOn    int
	slow      time.Duration
	deleteErr error
}

func (m *fakeMedia) Upload(ctx context.Context, obj media.Object) (string, error) {
	m.mu.Lock()
	m.next++
	n := m.next
	m.mu.Unlock()

	if m.slow > 0 {
		select {
		case <-time.After(m.slow):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n == m.failOn {
		return "", errors.New("media backend unavailable")
	}
	url := fmt.Sprintf("http://media/%s", obj.Name)
	m.mu.Lock()
	m.uploads = append(m.uploads, url)
	m.mu.Unlock()
	return url, nil
}

func (m *fakeMedia) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, url)
	return nil
}

type recordedEvent struct{ kind, id string }

type fakePublisher struct {
	mu      sync.Mutex
	events  []recordedEvent
	changes []Change
}

func (p *fakePublisher) PublishHeroChange(c Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{c.Kind, c.ID})
	p.changes = append(p.changes, c)
}

// failingCreate wraps a real store and fails Create.
type failingCreate struct {
	records.Store
}

func (failingCreate) Create(context.Context, models.Superhero) (*models.Superhero, error) {
	return nil, errors.New("write rejected")
}

func fields(nick string) models.Fields {
	return models.Fields{
		Nickname:          nick,
		RealName:          "Kurt Wagner",
		OriginDescription: "Born in Bavaria",
		Superpowers:       []string{"teleportation", "agility"},
		CatchPhrase:       "Bamf!",
	}
}

func images(names ...string) []media.Object {
	out := make([]media.Object, 0, len(names))
	for _, n := range names {
		out = append(out, media.Object{Name: n, ContentType: "image/png", Data: []byte("png-" + n)})
	}
	return out
}

func newTestService(t *testing.T, ms media.Store, opts Options) (*Service, records.Store) {
	t.Helper()
	rs := testutil.TestRecords(t)
	return NewService(rs, ms, opts), rs
}

func TestCreateStoresImagesInOrder(t *testing.T) {
	ms := &fakeMedia{}
	pub := &fakePublisher{}
	svc, _ := newTestService(t, ms, Options{Publisher: pub})

	h, err := svc.Create(context.Background(), CreateInput{
		Fields: fields("Nightcrawler"),
		Images: images("a.png", "b.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://media/a.png", "http://media/b.png"}, h.Images)
	assert.Equal(t, "Nightcrawler", h.Nickname)
	assert.Equal(t, []recordedEvent{{EventCreated, h.ID}}, pub.events)
	require.NotNil(t, pub.changes[0].Record)
	assert.Equal(t, h.Images, pub.changes[0].Record.Images)
}

func TestCreateParallelKeepsOrder(t *testing.T) {
	ms := &fakeMedia{slow: 5 * time.Millisecond}
	svc, _ := newTestService(t, ms, Options{UploadConcurrency: 3})

	h, err := svc.Create(context.Background(), CreateInput{
		Fields: fields("Nightcrawler"),
		Images: images("1.png", "2.png", "3.png", "4.png", "5.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://media/1.png", "http://media/2.png", "http://media/3.png",
		"http://media/4.png", "http://media/5.png",
	}, h.Images)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"blank nickname", CreateInput{Fields: fields("   ")}},
		{"blank superpower", CreateInput{Fields: models.Fields{
			Nickname: "x", RealName: "x", OriginDescription: "x", CatchPhrase: "x",
			Superpowers: []string{"fly", " "},
		}}},
		{"too many images", CreateInput{Fields: fields("x"), Images: images("1", "2", "3", "4", "5", "6")}},
		{"empty image", CreateInput{Fields: fields("x"), Images: []media.Object{{Name: "e.png"}}}},
		{"oversized image", CreateInput{Fields: fields("x"), Images: []media.Object{{Name: "big.png", Data: make([]byte, 11)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &fakeMedia{}
			svc, rs := newTestService(t, ms, Options{MaxImageBytes: 10})
			_, err := svc.Create(context.Background(), tt.in)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
			assert.Empty(t, ms.uploads)
			n, _ := rs.Count(context.Background())
			assert.Zero(t, n)
		})
	}
}

func TestCreateEmptySuperpowersAllowed(t *testing.T) {
	svc, _ := newTestService(t, &fakeMedia{}, Options{})
	f := fields("Nightcrawler")
	f.Superpowers = nil
	h, err := svc.Create(context.Background(), CreateInput{Fields: f})
	require.NoError(t, err)
	assert.Equal(t, []string{}, h.Superpowers)
	assert.Equal(t, []string{}, h.Images)
}

func TestCreateThirdUploadFailsCleansUp(t *testing.T) {
	ms := &fakeMedia{failOn: 3}
	svc, rs := newTestService(t, ms, Options{})

	_, err := svc.Create(context.Background(), CreateInput{
		Fields: fields("Nightcrawler"),
		Images: images("1.png", "2.png", "3.png", "4.png"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpload))
	assert.ElementsMatch(t, []string{"http://media/1.png", "http://media/2.png"}, ms.deleted)

	n, err := rs.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "no record may be persisted")
}

func TestCreateCleanupFailureIsSwallowed(t *testing.T) {
	ms := &fakeMedia{failOn: 2, deleteErr: errors.New("gone")}
	svc, _ := newTestService(t, ms, Options{})

	_, err := svc.Create(context.Background(), CreateInput{
		Fields: fields("Nightcrawler"),
		Images: images("1.png", "2.png"),
	})
	assert.True(t, errors.Is(err, apperr.ErrUpload))
	assert.False(t, errors.Is(err, apperr.ErrMediaDelete))
}

func TestCreateUploadTimeout(t *testing.T) {
	ms := &fakeMedia{slow: time.Second}
	svc, _ := newTestService(t, ms, Options{UploadTimeout: 10 * time.Millisecond})

	_, err := svc.Create(context.Background(), CreateInput{
		Fields: fields("Nightcrawler"),
		Images: images("1.png"),
	})
	assert.True(t, errors.Is(err, apperr.ErrUploadTimeout), "got %v", err)
}

func TestCreateRecordFailureCleansBatch(t *testing.T) {
	ms := &fakeMedia{}
	svc := NewService(failingCreate{testutil.TestRecords(t)}, ms, Options{})

	_, err := svc.Create(context.Background(), CreateInput{
		Fields: fields("Nightcrawler"),
		Images: images("1.png", "2.png"),
	})
	assert.True(t, errors.Is(err, apperr.ErrStore))
	assert.ElementsMatch(t, []string{"http://media/1.png", "http://media/2.png"}, ms.deleted)
}

func TestUpdateAppendsImages(t *testing.T) {
	ms := &fakeMedia{}
	svc, _ := newTestService(t, ms, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Fields: fields("Nightcrawler"), Images: images("u1.png", "u2.png")})
	require.NoError(t, err)

	f := fields("Nightcrawler")
	f.RealName = "Kurt"
	updated, err := svc.Update(ctx, UpdateInput{ID: h.ID, Fields: f, Images: images("u3.png")})
	require.NoError(t, err)
	assert.Equal(t, "Kurt", updated.RealName)
	assert.Equal(t, []string{"http://media/u1.png", "http://media/u2.png", "http://media/u3.png"}, updated.Images)

	// No ceiling across edits.
	updated, err = svc.Update(ctx, UpdateInput{ID: h.ID, Fields: f, Images: images("4.png", "5.png", "6.png", "7.png")})
	require.NoError(t, err)
	assert.Len(t, updated.Images, 7)
}

func TestUpdateMissingLeavesUploads(t *testing.T) {
	ms := &fakeMedia{}
	svc, _ := newTestService(t, ms, Options{})

	_, err := svc.Update(context.Background(), UpdateInput{ID: "missing", Fields: fields("x"), Images: images("a.png")})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, []string{"http://media/a.png"}, ms.uploads)
	assert.Empty(t, ms.deleted)
}

func TestUpdateUploadFailureLeavesRecord(t *testing.T) {
	ms := &fakeMedia{}
	svc, _ := newTestService(t, ms, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Fields: fields("Nightcrawler"), Images: images("u1.png")})
	require.NoError(t, err)

	ms.failOn = ms.next + 2
	f := fields("Renamed")
	_, err = svc.Update(ctx, UpdateInput{ID: h.ID, Fields: f, Images: images("n1.png", "n2.png")})
	assert.True(t, errors.Is(err, apperr.ErrUpload))
	assert.Equal(t, []string{"http://media/n1.png"}, ms.deleted)

	got, err := svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nightcrawler", got.Nickname)
	assert.Equal(t, []string{"http://media/u1.png"}, got.Images)
}

func TestRemoveImage(t *testing.T) {
	ms := &fakeMedia{}
	pub := &fakePublisher{}
	svc, _ := newTestService(t, ms, Options{Publisher: pub})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Fields: fields("Nightcrawler"), Images: images("u1.png", "u2.png", "u3.png")})
	require.NoError(t, err)

	imgs, err := svc.RemoveImage(ctx, h.ID, "http://media/u2.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://media/u1.png", "http://media/u3.png"}, imgs)
	assert.Equal(t, []string{"http://media/u2.png"}, ms.deleted)

	// Second call is a no-op on the record and on the media store.
	imgs, err = svc.RemoveImage(ctx, h.ID, "http://media/u2.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://media/u1.png", "http://media/u3.png"}, imgs)
	assert.Equal(t, []string{"http://media/u2.png"}, ms.deleted)

	last := pub.changes[len(pub.changes)-1]
	assert.Equal(t, EventImageRemoved, last.Kind)
	assert.Equal(t, []string{"http://media/u1.png", "http://media/u3.png"}, last.Images)
	assert.Len(t, pub.changes, 2, "the no-op second call publishes nothing")
}

func TestRemoveImageMediaFailure(t *testing.T) {
	ms := &fakeMedia{}
	svc, _ := newTestService(t, ms, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Fields: fields("Nightcrawler"), Images: images("u1.png")})
	require.NoError(t, err)

	ms.deleteErr = errors.New("permission denied")
	_, err = svc.RemoveImage(ctx, h.ID, "http://media/u1.png")
	assert.True(t, errors.Is(err, apperr.ErrMediaDelete))

	got, err := svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://media/u1.png"}, got.Images)
}

func TestRemoveImageValidation(t *testing.T) {
	ms := &fakeMedia{}
	svc, _ := newTestService(t, ms, Options{})
	_, err := svc.RemoveImage(context.Background(), "id", "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = svc.RemoveImage(context.Background(), "", "http://media/x.png")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Empty(t, ms.deleted)
}

func TestRemoveImageMissingRecordKeepsMedia(t *testing.T) {
	ms := &fakeMedia{}
	svc, _ := newTestService(t, ms, Options{})
	ctx := context.Background()

	storm, err := svc.Create(ctx, CreateInput{Fields: fields("Storm"), Images: images("s1.png")})
	require.NoError(t, err)

	_, err = svc.RemoveImage(ctx, "no-such-id", storm.Images[0])
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Empty(t, ms.deleted)
}

func TestRemoveImageForeignURLKeepsMedia(t *testing.T) {
	ms := &fakeMedia{}
	pub := &fakePublisher{}
	svc, _ := newTestService(t, ms, Options{Publisher: pub})
	ctx := context.Background()

	storm, err := svc.Create(ctx, CreateInput{Fields: fields("Storm"), Images: images("s1.png")})
	require.NoError(t, err)
	kurt, err := svc.Create(ctx, CreateInput{Fields: fields("Nightcrawler"), Images: images("n1.png")})
	require.NoError(t, err)

	imgs, err := svc.RemoveImage(ctx, kurt.ID, storm.Images[0])
	require.NoError(t, err)
	assert.Equal(t, kurt.Images, imgs)
	assert.Empty(t, ms.deleted)

	got, err := svc.Get(ctx, storm.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://media/s1.png"}, got.Images)
	assert.Equal(t, EventCreated, pub.events[len(pub.events)-1].kind)
}

func TestListPagination(t *testing.T) {
	svc, _ := newTestService(t, &fakeMedia{}, Options{})
	ctx := context.Background()
	for i := range 12 {
		_, err := svc.Create(ctx, CreateInput{Fields: fields(fmt.Sprintf("hero-%02d", i))})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	p, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 12, p.Total)
	assert.Equal(t, 3, p.Pages)
	require.Len(t, p.Records, 5)
	assert.Equal(t, "hero-11", p.Records[0].Nickname)

	p, err = svc.List(ctx, 3, 5)
	require.NoError(t, err)
	assert.Len(t, p.Records, 2)

	p, err = svc.List(ctx, 4, 5)
	require.NoError(t, err)
	assert.NotNil(t, p.Records)
	assert.Empty(t, p.Records)
	assert.Equal(t, 3, p.Pages)

	p, err = svc.List(ctx, 1, 1000)
	require.NoError(t, err)
	assert.Len(t, p.Records, 12)
	assert.Equal(t, 1, p.Pages)
}

func TestListLargeLimitIsNotCapped(t *testing.T) {
	rs := testutil.TestRecords(t)
	svc := NewService(rs, &fakeMedia{}, Options{})
	ctx := context.Background()
	for i := range 150 {
		_, err := rs.Create(ctx, models.Superhero{Nickname: fmt.Sprintf("hero-%03d", i)})
		require.NoError(t, err)
	}

	p, err := svc.List(ctx, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 150, p.Total)
	assert.Len(t, p.Records, 150)
	assert.Equal(t, 1, p.Pages)

	p, err = svc.List(ctx, 2, 101)
	require.NoError(t, err)
	assert.Len(t, p.Records, 49)
	assert.Equal(t, 2, p.Pages)
}

func TestListOptInPageCap(t *testing.T) {
	rs := testutil.TestRecords(t)
	svc := NewService(rs, &fakeMedia{}, Options{MaxPageSize: 4})
	ctx := context.Background()
	for i := range 10 {
		_, err := rs.Create(ctx, models.Superhero{Nickname: fmt.Sprintf("hero-%02d", i)})
		require.NoError(t, err)
	}

	p, err := svc.List(ctx, 1, 50)
	require.NoError(t, err)
	assert.Len(t, p.Records, 4)
	assert.Equal(t, 3, p.Pages)
}

func TestListEmpty(t *testing.T) {
	svc, _ := newTestService(t, &fakeMedia{}, Options{})
	p, err := svc.List(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.Pages)
	assert.NotNil(t, p.Records)
}

func TestDeleteLeavesMedia(t *testing.T) {
	ms := &fakeMedia{}
	pub := &fakePublisher{}
	svc, _ := newTestService(t, ms, Options{Publisher: pub})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Fields: fields("Nightcrawler"), Images: images("u1.png")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, h.ID))
	assert.Empty(t, ms.deleted)

	_, err = svc.Get(ctx, h.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, h.ID), apperr.ErrNotFound))
	assert.Equal(t, EventDeleted, pub.events[len(pub.events)-1].kind)
}

func TestWithFilesystemMedia(t *testing.T) {
	root, fs := testutil.TestMedia(t)
	svc, _ := newTestService(t, fs, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Fields: fields("Nightcrawler"), Images: images("a.png")})
	require.NoError(t, err)
	require.Len(t, h.Images, 1)

	imgs, err := svc.RemoveImage(ctx, h.ID, h.Images[0])
	require.NoError(t, err)
	assert.Empty(t, imgs)

	entries, err := os.ReadDir(root + "/superheroes")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
