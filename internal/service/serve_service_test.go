package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imgvault/internal/models"
	"imgvault/internal/repository"
	"imgvault/internal/storage"
)

type staticURLs struct{}

func (staticURLs) PublicURL(key string) string {
	return "https://cdn.test/imgvault/" + key
}

type mockFinder struct {
	images    map[string]models.Image
	random    models.Image
	randomErr error
	gotFilter repository.Filter
	deleted   []string
	events    *[]string
}

func (m *mockFinder) Get(ctx context.Context, id string) (models.Image, error) {
	img, ok := m.images[id]
	if !ok {
		return models.Image{}, repository.ErrImageNotFound
	}
	return img, nil
}

func (m *mockFinder) SelectRandom(ctx context.Context, filter repository.Filter) (models.Image, error) {
	m.gotFilter = filter
	if m.randomErr != nil {
		return models.Image{}, m.randomErr
	}
	return m.random, nil
}

func (m *mockFinder) Delete(ctx context.Context, id string) error {
	if m.events != nil {
		*m.events = append(*m.events, "row")
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockReader struct {
	objects   map[string][]byte
	getCalls  []string
	deleted   [][]string
	deleteErr error
	events    *[]string
}

func (m *mockReader) GetStream(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	m.getCalls = append(m.getCalls, key)
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectMissing
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Size: int64(len(data))}, nil
}

func (m *mockReader) DeleteMany(ctx context.Context, keys []string) error {
	if m.events != nil {
		*m.events = append(*m.events, "objects")
	}
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, keys)
	return nil
}

func portraitJpeg() models.Image {
	return models.Image{
		ID:          "2abc",
		Format:      "jpeg",
		MIME:        "image/jpeg",
		Orientation: models.OrientationPortrait,
		Original:    models.ConcreteVariant("portrait/2abc.jpg", 1000),
		Webp:        models.ConcreteVariant("portrait/2abc.webp", 400),
		Avif:        models.DeferredVariant(),
	}
}

func newServeFixture(transformBase string) (*ServeService, *mockFinder, *mockReader, *mockInvalidator, *[]string) {
	events := &[]string{}
	finder := &mockFinder{images: map[string]models.Image{}, events: events}
	reader := &mockReader{objects: map[string][]byte{}, events: events}
	inv := &mockInvalidator{}
	urls := NewURLBuilder(staticURLs{}, transformBase)
	svc := NewServeService(finder, reader, urls, 5*time.Second, inv, zerolog.Nop())
	return svc, finder, reader, inv, events
}

func TestServeDirectFromStore(t *testing.T) {
	svc, finder, reader, _, _ := newServeFixture("https://transform.test")
	img := portraitJpeg()
	finder.images[img.ID] = img
	reader.objects[img.Webp.Key] = []byte("webp-bytes")

	result, err := svc.ByID(context.Background(), img.ID, ServeRequest{Format: "webp"})
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	defer result.Body.Close()

	if result.ContentType != "image/webp" {
		t.Errorf("ContentType = %s, want image/webp", result.ContentType)
	}
	body, _ := io.ReadAll(result.Body)
	if string(body) != "webp-bytes" {
		t.Errorf("body = %q", body)
	}
	if !reflect.DeepEqual(reader.getCalls, []string{img.Webp.Key}) {
		t.Errorf("getCalls = %v", reader.getCalls)
	}
}

func TestServeDeferredProxiesTransform(t *testing.T) {
	img := portraitJpeg()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("output"); got != "avif" {
			t.Errorf("output = %s, want avif", got)
		}
		wantSource := "https://cdn.test/imgvault/" + img.Original.Key
		if got := r.URL.Query().Get("url"); got != wantSource {
			t.Errorf("url = %s, want %s", got, wantSource)
		}
		w.Header().Set("Content-Type", "image/avif")
		w.Write([]byte("transformed"))
	}))
	defer upstream.Close()

	svc, finder, reader, _, _ := newServeFixture(upstream.URL)
	finder.images[img.ID] = img

	result, err := svc.ByID(context.Background(), img.ID, ServeRequest{Format: "avif"})
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	defer result.Body.Close()

	body, _ := io.ReadAll(result.Body)
	if string(body) != "transformed" {
		t.Errorf("body = %q, want the upstream body verbatim", body)
	}
	if result.ContentType != "image/avif" {
		t.Errorf("ContentType = %s, want the upstream content type", result.ContentType)
	}
	if len(reader.getCalls) != 0 {
		t.Errorf("object store read for a deferred slot: %v", reader.getCalls)
	}
}

func TestServeTransformUpstreamFailureIsNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	svc, finder, _, _, _ := newServeFixture(upstream.URL)
	img := portraitJpeg()
	finder.images[img.ID] = img

	_, err := svc.ByID(context.Background(), img.ID, ServeRequest{Format: "avif"})
	if !errors.Is(err, storage.ErrObjectMissing) {
		t.Errorf("error = %v, want ErrObjectMissing", err)
	}
}

func TestServeMissingObjectIsNotSubstituted(t *testing.T) {
	svc, finder, reader, _, _ := newServeFixture("https://transform.test")
	img := portraitJpeg()
	finder.images[img.ID] = img
	// the record claims a concrete webp but the store has nothing

	_, err := svc.ByID(context.Background(), img.ID, ServeRequest{Format: "webp"})
	if !errors.Is(err, storage.ErrObjectMissing) {
		t.Fatalf("error = %v, want ErrObjectMissing", err)
	}
	if len(reader.getCalls) != 1 {
		t.Errorf("getCalls = %v, want exactly the claimed key", reader.getCalls)
	}
}

func TestRandomFilterAndHint(t *testing.T) {
	t.Run("filter passes through", func(t *testing.T) {
		svc, finder, reader, _, _ := newServeFixture("https://transform.test")
		finder.random = portraitJpeg()
		reader.objects[finder.random.Original.Key] = []byte("jpeg")

		filter := repository.Filter{
			Tags:        []string{"cats"},
			Exclude:     []string{"2xyz"},
			Orientation: models.OrientationPortrait,
		}
		if _, err := svc.Random(context.Background(), ServeRequest{Filter: filter}); err != nil {
			t.Fatalf("Random() error = %v", err)
		}
		if !reflect.DeepEqual(finder.gotFilter, filter) {
			t.Errorf("filter = %+v, want %+v", finder.gotFilter, filter)
		}
	})

	t.Run("mobile hint fills empty orientation", func(t *testing.T) {
		svc, finder, reader, _, _ := newServeFixture("https://transform.test")
		finder.random = portraitJpeg()
		reader.objects[finder.random.Original.Key] = []byte("jpeg")

		if _, err := svc.Random(context.Background(), ServeRequest{MobileHint: true}); err != nil {
			t.Fatalf("Random() error = %v", err)
		}
		if finder.gotFilter.Orientation != models.OrientationPortrait {
			t.Errorf("orientation = %s, want portrait from hint", finder.gotFilter.Orientation)
		}
	})

	t.Run("hint never overrides an explicit filter", func(t *testing.T) {
		svc, finder, reader, _, _ := newServeFixture("https://transform.test")
		finder.random = portraitJpeg()
		reader.objects[finder.random.Original.Key] = []byte("jpeg")

		req := ServeRequest{
			Filter:     repository.Filter{Orientation: models.OrientationLandscape},
			MobileHint: true,
		}
		if _, err := svc.Random(context.Background(), req); err != nil {
			t.Fatalf("Random() error = %v", err)
		}
		if finder.gotFilter.Orientation != models.OrientationLandscape {
			t.Errorf("orientation = %s, hint must not override", finder.gotFilter.Orientation)
		}
	})

	t.Run("no match propagates not found", func(t *testing.T) {
		svc, finder, _, _, _ := newServeFixture("https://transform.test")
		finder.randomErr = repository.ErrImageNotFound

		_, err := svc.Random(context.Background(), ServeRequest{})
		if !errors.Is(err, repository.ErrImageNotFound) {
			t.Errorf("error = %v, want ErrImageNotFound", err)
		}
	})
}

func TestDeleteRemovesBytesBeforeRow(t *testing.T) {
	svc, finder, reader, inv, events := newServeFixture("https://transform.test")
	img := portraitJpeg()
	img.Webp = models.ConcreteVariant("portrait/2abc.webp", 400)
	finder.images[img.ID] = img

	if err := svc.Delete(context.Background(), img.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if want := []string{"objects", "row"}; !reflect.DeepEqual(*events, want) {
		t.Errorf("order = %v, want %v", *events, want)
	}
	if len(reader.deleted) != 1 || !reflect.DeepEqual(reader.deleted[0], []string{"portrait/2abc.jpg", "portrait/2abc.webp"}) {
		t.Errorf("deleted keys = %v", reader.deleted)
	}
	if !reflect.DeepEqual(finder.deleted, []string{img.ID}) {
		t.Errorf("deleted rows = %v", finder.deleted)
	}
	if !reflect.DeepEqual(inv.kinds, []string{"images"}) {
		t.Errorf("invalidated = %v", inv.kinds)
	}
}

func TestDeleteObjectFailureKeepsRow(t *testing.T) {
	svc, finder, reader, inv, _ := newServeFixture("https://transform.test")
	img := portraitJpeg()
	finder.images[img.ID] = img
	reader.deleteErr = errors.New("s3 down")

	if err := svc.Delete(context.Background(), img.ID); err == nil {
		t.Fatal("Delete() should fail when object deletion fails")
	}
	if len(finder.deleted) != 0 {
		t.Error("row must not be deleted when bytes were not")
	}
	if len(inv.kinds) != 0 {
		t.Error("no invalidation on failed delete")
	}
}

func TestDeleteUnknownImage(t *testing.T) {
	svc, _, _, _, _ := newServeFixture("https://transform.test")
	err := svc.Delete(context.Background(), "missing")
	if !errors.Is(err, repository.ErrImageNotFound) {
		t.Errorf("error = %v, want ErrImageNotFound", err)
	}
}
