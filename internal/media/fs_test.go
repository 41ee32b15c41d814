package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testBase = "http://localhost:5501/media"

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, testBase, "superheroes")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestUploadAndRead(t *testing.T) {
	s := tempStore(t)
	url, err := s.Upload(context.Background(), Object{Name: "cape.PNG", Data: []byte("png-bytes")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(url, testBase+"/superheroes/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("url = %q", url)
	}

	key, err := keyFromURL(testBase, url)
	if err != nil {
		t.Fatalf("keyFromURL: %v", err)
	}
	abs, err := s.Path(key)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	got, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "png-bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestUploadDistinctURLs(t *testing.T) {
	s := tempStore(t)
	a, _ := s.Upload(context.Background(), Object{Name: "a.jpg", Data: []byte("a")})
	b, _ := s.Upload(context.Background(), Object{Name: "a.jpg", Data: []byte("a")})
	if a == b {
		t.Errorf("expected distinct urls, both %q", a)
	}
}

func TestUploadExtensionFromContentType(t *testing.T) {
	s := tempStore(t)
	url, err := s.Upload(context.Background(), Object{ContentType: "image/jpeg", Data: []byte("j")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasSuffix(url, ".jpg") {
		t.Errorf("url = %q, want .jpg suffix", url)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	url, _ := s.Upload(context.Background(), Object{Name: "bye.png", Data: []byte("bye")})
	if err := s.Delete(context.Background(), url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	key, _ := keyFromURL(testBase, url)
	abs, _ := s.Path(key)
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	// Second delete is a no-op.
	if err := s.Delete(context.Background(), url); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestDeleteForeignURL(t *testing.T) {
	s := tempStore(t)
	if err := s.Delete(context.Background(), "https://elsewhere.example/x.png"); err == nil {
		t.Error("expected error for foreign url")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.png",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Path(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Delete(context.Background(), testBase+"/"+p); err == nil {
			t.Errorf("expected error for delete of %q", p)
		}
	}
}

func TestAtomicUploadLeavesNoTemp(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Upload(context.Background(), Object{Name: "x.png", Data: []byte("x")}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, "superheroes", ".capes-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestUploadCancelled(t *testing.T) {
	s := tempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Upload(ctx, Object{Name: "x.png", Data: []byte("x")}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "capes-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name(), testBase, ""); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestNewFS_RequiresBaseURL(t *testing.T) {
	if _, err := NewFS(t.TempDir(), "", ""); err == nil {
		t.Error("expected error for empty base url")
	}
}
