package imagesrc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/spotmatch/pkg/errors"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImagingProviderDecode(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantAspect float64
	}{
		{"square", 10, 10, 1},
		{"landscape", 40, 20, 0.5},
		{"portrait", 20, 50, 2.5},
	}
	p := NewImagingProvider(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := p.Decode(tt.name+".png", pngBytes(t, tt.w, tt.h))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if math.Abs(img.AspectRatio-tt.wantAspect) > 1e-9 {
				t.Errorf("AspectRatio = %v, want %v", img.AspectRatio, tt.wantAspect)
			}
			if img.Width != tt.w || img.Height != tt.h {
				t.Errorf("size = %dx%d, want %dx%d", img.Width, img.Height, tt.w, tt.h)
			}
			if img.ID == "" || len(img.Digest) != 64 {
				t.Errorf("ID = %q, Digest = %q", img.ID, img.Digest)
			}
		})
	}
}

func TestImagingProviderDecodeFailure(t *testing.T) {
	p := NewImagingProvider(0)
	for _, data := range [][]byte{nil, []byte("not an image")} {
		_, err := p.Decode("bad.png", data)
		if !errors.Is(err, errors.ErrCodeDecode) {
			t.Errorf("Decode(%q) error = %v, want DECODE_FAILED", data, err)
		}
	}
}

func TestImagingProviderMaxSide(t *testing.T) {
	img, err := NewImagingProvider(20).Decode("big.png", pngBytes(t, 80, 40))
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bitmap.Bounds()
	if b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("bitmap = %dx%d, want 20x10", b.Dx(), b.Dy())
	}
	if img.AspectRatio != 0.5 {
		t.Errorf("AspectRatio = %v, want 0.5", img.AspectRatio)
	}
}

func TestImagingProviderRotate(t *testing.T) {
	p := NewImagingProvider(0)
	img, _ := p.Decode("r.png", pngBytes(t, 20, 10))

	rotated, err := p.Rotate(img, 90)
	if err != nil {
		t.Fatal(err)
	}
	if b := rotated.Bounds(); b.Dx() != 10 || b.Dy() != 20 {
		t.Errorf("rotated bounds = %v, want 10x20", b)
	}

	if _, err := p.Rotate(&Image{}, 45); !errors.Is(err, errors.ErrCodeRotate) {
		t.Errorf("Rotate(empty) error = %v, want ROTATE_FAILED", err)
	}
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(image.NewNRGBA(image.Rect(0, 0, 3, 2)))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width != 3 || cfg.Height != 2 {
		t.Errorf("DecodeConfig() = %+v, %v", cfg, err)
	}
}

func TestPool(t *testing.T) {
	a, b, c := &Image{ID: "a"}, &Image{ID: "b"}, &Image{ID: "c"}
	p := NewPool(a, b)
	p.Add(b, c, nil)

	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}

	snap := p.Snapshot()
	if !p.Remove("b") {
		t.Error("Remove(b) = false")
	}
	if p.Remove("b") {
		t.Error("second Remove(b) = true")
	}
	if _, ok := p.Get("b"); ok {
		t.Error("Get(b) found removed image")
	}
	if got, ok := p.Get("c"); !ok || got != c {
		t.Errorf("Get(c) = %v, %v", got, ok)
	}

	ids := func(images []*Image) []string {
		var out []string
		for _, img := range images {
			out = append(out, img.ID)
		}
		return out
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids(snap)); diff != "" {
		t.Errorf("snapshot changed after Remove (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "c"}, ids(p.Snapshot())); diff != "" {
		t.Errorf("pool mismatch (-want +got):\n%s", diff)
	}

	p.RemoveAll()
	if p.Len() != 0 {
		t.Errorf("Len() after RemoveAll = %d", p.Len())
	}
}

func TestShuffleSnapshot(t *testing.T) {
	var images []*Image
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		images = append(images, &Image{ID: id})
	}
	x := ShuffleSnapshot(images, rand.New(rand.NewPCG(1, 2)))
	y := ShuffleSnapshot(images, rand.New(rand.NewPCG(1, 2)))

	if diff := cmp.Diff(x, y); diff != "" {
		t.Errorf("same seed, different order:\n%s", diff)
	}
	if images[0].ID != "a" || images[7].ID != "h" {
		t.Error("ShuffleSnapshot modified its input")
	}
	if len(Index(x)) != len(images) {
		t.Error("shuffled snapshot lost images")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"b.png":     pngBytes(t, 10, 20),
		"a.PNG":     pngBytes(t, 10, 10),
		"notes.txt": []byte("hello"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	images, err := LoadDir(context.Background(), NewImagingProvider(0), dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	var names []string
	for _, img := range images {
		names = append(names, img.Name)
	}
	if diff := cmp.Diff([]string{"a.PNG", "b.png"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(context.Background(), NewImagingProvider(0), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing dir error = %v, want NOT_FOUND", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadDir(context.Background(), NewImagingProvider(0), dir)
	if !errors.Is(err, errors.ErrCodeDecode) {
		t.Errorf("broken file error = %v, want DECODE_FAILED", err)
	}
}

func TestDecodeAllKeepsOrder(t *testing.T) {
	var sources []Source
	for i := range 16 {
		sources = append(sources, Source{Name: string(rune('a' + i)), Data: pngBytes(t, 4+i, 4)})
	}
	images, err := DecodeAll(context.Background(), NewImagingProvider(0), sources)
	if err != nil {
		t.Fatal(err)
	}
	for i, img := range images {
		if img.Name != sources[i].Name || img.Width != 4+i {
			t.Errorf("image %d = %s (%dpx), want %s", i, img.Name, img.Width, sources[i].Name)
		}
	}
}
