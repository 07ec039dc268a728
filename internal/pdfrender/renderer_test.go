package pdfrender

import (
	"image"
	"os"
	"path/filepath"
	"testing"
)

func TestCapDimensionNoopBelowMax(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 200))
	out := capDimension(img, 1568)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 200 {
		t.Errorf("capDimension changed an image below the cap: %v", out.Bounds())
	}
}

func TestCapDimensionDisabledAtZero(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5000, 5000))
	out := capDimension(img, 0)
	if out.Bounds().Dx() != 5000 {
		t.Error("max<=0 should disable the cap")
	}
}

func TestCapDimensionDownscalesLongestSide(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3000, 1500))
	out := capDimension(img, 1000)
	if out.Bounds().Dx() != 1000 {
		t.Errorf("got width %d, want 1000", out.Bounds().Dx())
	}
	if out.Bounds().Dy() >= out.Bounds().Dx() {
		t.Errorf("aspect ratio not preserved: %v", out.Bounds())
	}
}

func TestValidatePathRejectsNonPDF(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := validatePath(txt); err == nil {
		t.Error("expected error for non-PDF extension")
	}
}

func TestValidatePathRejectsDirectory(t *testing.T) {
	if err := validatePath(t.TempDir()); err == nil {
		t.Error("expected error for directory path")
	}
}

func TestValidatePathRejectsMissingFile(t *testing.T) {
	if err := validatePath("/nonexistent/path/book.pdf"); err == nil {
		t.Error("expected error for missing file")
	}
}
