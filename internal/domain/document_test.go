package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestTruncateText(t *testing.T) {
	short := "hello"
	if got := TruncateText(short); got != short {
		t.Fatalf("short text must pass through, got %q", got)
	}

	long := strings.Repeat("a", MaxTextLength+50)
	if got := TruncateText(long); len(got) != MaxTextLength {
		t.Fatalf("len = %d, want %d", len(got), MaxTextLength)
	}

	// Truncation counts runes, not bytes.
	wide := strings.Repeat("я", MaxTextLength+10)
	got := TruncateText(wide)
	if n := len([]rune(got)); n != MaxTextLength {
		t.Fatalf("rune len = %d, want %d", n, MaxTextLength)
	}
}

func TestModalityValid(t *testing.T) {
	if !ModalityText.Valid() || !ModalityImage.Valid() {
		t.Fatal("known modalities must be valid")
	}
	if Modality("audio").Valid() {
		t.Fatal("unknown modality must be invalid")
	}
}

func TestDocumentHasImage(t *testing.T) {
	none := Document{}
	if none.HasImage() {
		t.Fatal("missing vector must not report an image")
	}

	zero := Document{ImageVector: ZeroVector(4)}
	if zero.HasImage() {
		t.Fatal("zero fallback must not report an image")
	}

	real := Document{ImageVector: []float32{0, 0.1, 0}}
	if !real.HasImage() {
		t.Fatal("non-zero vector must report an image")
	}
}

func TestDimensionMismatchError(t *testing.T) {
	err := NewDimensionMismatch("text_vector", 384, 3)

	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatal("must unwrap to ErrDimensionMismatch")
	}

	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatal("must expose the typed error")
	}
	if dimErr.Field != "text_vector" || dimErr.Want != 384 || dimErr.Got != 3 {
		t.Fatalf("unexpected fields: %+v", dimErr)
	}
	for _, want := range []string{"text_vector", "384", "3"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in message %q", want, err.Error())
		}
	}
}
