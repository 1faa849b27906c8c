package domain

// MaxTextLength caps the stored text field, matching the collection schema.
const MaxTextLength = 2000

// Modality selects which vector field an operation targets.
type Modality string

const (
	// ModalityText targets the text embedding field.
	ModalityText Modality = "text"
	// ModalityImage targets the image embedding field.
	ModalityImage Modality = "image"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	return m == ModalityText || m == ModalityImage
}

// Document is the unit of storage: text plus one vector per modality and
// passenger metadata that is returned verbatim on hits.
type Document struct {
	ID          string
	Text        string
	TextVector  []float32
	ImageVector []float32 // nil on text-only collections
	Metadata    map[string]any
}

// HasImage reports whether the document carries a real (non zero-fallback)
// image vector.
func (d *Document) HasImage() bool {
	for _, v := range d.ImageVector {
		if v != 0 {
			return true
		}
	}
	return false
}

// TruncateText clips s to MaxTextLength runes.
func TruncateText(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxTextLength {
		return s
	}
	return string(runes[:MaxTextLength])
}

// ZeroVector returns a zero-filled vector of the given dimension, used as the
// fallback for documents without an image embedding.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// Hit is a single search result.
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]any
	Score    float64
}
