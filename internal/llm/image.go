package llm

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

// ImageMIME sniffs the MIME type of an image payload. Formats with a
// registered decoder are identified from their header; anything else falls
// back to content sniffing, and finally to application/octet-stream.
func ImageMIME(b []byte) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(b)); err == nil {
		return "image/" + format
	}
	ct := http.DetectContentType(b)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}
