package pipeline

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeImage decodes a base64 image payload. A data-URL header such as
// "data:image/png;base64," is stripped first. Only the standard alphabet with
// padding is accepted; line breaks are rejected rather than skipped, while
// non-zero trailing padding bits are tolerated.
func DecodeImage(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if i := strings.IndexByte(payload, ','); i >= 0 {
			payload = payload[i+1:]
		}
	}
	if strings.ContainsAny(payload, "\r\n") {
		return nil, fmt.Errorf("%w: line break in payload", ErrInvalidImagePayload)
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImagePayload, err)
	}
	return b, nil
}
