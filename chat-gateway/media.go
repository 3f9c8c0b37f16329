package main

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMedia marks an inline attachment that is not a decodable
// data-URI-style string.
var ErrInvalidMedia = errors.New("invalid media payload")

// attachment is a decoded inline media payload ready for storage.
type attachment struct {
	Filename string
	Data     []byte
}

// decodeAttachment parses an inline `<mime-descriptor>;base64,<payload>`
// attachment. The stored filename is synthesized from the server clock plus
// a random suffix and the extension derived from the MIME descriptor;
// client-supplied filenames are never trusted.
func decodeAttachment(media string) (*attachment, error) {
	descriptor, payload, ok := strings.Cut(media, ";base64,")
	if !ok {
		return nil, fmt.Errorf("%w: missing base64 marker", ErrInvalidMedia)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}

	ext := extensionFrom(descriptor)
	if ext == "" {
		return nil, fmt.Errorf("%w: no extension in descriptor %q", ErrInvalidMedia, descriptor)
	}

	u := uuid.New()
	filename := fmt.Sprintf("%s_%s.%s",
		time.Now().UTC().Format("20060102150405"),
		hex.EncodeToString(u[:]),
		ext,
	)
	return &attachment{Filename: filename, Data: data}, nil
}

// extensionFrom pulls the subtype out of a MIME descriptor such as
// "data:image/png" or "image/png".
func extensionFrom(descriptor string) string {
	descriptor = strings.TrimPrefix(descriptor, "data:")
	idx := strings.LastIndex(descriptor, "/")
	if idx < 0 || idx == len(descriptor)-1 {
		return ""
	}
	return descriptor[idx+1:]
}
