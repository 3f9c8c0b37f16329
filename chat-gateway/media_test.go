package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"regexp"
	"testing"
)

func TestDecodeAttachment(t *testing.T) {
	raw := []byte("these are the attachment bytes")
	payload := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		media   string
		wantExt string
		wantErr bool
	}{
		{"bare descriptor", "image/png;base64," + payload, "png", false},
		{"data uri descriptor", "data:image/jpeg;base64," + payload, "jpeg", false},
		{"missing base64 marker", "image/png," + payload, "", true},
		{"bad base64 payload", "image/png;base64,@@not base64@@", "", true},
		{"descriptor without subtype", "imagepng;base64," + payload, "", true},
		{"descriptor with trailing slash", "image/;base64," + payload, "", true},
		{"empty string", "", "", true},
	}

	filenameShape := regexp.MustCompile(`^\d{14}_[0-9a-f]{32}\.[a-z]+$`)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := decodeAttachment(tt.media)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMedia) {
					t.Fatalf("expected ErrInvalidMedia, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeAttachment: %v", err)
			}
			if !bytes.Equal(att.Data, raw) {
				t.Errorf("decoded data does not round-trip")
			}
			if !filenameShape.MatchString(att.Filename) {
				t.Errorf("filename %q does not match expected shape", att.Filename)
			}
			wantSuffix := "." + tt.wantExt
			if got := att.Filename[len(att.Filename)-len(wantSuffix):]; got != wantSuffix {
				t.Errorf("filename %q does not carry extension %q", att.Filename, tt.wantExt)
			}
		})
	}
}

func TestDecodeAttachment_UniqueFilenames(t *testing.T) {
	media := "image/png;base64," + base64.StdEncoding.EncodeToString([]byte("x"))
	a, err := decodeAttachment(media)
	if err != nil {
		t.Fatal(err)
	}
	b, err := decodeAttachment(media)
	if err != nil {
		t.Fatal(err)
	}
	if a.Filename == b.Filename {
		t.Errorf("two decodes produced the same filename %q", a.Filename)
	}
}
