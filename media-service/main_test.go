package main

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain filename", "20240101120000_ab12cd34.png", false},
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"absolute path", "/etc/passwd", true},
		{"backslash path", `..\secrets.txt`, true},
		{"hidden file", ".htaccess", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeFilename(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("sanitizeFilename(%q) accepted, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Errorf("sanitizeFilename(%q): %v", tt.input, err)
			}
			if got != tt.input {
				t.Errorf("sanitizeFilename(%q) = %q, want unchanged", tt.input, got)
			}
		})
	}
}
