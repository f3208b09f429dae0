// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const testSchema = `
#Doc: {
	name:  string & !=""
	count: int & >=0 | *1
	tags?: [...string]
}
`

type testDoc struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      string
		opts      []Option
		wantErr   string
		wantName  string
		wantCount int
	}{
		{name: "cue input with default", data: `name: "a"`, wantName: "a", wantCount: 1},
		{name: "json input", data: `{"name": "b", "count": 3, "tags": ["x"]}`, wantName: "b", wantCount: 3},
		{name: "schema violation", data: `name: ""`, wantErr: "name"},
		{name: "negative count", data: `name: "c", count: -1`, wantErr: "count"},
		{name: "syntax error", data: `name: "unterminated`, wantErr: "doc.cue"},
		{name: "too large", data: `name: "too-large"`, opts: []Option{WithMaxFileSize(4)}, wantErr: "exceeds maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := append([]Option{WithFilename("doc.cue")}, tt.opts...)
			res, err := ParseAndDecode[testDoc]([]byte(testSchema), []byte(tt.data), "#Doc", opts...)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Value.Name != tt.wantName || res.Value.Count != tt.wantCount {
				t.Errorf("got %+v, want name=%s count=%d", *res.Value, tt.wantName, tt.wantCount)
			}
		})
	}
}

func TestParseAndDecode_MissingDefinition(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecode[testDoc]([]byte(testSchema), []byte(`name: "a"`), "#Missing")
	if err == nil || !strings.Contains(err.Error(), "#Missing") {
		t.Fatalf("expected missing definition error, got %v", err)
	}
}
