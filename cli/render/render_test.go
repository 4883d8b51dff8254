package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty defers", "", "", false},
		{"invalid", "xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

type tableResponse struct {
	Name string `json:"name"`
}

func (r tableResponse) Table(w io.Writer, heading func(string) string) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n", heading("NAME"), r.Name)
	return err
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWriter(FormatJSON, true, &buf)
	if err := r.Render(tableResponse{Name: "example"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["name"] != "example" {
		t.Errorf("name = %q", decoded["name"])
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWriter(FormatYAML, true, &buf)
	if err := r.Render(map[string]string{"name": "example"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "name: example") {
		t.Errorf("yaml output = %q", buf.String())
	}
}

func TestRenderer_Table(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWriter(FormatTable, true, &buf)
	if err := r.Render(tableResponse{Name: "example"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "NAME") || !strings.Contains(buf.String(), "example") {
		t.Errorf("table output = %q", buf.String())
	}
}

func TestRenderer_TableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWriter(FormatTable, true, &buf)
	if err := r.Render(map[string]string{"name": "example"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("fallback output is not JSON: %v", err)
	}
}
