package jsonutil

import (
	"errors"
	"strings"
	"testing"
)

type doc struct {
	FilePath string `json:"filePath"`
	Count    int    `json:"count"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    doc
		wantErr bool
	}{
		{"plain", `{"filePath":"a/b","count":2}`, doc{"a/b", 2}, false},
		{"surrounding whitespace", "\n  {\"filePath\":\"x\"}  \n", doc{FilePath: "x"}, false},
		{"byte order mark", "\xEF\xBB\xBF{\"count\":7}", doc{Count: 7}, false},
		{"trailing value", `{"count":1}{"count":2}`, doc{}, true},
		{"trailing garbage", `{"count":1} nope`, doc{}, true},
		{"wrong type", `{"count":"one"}`, doc{}, true},
		{"not json", `hello`, doc{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[doc]([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode[doc]([]byte("   ")); !errors.Is(err, ErrEmpty) {
		t.Errorf("Decode() error = %v, want ErrEmpty", err)
	}
}

func TestDecode_PreviewTruncated(t *testing.T) {
	raw := `{"filePath":"` + strings.Repeat("x", 500)
	_, err := Decode[doc]([]byte(raw))
	if err == nil {
		t.Fatal("expected error for unterminated document")
	}
	if !strings.Contains(err.Error(), "...") {
		t.Errorf("error should carry a truncated preview: %v", err)
	}
}
