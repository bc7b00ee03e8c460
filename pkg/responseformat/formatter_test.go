package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	SiteID string `json:"site_id"`
	Years  []int  `json:"years"`
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter()
	data := payload{SiteID: "US-Ha1", Years: []int{1991, 1992}}

	tests := []struct {
		name        string
		target      string
		accept      string
		contentType string
	}{
		{"default json", "/x", "", ContentTypeJSON},
		{"format param", "/x?format=msgpack", "", ContentTypeMsgPack},
		{"accept header", "/x", ContentTypeMsgPack, ContentTypeMsgPack},
		{"param wins over header", "/x?format=json", ContentTypeMsgPack, ContentTypeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			if err := f.WriteResponse(rec, req, http.StatusOK, data); err != nil {
				t.Fatal(err)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Fatalf("Content-Type = %q, want %q", got, tt.contentType)
			}

			var got map[string]any
			if tt.contentType == ContentTypeJSON {
				err := json.Unmarshal(rec.Body.Bytes(), &got)
				if err != nil {
					t.Fatal(err)
				}
			} else {
				err := msgpack.Unmarshal(rec.Body.Bytes(), &got)
				if err != nil {
					t.Fatal(err)
				}
			}
			if got["site_id"] != "US-Ha1" {
				t.Errorf("body = %v, want json field names", got)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	f := NewFormatter()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	if err := f.WriteError(rec, req, http.StatusBadRequest, "bad buffer"); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "bad buffer" || body.Status != http.StatusBadRequest {
		t.Errorf("body = %+v", body)
	}
}
