package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"

	"github.com/getsentry/cpuprof/internal/testutil"
)

func TestGetRequiredPathParameters(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		ok     bool
		want   map[string]uint64
		status int
	}{
		{
			name:   "valid",
			path:   "/organizations/1/projects/2",
			ok:     true,
			want:   map[string]uint64{"organization_id": 1, "project_id": 2},
			status: http.StatusOK,
		},
		{
			name:   "malformed",
			path:   "/organizations/1/projects/abc",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got map[string]uint64
				ok  bool
			)
			router := httprouter.New()
			router.HandlerFunc(http.MethodGet, "/organizations/:organization_id/projects/:project_id", func(w http.ResponseWriter, r *http.Request) {
				got, _, ok = GetRequiredPathParameters(w, r, "organization_id", "project_id")
				if ok {
					w.WriteHeader(http.StatusOK)
				}
			})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if ok != tt.ok {
				t.Fatalf("expected ok to be %v", tt.ok)
			}
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			if diff := testutil.Diff(got, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestGetBoolQueryParameter(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		fallback bool
		want     bool
		wantErr  bool
	}{
		{name: "absent", query: "", fallback: true, want: true},
		{name: "true", query: "?keep_natives=true", want: true},
		{name: "false", query: "?keep_natives=0", fallback: true, want: false},
		{name: "malformed", query: "?keep_natives=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			got, err := GetBoolQueryParameter(r, "keep_natives", tt.fallback)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
