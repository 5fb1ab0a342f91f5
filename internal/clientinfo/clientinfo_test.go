package clientinfo

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    Info
		wantErr bool
	}{
		{
			name:   "all fields",
			header: `platform="android", version="1.4.0", install="abc-123"`,
			want:   Info{Platform: "android", Version: "1.4.0", Install: "abc-123"},
		},
		{
			name:   "token platform",
			header: `platform=ios, version="2.0.1"`,
			want:   Info{Platform: "ios", Version: "2.0.1"},
		},
		{
			name:   "unknown platform is web",
			header: `platform="windows"`,
			want:   Info{Platform: "web"},
		},
		{
			name:   "params and unknown keys ignored",
			header: `version="1.0.0";build=44, extra="x"`,
			want:   Info{Platform: "web", Version: "1.0.0"},
		},
		{
			name:    "empty",
			header:  "  ",
			wantErr: true,
		},
		{
			name:    "malformed",
			header:  `platform="ios`,
			wantErr: true,
		},
		{
			name:    "non-string version",
			header:  `version=14`,
			wantErr: true,
		},
		{
			name:    "inner list",
			header:  `platform=("ios" "android")`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCheckMinimum(t *testing.T) {
	tests := []struct {
		version string
		minimum string
		wantErr bool
	}{
		{"1.4.0", "1.3.0", false},
		{"1.3.0", "1.3.0", false},
		{"1.2.9", "1.3.0", true},
		{"v1.2.0", "1.3.0", true},
		{"", "1.3.0", false},
		{"dev", "1.3.0", false},
		{"1.0.0", "", false},
	}

	for _, tt := range tests {
		err := CheckMinimum(tt.version, tt.minimum)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckMinimum(%q, %q) = %v, wantErr %v", tt.version, tt.minimum, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, model.ErrClientOutdated) {
			t.Errorf("error = %v, want ErrClientOutdated", err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name         string
		path         string
		header       string
		wantStatus   int
		wantCode     string
		wantPlatform string
	}{
		{"no header", "/v1/search", "", http.StatusOK, "", "web"},
		{"current build", "/v1/search", `platform="ios", version="2.0.0"`, http.StatusOK, "", "ios"},
		{"outdated build", "/v1/search", `platform="ios", version="1.0.0"`, http.StatusUpgradeRequired, "CLIENT_UPGRADE_REQUIRED", ""},
		{"malformed", "/v1/search", `platform="ios`, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"health exempt", "/health", `platform="ios", version="1.0.0"`, http.StatusOK, "", "web"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPlatform string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPlatform = FromContext(r.Context()).Platform
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(Header, tt.header)
			}
			w := httptest.NewRecorder()
			Middleware("1.2.0", logger)(next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				var resp struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				json.NewDecoder(w.Body).Decode(&resp)
				if resp.Error.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode)
				}
				return
			}
			if gotPlatform != tt.wantPlatform {
				t.Errorf("platform = %q, want %q", gotPlatform, tt.wantPlatform)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := Info{Platform: "Android", Version: "2.1.0", Install: "3f0c9a"}

	header, err := Format(in)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if header != `platform=android, version="2.1.0", install="3f0c9a"` {
		t.Errorf("Format() = %s", header)
	}

	got, err := Parse(header)
	if err != nil {
		t.Fatalf("Parse(%s) error = %v", header, err)
	}
	want := Info{Platform: PlatformAndroid, Version: "2.1.0", Install: "3f0c9a"}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}
