// Package clientinfo parses the Storefront-Client header the mobile app
// sends on every request and gates outdated app builds.
package clientinfo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"

	"storefront/internal/model"
)

// Header is the request header carrying client details.
// Format (RFC 8941 Dictionary):
//
//	platform=ios, version="1.4.0", install="3f0c..."
const Header = "Storefront-Client"

// Known platforms. Anything else is reported as "web".
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// Info describes the calling app build.
type Info struct {
	Platform string
	Version  string
	Install  string
}

// Parse extracts Info from a Storefront-Client header value.
// Unknown keys and parameters are ignored.
func Parse(header string) (Info, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Info{}, errors.New("empty Storefront-Client header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Info{}, fmt.Errorf("invalid Storefront-Client header: %w", err)
	}

	var info Info
	if info.Platform, err = member(dict, "platform"); err != nil {
		return Info{}, err
	}
	if info.Version, err = member(dict, "version"); err != nil {
		return Info{}, err
	}
	if info.Install, err = member(dict, "install"); err != nil {
		return Info{}, err
	}

	info.Platform = NormalizePlatform(info.Platform)
	return info, nil
}

// Format serializes info as a Storefront-Client header value. Empty fields
// are omitted; platform is sent as a token.
func Format(info Info) (string, error) {
	dict := httpsfv.NewDictionary()
	if info.Platform != "" {
		dict.Add("platform", httpsfv.NewItem(httpsfv.Token(NormalizePlatform(info.Platform))))
	}
	if info.Version != "" {
		dict.Add("version", httpsfv.NewItem(info.Version))
	}
	if info.Install != "" {
		dict.Add("install", httpsfv.NewItem(info.Install))
	}
	return httpsfv.Marshal(dict)
}

// member returns a string or token item, or "" when key is absent.
func member(dict *httpsfv.Dictionary, key string) (string, error) {
	m, ok := dict.Get(key)
	if !ok {
		return "", nil
	}
	item, ok := m.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	switch v := item.Value.(type) {
	case string:
		return v, nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s value must be a string", key)
	}
}

// NormalizePlatform lowercases p and maps unknown values to web.
func NormalizePlatform(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PlatformIOS:
		return PlatformIOS
	case PlatformAndroid:
		return PlatformAndroid
	default:
		return PlatformWeb
	}
}

// CheckMinimum returns a client-outdated error when version is a valid
// semantic version below minimum. Empty or non-semver versions pass: web
// clients and development builds carry none.
func CheckMinimum(version, minimum string) error {
	if minimum == "" || version == "" {
		return nil
	}
	v, m := normalizeVersion(version), normalizeVersion(minimum)
	if !semver.IsValid(v) || !semver.IsValid(m) {
		return nil
	}
	if semver.Compare(v, m) < 0 {
		return model.NewClientOutdatedError(version, minimum)
	}
	return nil
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}

type contextKey struct{}

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// FromContext returns the Info stored by the middleware. Requests without
// the header get a web client with no version.
func FromContext(ctx context.Context) Info {
	if info, ok := ctx.Value(contextKey{}).(Info); ok {
		return info
	}
	return Info{Platform: PlatformWeb}
}
