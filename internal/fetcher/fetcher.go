// Package fetcher retrieves uploaded plan and import files from remote
// storage and decodes them into text or spreadsheet records.
package fetcher

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// MaxFileSize caps the bytes read from any remote file.
const MaxFileSize = 32 << 20

// Fetcher retrieves the raw bytes of a remote file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Router dispatches fetches by URL scheme.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter creates a Router serving http(s) and ftp URLs.
func NewRouter(httpOpts HTTPOptions, ftpOpts FTPOptions) *Router {
	return &Router{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

// Fetch retrieves rawURL with the fetcher registered for its scheme.
func (r *Router) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP.Fetch(ctx, rawURL)
		}
	case "ftp":
		if r.FTP != nil {
			return r.FTP.Fetch(ctx, rawURL)
		}
	}
	return nil, eris.Errorf("fetcher: unsupported url scheme %q", u.Scheme)
}

// DecodeText returns data as a UTF-8 string. Bytes that are not valid
// UTF-8 are read as Windows-1252, the usual encoding of spreadsheet CSV
// exports.
func DecodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: decode windows-1252")
	}
	return string(out), nil
}
