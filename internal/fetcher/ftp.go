package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher downloads files from anonymous FTP servers, or with the
// credentials embedded in the URL.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates an FTPFetcher with a 30s default timeout.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

// ftpTarget is a parsed ftp:// URL.
type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("fetcher: empty path in ftp url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, err := net.SplitHostPort(t.host); err != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			t.password = pw
		}
	}
	return t, nil
}

// Fetch retrieves the file at an ftp:// URL.
func (f *FTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("fetcher: ftp connect", zap.String("host", target.host), zap.String("path", target.path))

	conn, err := ftp.Dial(target.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(target.user, target.password); err != nil {
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}

	resp, err := conn.Retr(target.path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp retrieve %s", target.path)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp, MaxFileSize+1))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: ftp read")
	}
	if len(data) > MaxFileSize {
		return nil, eris.Errorf("fetcher: %s exceeds %d bytes", rawURL, MaxFileSize)
	}
	return data, nil
}
