// Package fetcher downloads source data over HTTP or FTP and parses the
// formats the pipeline ingests: CSV, XLSX, JSON, and zipped shapefiles.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Downloader is the transport-agnostic download surface shared by the HTTP
// and FTP fetchers.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ForURL picks a transport by URL scheme. Mirror sites for the licence
// registries occasionally publish over plain FTP.
func ForURL(rawURL string, httpf *HTTPFetcher, ftpf *FTPFetcher) (Downloader, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return httpf, nil
	case "ftp":
		return ftpf, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}
