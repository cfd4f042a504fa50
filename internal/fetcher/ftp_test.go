package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  string
	}{
		{
			name:     "default port",
			url:      "ftp://mirror.example.org/pub/nmdpra/licences.xlsx",
			wantHost: "mirror.example.org:21",
			wantPath: "/pub/nmdpra/licences.xlsx",
		},
		{
			name:     "explicit port",
			url:      "ftp://mirror.example.org:2121/data.csv",
			wantHost: "mirror.example.org:2121",
			wantPath: "/data.csv",
		},
		{
			name:    "wrong scheme",
			url:     "https://mirror.example.org/data.csv",
			wantErr: "expected ftp scheme",
		},
		{
			name:    "no path",
			url:     "ftp://mirror.example.org",
			wantErr: "no path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := splitFTPURL(tt.url)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_DefaultTimeout(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.NotZero(t, f.timeout)
}
