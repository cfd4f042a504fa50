// Package boundary loads Nigerian administrative boundary polygons from GADM
// shapefiles and answers point-in-polygon lookups for station enrichment.
package boundary

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
)

// DefaultShapefileURL is the GADM 4.1 Nigeria shapefile bundle. The zip holds
// one shapefile per admin level: ADM1 = states, ADM2 = LGAs.
const DefaultShapefileURL = "https://geodata.ucdavis.edu/gadm/gadm4.1/shp/gadm41_NGA_shp.zip"

// Download fetches the boundary shapefile zip into cacheDir (skipping the
// download when a previous run left the zip behind) and extracts it. Returns
// the paths to the state and LGA shapefiles.
func Download(ctx context.Context, httpf *fetcher.HTTPFetcher, url, cacheDir string) (statePath, lgaPath string, err error) {
	if url == "" {
		url = DefaultShapefileURL
	}
	log := zap.L().With(
		zap.String("component", "boundary.download"),
		zap.String("url", url),
	)

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", "", eris.Wrap(err, "boundary: create cache dir")
	}

	parts := strings.Split(url, "/")
	zipName := parts[len(parts)-1]
	zipPath := filepath.Join(cacheDir, zipName)

	if info, statErr := os.Stat(zipPath); statErr == nil && info.Size() > 0 {
		log.Debug("boundary zip already cached", zap.String("path", zipPath))
	} else {
		log.Info("downloading boundary shapefiles")
		if _, dlErr := httpf.DownloadToFile(ctx, url, zipPath); dlErr != nil {
			return "", "", eris.Wrap(dlErr, "boundary: download shapefile zip")
		}
	}

	extractDir := filepath.Join(cacheDir, strings.TrimSuffix(zipName, ".zip"))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", "", eris.Wrap(err, "boundary: create extract dir")
	}
	if _, err := fetcher.ExtractZIP(zipPath, extractDir); err != nil {
		return "", "", eris.Wrap(err, "boundary: extract shapefile zip")
	}

	statePath, err = findShapefile(extractDir, "_1.shp")
	if err != nil {
		return "", "", err
	}
	lgaPath, err = findShapefile(extractDir, "_2.shp")
	if err != nil {
		return "", "", err
	}
	return statePath, lgaPath, nil
}

// findShapefile locates the shapefile for one admin level by its GADM suffix
// (e.g. "gadm41_NGA_1.shp" for states).
func findShapefile(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "boundary: read extract dir")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("boundary: no *%s shapefile in %s", suffix, dir)
}
