// Package exfattest provides shared test fixtures: a CSV-driven directory
// tree builder in the style of the teacher's disk-geometry loader
// (disks.DiskGeometry / gocsv), and a whole-volume sector dump wrapped the
// way the teacher wraps decompressed test images (testing.LoadDiskImage /
// bytesextra).
package exfattest

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xaionaro-go/bytesextra"

	"github.com/exfatvol/exfatvol/fat"
	"github.com/exfatvol/exfatvol/volume"
)

// ManifestRow describes one entry to install into a volume under test: a
// directory or a host-file mapping, addressed by a slash-separated path.
type ManifestRow struct {
	Kind     string `csv:"kind"`      // "dir" or "file"
	Path     string `csv:"path"`      // e.g. "docs/readme"
	HostPath string `csv:"host_path"` // only meaningful for kind=="file"
}

// BuildTree applies every row of a CSV manifest to shell, in order, and
// returns a map from path to the first heap cluster of whatever was created
// there. Parent directories must appear before their children.
func BuildTree(shell *volume.Shell, manifestCSV string) (map[string]fat.HeapIndex, error) {
	var rows []ManifestRow
	if err := gocsv.UnmarshalString(manifestCSV, &rows); err != nil {
		return nil, fmt.Errorf("exfattest: parsing manifest: %w", err)
	}

	clusters := map[string]fat.HeapIndex{"": shell.RootDirectoryCluster()}

	for _, row := range rows {
		parentPath, name := splitPath(row.Path)
		parent, ok := clusters[parentPath]
		if !ok {
			return nil, fmt.Errorf("exfattest: parent %q not yet created for %q", parentPath, row.Path)
		}

		switch row.Kind {
		case "dir":
			cluster, err := shell.AddDirectory(parent, name)
			if err != nil {
				return nil, fmt.Errorf("exfattest: add_directory %q: %w", row.Path, err)
			}
			clusters[row.Path] = cluster
		case "file":
			cluster, err := shell.MapFileWithName(parent, row.HostPath, name)
			if err != nil {
				return nil, fmt.Errorf("exfattest: map_file %q: %w", row.Path, err)
			}
			clusters[row.Path] = cluster
		default:
			return nil, fmt.Errorf("exfattest: unknown manifest kind %q", row.Kind)
		}
	}

	return clusters, nil
}

func splitPath(path string) (parent, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// DumpVolume reads every sector of shell and returns the concatenated bytes
// wrapped as a seekable stream, for tests that want to assert on raw volume
// content with an io.ReadSeeker rather than a flat []byte.
func DumpVolume(shell *volume.Shell) (io.ReadWriteSeeker, error) {
	raw, err := DumpVolumeBytes(shell)
	if err != nil {
		return nil, err
	}
	return bytesextra.NewReadWriteSeeker(raw), nil
}

// DumpVolumeBytes reads every sector of shell into one contiguous buffer.
func DumpVolumeBytes(shell *volume.Shell) ([]byte, error) {
	sectorSize := shell.BytesPerSector()
	out := make([]byte, shell.VolumeSize())

	for sector := uint64(0); sector < shell.VolumeLength(); sector++ {
		start := sector * uint64(sectorSize)
		if err := shell.ReadSector(sector, out[start:start+uint64(sectorSize)]); err != nil {
			return nil, fmt.Errorf("exfattest: read_sector %d: %w", sector, err)
		}
	}
	return out, nil
}
