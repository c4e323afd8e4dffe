package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/exfatvol/exfatvol/fat"
	"github.com/exfatvol/exfatvol/volume"
)

// manifestRow is one line of the CSV manifest driving a build: either a
// directory or a host file to map in, addressed by a slash-separated path.
type manifestRow struct {
	Kind     string `csv:"kind"`
	Path     string `csv:"path"`
	HostPath string `csv:"host_path"`
}

func main() {
	app := &cli.App{
		Name:  "exfatvol",
		Usage: "Synthesize a read-only exFAT volume image from a manifest",
		Commands: []*cli.Command{
			{
				Name:      "build",
				Usage:     "Build a volume image from a CSV manifest",
				ArgsUsage: "MANIFEST_CSV OUTPUT_IMAGE",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "bytes-per-sector-shift", Value: 9},
					&cli.UintFlag{Name: "sectors-per-cluster-shift", Value: 3},
					&cli.UintFlag{Name: "cluster-count", Value: 1024},
					&cli.UintFlag{Name: "volume-serial-number", Value: 0},
				},
				Action: buildImage,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("exfatvol: %s", err)
	}
}

func buildImage(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("expected MANIFEST_CSV and OUTPUT_IMAGE arguments")
	}
	manifestPath := c.Args().Get(0)
	outputPath := c.Args().Get(1)

	manifestFile, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("opening manifest: %w", err)
	}
	defer manifestFile.Close()

	var rows []manifestRow
	if err := gocsv.Unmarshal(manifestFile, &rows); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	clusterCount := uint32(c.Uint("cluster-count"))
	shell, err := volume.NewWithSerialNumber(
		uint8(c.Uint("bytes-per-sector-shift")),
		uint8(c.Uint("sectors-per-cluster-shift")),
		clusterCount,
		uint32(c.Uint("volume-serial-number")),
	)
	if err != nil {
		return fmt.Errorf("constructing volume: %w", err)
	}

	clusters := map[string]fat.HeapIndex{"": shell.RootDirectoryCluster()}
	var errs *multierror.Error

	for _, row := range rows {
		parentPath, name := splitManifestPath(row.Path)
		parent, ok := clusters[parentPath]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("parent %q not yet created for %q", parentPath, row.Path))
			continue
		}

		switch row.Kind {
		case "dir":
			cluster, err := shell.AddDirectory(parent, name)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("add_directory %q: %w", row.Path, err))
				continue
			}
			clusters[row.Path] = cluster
		case "file":
			cluster, err := shell.MapFileWithName(parent, row.HostPath, name)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("map_file %q: %w", row.Path, err))
				continue
			}
			clusters[row.Path] = cluster
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown manifest kind %q for %q", row.Kind, row.Path))
		}
	}

	if errs.ErrorOrNil() != nil {
		return errs
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output image: %w", err)
	}
	defer out.Close()

	sectorSize := shell.BytesPerSector()
	buf := make([]byte, sectorSize)
	for sector := uint64(0); sector < shell.VolumeLength(); sector++ {
		if err := shell.ReadSector(sector, buf); err != nil {
			return fmt.Errorf("read_sector %d: %w", sector, err)
		}
		if _, err := out.Write(buf); err != nil {
			return fmt.Errorf("writing image: %w", err)
		}
	}

	stat := shell.Stat()
	fmt.Printf(
		"wrote %s (%s, %d clusters of %s, root at cluster %d)\n",
		outputPath,
		humanize.Bytes(stat.VolumeSize),
		stat.ClusterCount,
		humanize.Bytes(uint64(stat.BytesPerCluster)),
		stat.RootDirCluster,
	)
	return nil
}

func splitManifestPath(path string) (parent, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
