package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/andresuchdata/customer-health/backend-go/internal/config"
	"github.com/andresuchdata/customer-health/backend-go/internal/storage"
	"github.com/urfave/cli/v2"
)

const defaultReportPrefix = "health-reports/"

func reportsCommand() *cli.Command {
	prefixFlag := &cli.StringFlag{Name: "prefix", Value: defaultReportPrefix, Usage: "Object key prefix of the uploaded reports"}

	return &cli.Command{
		Name:  "reports",
		Usage: "Browse recompute reports in object storage",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List uploaded reports",
				Flags: []cli.Flag{prefixFlag},
				Action: func(c *cli.Context) error {
					client, err := storage.NewMinioClient(config.Load().Storage)
					if err != nil {
						return err
					}
					return listReports(c, client)
				},
			},
			{
				Name:  "download",
				Usage: "Download one report, or every CSV under the prefix",
				Flags: []cli.Flag{
					prefixFlag,
					&cli.StringFlag{Name: "key", Usage: "Report key, absolute or relative to --prefix"},
					&cli.StringFlag{Name: "dest", Value: "data/reports/downloaded", Usage: "Local directory"},
				},
				Action: func(c *cli.Context) error {
					client, err := storage.NewMinioClient(config.Load().Storage)
					if err != nil {
						return err
					}
					return downloadReports(c, client)
				},
			},
		},
	}
}

func listReports(c *cli.Context, client storage.ObjectStorage) error {
	objects, err := client.ListObjects(c.Context, strings.TrimSpace(c.String("prefix")))
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
	for _, obj := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func downloadReports(c *cli.Context, client storage.ObjectStorage) error {
	prefix := c.String("prefix")
	destDir := c.String("dest")

	var keys []string
	if key := c.String("key"); key != "" {
		keys = []string{resolveObjectKey(prefix, key)}
	} else {
		objects, err := client.ListObjects(c.Context, strings.TrimSpace(prefix))
		if err != nil {
			return fmt.Errorf("failed to list reports for prefix %s: %w", prefix, err)
		}
		for _, obj := range objects {
			if strings.HasSuffix(strings.ToLower(obj.Key), ".csv") {
				keys = append(keys, obj.Key)
			}
		}
	}

	if len(keys) == 0 {
		return fmt.Errorf("no CSV reports found for prefix %s", prefix)
	}

	for _, key := range keys {
		localPath := filepath.Join(destDir, objectRelativePath(prefix, key))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("failed to prepare directory for %s: %w", localPath, err)
		}
		if err := client.DownloadObject(c.Context, key, localPath); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, localPath)
	}
	return nil
}

func resolveObjectKey(prefix, key string) string {
	if key == "" {
		return strings.TrimSpace(prefix)
	}
	if prefix == "" {
		return strings.TrimPrefix(key, "/")
	}

	prefixTrimmed := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	keyTrimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")

	if strings.HasPrefix(keyTrimmed, prefixTrimmed+"/") {
		return keyTrimmed
	}
	return prefixTrimmed + "/" + keyTrimmed
}

func objectRelativePath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	prefixTrimmed := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	rel := strings.TrimPrefix(key, prefixTrimmed+"/")
	if rel == "" {
		return filepath.Base(key)
	}
	return rel
}
