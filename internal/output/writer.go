package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

// Dataset file names written under DIR/<package>/.
const (
	DownloadsFile = "downloads.json"
	VersionsFile  = "versions.json"
	CommitsFile   = "commits.json"
	IssuesFile    = "issues.json"
	SummaryFile   = "summary.json"
	IndexFile     = "index.json"
)

type downloadsDocument struct {
	Package   string               `json:"package"`
	Today     time.Time            `json:"today"`
	Downloads []core.DownloadPoint `json:"downloads"`
	Rollups7  []core.Rollup        `json:"rollups_7"`
	Rollups28 []core.Rollup        `json:"rollups_28"`
}

type issuesDocument struct {
	Issues       []core.IssueInfo `json:"issues"`
	PullRequests []core.IssueInfo `json:"pull_requests"`
}

type indexDocument struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Packages    []*core.Dataset `json:"packages"`
}

// Writer persists datasets as JSON files under Dir.
type Writer struct {
	Dir    string
	Indent bool
}

// PackageDir returns the directory holding a package's files. Scoped names
// such as @d3/plot become nested directories.
func (w *Writer) PackageDir(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" || strings.Contains(clean, "..") || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("invalid package name %q", name)
	}
	return filepath.Join(w.Dir, filepath.FromSlash(clean)), nil
}

// WriteDataset writes every file for one dataset, replacing earlier runs.
func (w *Writer) WriteDataset(ds *core.Dataset) error {
	if ds == nil {
		return fmt.Errorf("nil dataset")
	}
	dir, err := w.PackageDir(ds.Package.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	files := map[string]any{
		DownloadsFile: downloadsDocument{
			Package:   ds.Package.Name,
			Today:     ds.Provenance.Today,
			Downloads: nonNil(ds.Downloads),
			Rollups7:  nonNil(ds.Rollups7),
			Rollups28: nonNil(ds.Rollups28),
		},
		VersionsFile: nonNil(ds.Versions),
		CommitsFile:  nonNil(ds.Commits),
		IssuesFile: issuesDocument{
			Issues:       nonNil(ds.Issues),
			PullRequests: nonNil(ds.PullRequests),
		},
		SummaryFile: ds,
	}
	for name, doc := range files {
		if err := w.writeJSON(filepath.Join(dir, name), doc); err != nil {
			return fmt.Errorf("write %s for %s: %w", name, ds.Package.Name, err)
		}
	}
	return nil
}

// WriteIndex writes DIR/index.json listing every dataset summary.
func (w *Writer) WriteIndex(datasets []*core.Dataset, generatedAt time.Time) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	doc := indexDocument{GeneratedAt: generatedAt.UTC(), Packages: nonNil(datasets)}
	return w.writeJSON(filepath.Join(w.Dir, IndexFile), doc)
}

func (w *Writer) writeJSON(path string, v any) error {
	data, err := marshal(v, w.Indent)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
