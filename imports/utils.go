package imports

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Export kinds recognized in a project directory.
const (
	IntrinsicsExport = "intrinsics"
	ExtrinsicsExport = "extrinsics"
	TracksExport     = "tracks"
)

var ACCEPTABLE_EXPORT_EXT = map[string]string{
	".xml": IntrinsicsExport,
	".txt": ExtrinsicsExport,
	".tsv": ExtrinsicsExport,
	".csv": TracksExport,
}

// Exports lists the export files found in a project directory.
type Exports struct {
	Intrinsics string
	Extrinsics string
	Tracks     string
}

// FindExports looks for exactly one file of each export kind directly under dir. Paths
// already set in override take precedence over what is found.
func FindExports(dir string, override Exports) (Exports, error) {
	found := override
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Exports{}, err
	}

	for _, v := range entries {
		if v.IsDir() {
			continue
		}
		kind, ok := ACCEPTABLE_EXPORT_EXT[strings.ToLower(filepath.Ext(v.Name()))]
		if !ok {
			continue
		}
		path := filepath.Join(dir, v.Name())
		var slot *string
		var overridden bool
		switch kind {
		case IntrinsicsExport:
			slot, overridden = &found.Intrinsics, override.Intrinsics != ""
		case ExtrinsicsExport:
			slot, overridden = &found.Extrinsics, override.Extrinsics != ""
		case TracksExport:
			slot, overridden = &found.Tracks, override.Tracks != ""
		}
		if overridden {
			continue
		}
		if *slot != "" {
			return Exports{}, pkgerrors.Errorf("%s: both %s and %s look like %s", dir, filepath.Base(*slot), v.Name(), kind)
		}
		*slot = path
	}

	for kind, path := range map[string]string{
		IntrinsicsExport: found.Intrinsics,
		ExtrinsicsExport: found.Extrinsics,
		TracksExport:     found.Tracks,
	} {
		if path == "" {
			return Exports{}, pkgerrors.Errorf("%s: no %s export", dir, kind)
		}
		ok, err := exists(path)
		if err != nil {
			return Exports{}, err
		}
		if !ok {
			return Exports{}, pkgerrors.Errorf("%s export %s does not exist", kind, path)
		}
	}
	return found, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
