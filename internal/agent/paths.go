package agent

import (
	"io/fs"
	"os"
	"path/filepath"

	"batch-agent/pkg/types"
)

// ListPath partitions the children of dir into directories and files. Entries
// are reported as dir joined with the entry name, in directory order. With
// recursive set the whole tree below dir is listed.
func ListPath(dir string, recursive bool) (types.PathListing, error) {
	listing := types.PathListing{Dirs: []string{}, Files: []string{}}

	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == dir {
				return nil
			}
			listing.Add(path, isDir(path, d))
			return nil
		})
		return listing, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return listing, err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		listing.Add(path, isDir(path, e))
	}
	return listing, nil
}

// isDir follows symbolic links so a link to a directory lists as a directory.
func isDir(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.IsDir()
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
