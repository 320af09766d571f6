package taskmanager

import (
	"fmt"
	"path"
	"strings"
)

// OutputLFNs builds the expected output logical file names of a task:
//
//	<path>/<transID %08d>/<taskID/1000 %03d>/<stem>_<transID>_<taskID><ext>
//
// Tasks are grouped a thousand per directory.
func OutputLFNs(transID, taskID int64, outputs []OutputSpec) ([]string, error) {
	lfns := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if !strings.HasPrefix(out.Path, "/") {
			return nil, fmt.Errorf("output path %q is not absolute", out.Path)
		}
		for _, seg := range strings.Split(out.Path, "/") {
			if seg == ".." {
				return nil, fmt.Errorf("output path %q escapes its base", out.Path)
			}
		}
		name := strings.TrimSpace(out.Filename)
		if name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("invalid output file name %q", out.Filename)
		}
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		if stem == "" {
			return nil, fmt.Errorf("invalid output file name %q", out.Filename)
		}

		lfns = append(lfns, path.Join(
			out.Path,
			fmt.Sprintf("%08d", transID),
			fmt.Sprintf("%03d", taskID/1000),
			fmt.Sprintf("%s_%d_%d%s", stem, transID, taskID, ext),
		))
	}
	return lfns, nil
}
