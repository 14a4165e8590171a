package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveOutputPath produces a collision-free destination for inputPath in
// outputDir (or the input's own directory when outputDir is "") with the
// container extension ext (including the dot).
//
// This must be called exactly once per job, before the encoder process is
// spawned, and the result cached. Re-resolving after the encoder has begun
// writing would see the file it is creating and spuriously advance the
// collision counter, so the reported output would name the wrong file.
func ResolveOutputPath(inputPath, outputDir, ext string) (string, error) {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &PathError{Dir: dir, Err: err}
	}

	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	candidate := filepath.Join(dir, stem+ext)
	// Never write over the input itself (same dir, same extension).
	if samePath(candidate, inputPath) {
		stem += "_encoded"
		candidate = filepath.Join(dir, stem+ext)
	}

	if !exists(candidate) {
		return candidate, nil
	}
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%03d%s", stem, n, ext))
		if !exists(candidate) {
			return candidate, nil
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func samePath(a, b string) bool {
	ca, err1 := filepath.Abs(a)
	cb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return ca == cb
}
