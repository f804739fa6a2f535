package jobs

import (
	"bytes"
	"io"
	"os"
)

const tailChunk = 4096

// tailLines returns up to n trailing lines of path, reading backwards from
// the end so large logs are never loaded whole.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var (
		buf    []byte
		offset = info.Size()
	)
	for offset > 0 && bytes.Count(bytes.TrimRight(buf, "\n"), []byte{'\n'}) < n {
		size := int64(tailChunk)
		if offset < size {
			size = offset
		}
		offset -= size

		chunk := make([]byte, size)
		if _, err := f.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(chunk, buf...)
	}

	buf = bytes.TrimRight(buf, "\n")
	if len(buf) == 0 {
		return []string{}, nil
	}
	lines := bytes.Split(buf, []byte{'\n'})
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out, nil
}
