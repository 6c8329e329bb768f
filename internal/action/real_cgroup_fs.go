package action

import "os"

// OSCgroupFS is the real CgroupFS backed by the host filesystem.
type OSCgroupFS struct{}

func (OSCgroupFS) WriteFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func (OSCgroupFS) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
