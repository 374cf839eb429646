package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/v2"
)

const fileURIPrefix = "file://"

// FileResolver returns a koanf.Provider that replaces every "file://<path>"
// string value already loaded into k with the trimmed contents of the file.
// Load it last so secrets from any source are resolved.
func FileResolver(k *koanf.Koanf) koanf.Provider {
	return fileResolver{k: k}
}

type fileResolver struct {
	k *koanf.Koanf
}

func (r fileResolver) Read() (map[string]any, error) {
	out := make(map[string]any)
	for key, val := range r.k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, fileURIPrefix) {
			continue
		}
		path := strings.TrimPrefix(s, fileURIPrefix)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: read file %s: %w", key, path, err)
		}
		out[key] = strings.TrimSpace(string(data))
	}
	return maps.Unflatten(out, delim), nil
}

func (r fileResolver) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: file resolver does not support ReadBytes")
}
