package adapter

import (
	"fmt"
	"os"
	"strings"
)

// ResolveCredential turns a credential reference into its secret.
// "env:NAME" reads an environment variable, "file:PATH" reads a file,
// anything else is used literally.
func ResolveCredential(ref string) (string, error) {
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("credential environment variable %s is not set", name)
		}
		return v, nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		b, err := os.ReadFile(path) //nolint:gosec // path comes from the source declaration
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return ref, nil
}
