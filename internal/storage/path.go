package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var (
	exportIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,63}$`)
	extensionPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)
	exportKeyPattern = regexp.MustCompile(`^exports/date=\d{4}-\d{2}-\d{2}/[a-zA-Z0-9][a-zA-Z0-9-]{0,63}\.[a-z0-9]{1,16}$`)
)

// BuildExportPath lays archived exports out by UTC day: exports/date=YYYY-MM-DD/<id>.<extension>.
func BuildExportPath(id, extension string, createdAt time.Time) (string, error) {
	if !exportIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid export id: %q", id)
	}
	extension = strings.ToLower(strings.TrimPrefix(extension, "."))
	if !extensionPattern.MatchString(extension) {
		return "", fmt.Errorf("invalid export extension: %q", extension)
	}

	ts := createdAt.UTC()
	return path.Join(
		"exports",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		id+"."+extension,
	), nil
}

// ValidateExportPath reports whether key has the shape produced by BuildExportPath.
func ValidateExportPath(key string) error {
	if !exportKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid export key: %q", key)
	}
	return nil
}
