package documents

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docstore-backend/internal/shared/util"
)

// DefaultCategory groups uploads that did not declare one.
const DefaultCategory = "general"

const maxCategoryLength = 64

// StoragePath builds the object key for an upload. The date segment comes
// from the upload time in UTC, so two uploads of the same name on different
// days never collide.
func StoragePath(userID, category, fileName string, at time.Time) string {
	return fmt.Sprintf("documents/%s/%s/%s/%s", userID, category, at.UTC().Format("2006-01-02"), fileName)
}

// NormalizeCategory validates the category tag and substitutes the default
// for an empty one. Categories become a path segment, so the same traversal
// rules as file names apply.
func NormalizeCategory(category string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return DefaultCategory, nil
	}
	if utf8.RuneCountInString(category) > maxCategoryLength {
		return "", &ValidationError{Field: "category", Reason: fmt.Sprintf("longer than %d characters", maxCategoryLength)}
	}
	if strings.ContainsAny(category, "/\\") || strings.Contains(category, "..") {
		return "", &ValidationError{Field: "category", Reason: "must not contain path separators"}
	}
	return category, nil
}

// NormalizeFileName applies the shared file name rules and reports failures
// as validation errors.
func NormalizeFileName(fileName string) (string, error) {
	cleaned, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", &ValidationError{Field: "fileName", Reason: err.Error()}
	}
	if err := util.ValidateFileName(cleaned); err != nil {
		return "", &ValidationError{Field: "fileName", Reason: err.Error()}
	}
	return cleaned, nil
}
