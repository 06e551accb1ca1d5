package errors

import (
	"path/filepath"
	"strings"
	"unicode"
)

// SupportedOrders lists the plane orders for which the card construction is
// valid. Every entry is prime, so the affine plane over Z_n exists.
var SupportedOrders = []int{2, 3, 5, 7, 11}

// ValidateOrder rejects any order outside [SupportedOrders].
// Callers must not round or clamp n to a supported value instead.
func ValidateOrder(n int) error {
	for _, o := range SupportedOrders {
		if n == o {
			return nil
		}
	}
	return New(ErrCodeInvalidOrder, "order %d is not supported (must be one of 2, 3, 5, 7, 11)", n)
}

// ValidateImageFilename validates an uploaded image filename for safety.
// It ensures the filename is a simple basename without path components.
func ValidateImageFilename(filename string) error {
	if filename == "" {
		return New(ErrCodeInvalidInput, "image filename cannot be empty")
	}

	if len(filename) > 256 {
		return New(ErrCodeInvalidInput, "image filename too long (max 256 characters)")
	}

	for _, r := range filename {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "image filename contains invalid control characters")
		}
	}

	// Must be a simple filename, not a path
	if strings.ContainsAny(filename, "/\\") || filename == ".." {
		return New(ErrCodeInvalidInput, "image filename cannot contain path separators")
	}

	if strings.HasPrefix(filename, ".") {
		return New(ErrCodeInvalidInput, "image filename cannot be a hidden file")
	}

	return nil
}

// imageExtensions is the set of file extensions the image provider can decode.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether name has an extension the image provider decodes.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}
