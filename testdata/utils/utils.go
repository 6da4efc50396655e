package utils

// Ptr returns a pointer to v. Test helper.
func Ptr[T any](v T) *T {
	return &v
}
