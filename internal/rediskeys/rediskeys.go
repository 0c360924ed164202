package rediskeys

const (
	DefaultPrefix = "autodrop"

	SnapshotSuffix = ":snapshot"
	SavedAtSuffix  = ":snapshot:saved_at"
)

func SnapshotKey(prefix string) string {
	return withPrefix(prefix) + SnapshotSuffix
}

func SavedAtKey(prefix string) string {
	return withPrefix(prefix) + SavedAtSuffix
}

func withPrefix(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}
