package cache

// GenerateKey joins prefix and id as "prefix:id".
func GenerateKey(prefix string, id string) string {
	return prefix + ":" + id
}

// BuildPattern matches every key under prefix.
func BuildPattern(prefix string) string {
	return prefix + ":*"
}
