package sysmem

// tagMapping is the hook for naming a mapping with its diagnostic tag. It
// is a no-op on every platform: mappings are not named (for example via
// PR_SET_VMA_ANON_NAME on Linux), and nothing in this module depends on
// them having a name.
func tagMapping(b []byte, tag string) {
	_ = b
	_ = tag
}
