//go:build !protogen

package directory

// NewRemoteProvider requires generated directory protos; without the
// protogen tag it reports no remote provider and callers fall back to the
// static one.
func NewRemoteProvider(_ string) (Provider, error) {
	return nil, nil
}
