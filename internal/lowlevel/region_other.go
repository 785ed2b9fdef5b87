//go:build !linux

package lowlevel

func newRegion(size int) []byte {
	return make([]byte, size)
}
