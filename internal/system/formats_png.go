//go:build !nopng

package system

import _ "image/png"

func init() {
	buildImageFormats = append(buildImageFormats, "image/png")
}
