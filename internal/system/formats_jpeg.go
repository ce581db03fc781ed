//go:build !nojpeg

package system

import _ "image/jpeg"

func init() {
	buildImageFormats = append(buildImageFormats, "image/jpeg")
}
