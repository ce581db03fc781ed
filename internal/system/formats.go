package system

// buildImageFormats is filled by the build-tagged formats_*.go files in
// file name order, which puts JPEG ahead of PNG.
var buildImageFormats []string

// imageFormats lists the image document formats compiled into this build.
func imageFormats() []string {
	return append([]string(nil), buildImageFormats...)
}
