package system

import (
	"math"
	"strings"

	goipp "github.com/OpenPrinting/goipp"
)

const (
	formatOctetStream = "application/octet-stream"
	formatPWGRaster   = "image/pwg-raster"
	formatURF         = "image/urf"
)

// IPP enum values used by the catalog.
const (
	orientPortrait         = 3
	orientLandscape        = 4
	orientReverseLandscape = 5
	orientReversePortrait  = 6
	orientNone             = 7

	qualityDraft  = 3
	qualityNormal = 4
	qualityHigh   = 5
)

var (
	charsetSupported     = []string{"us-ascii", "utf-8"}
	compressionSupported = []string{"deflate", "gzip", "none"}
	identifyActions      = []string{"display", "sound"}
	ippFeatures          = []string{"ipp-everywhere"}
	ippVersions          = []string{"1.1", "2.0"}

	jobCreationAttributes = []string{
		"copies",
		"document-format",
		"document-name",
		"ipp-attribute-fidelity",
		"job-name",
		"job-priority",
		"media",
		"media-col",
		"multiple-document-handling",
		"orientation-requested",
		"print-color-mode",
		"print-content-optimize",
		"print-darkness",
		"print-quality",
		"print-speed",
		"printer-resolution",
	}

	mediaColSupported = []string{
		"media-bottom-margin",
		"media-left-margin",
		"media-right-margin",
		"media-size",
		"media-size-name",
		"media-source",
		"media-top-margin",
		"media-top-offset",
		"media-tracking",
		"media-type",
	}

	multipleDocumentHandling = []string{
		"separate-documents-uncollated-copies",
		"separate-documents-collated-copies",
	}

	operationsSupported = []goipp.Op{
		goipp.OpPrintJob,
		goipp.OpValidateJob,
		goipp.OpCreateJob,
		goipp.OpSendDocument,
		goipp.OpCancelJob,
		goipp.OpGetJobAttributes,
		goipp.OpGetJobs,
		goipp.OpGetPrinterAttributes,
		goipp.OpSetPrinterAttributes,
		goipp.OpCancelMyJobs,
		goipp.OpCloseJob,
		goipp.OpIdentifyPrinter,
	}

	orientationRequested = []int{
		orientPortrait,
		orientLandscape,
		orientReverseLandscape,
		orientReversePortrait,
		orientNone,
	}

	printColorModes       = []string{"bi-level", "monochrome"}
	printContentOptimize  = []string{"auto", "graphic", "photo", "text-and-graphic", "text"}
	printQualitySupported = []int{qualityDraft, qualityNormal, qualityHigh}
	printerKind           = []string{"labels", "receipt"}

	printerSettableAttributes = []string{
		"copies-default",
		"document-format-default",
		"label-mode-configured",
		"label-tear-off-configured",
		"media-col-default",
		"media-col-ready",
		"media-default",
		"media-ready",
		"multiple-document-handling-default",
		"orientation-requested-default",
		"print-color-mode-default",
		"print-content-optimize-default",
		"print-darkness-default",
		"print-quality-default",
		"print-speed-default",
		"printer-darkness-configured",
		"printer-geo-location",
		"printer-location",
		"printer-organization",
		"printer-organizational-unit",
		"printer-resolution-default",
	}

	printerStringsLanguages = []string{"de", "en", "es", "fr", "it"}
	uriAuthentication       = []string{"none", "basic"}
	uriSecurity             = []string{"none", "tls"}
	whichJobs               = []string{"completed", "not-completed", "all"}
)

// capabilityInput is everything assembleCapabilities depends on besides the
// static catalog.
type capabilityInput struct {
	name    string
	uuid    string
	formats []string
	kOctets int
}

// assembleCapabilities builds the printer's capability attributes. It is
// pure and runs before the printer is reachable, so it takes no locks.
func assembleCapabilities(in capabilityInput) goipp.Attributes {
	attrs := goipp.Attributes{}

	attrs.Add(goipp.MakeAttribute("charset-configured", goipp.TagCharset, goipp.String("utf-8")))
	attrs.Add(makeStringsAttr("charset-supported", goipp.TagCharset, charsetSupported))
	attrs.Add(makeStringsAttr("compression-supported", goipp.TagKeyword, compressionSupported))
	attrs.Add(goipp.MakeAttribute("copies-default", goipp.TagInteger, goipp.Integer(1)))
	attrs.Add(goipp.MakeAttribute("copies-supported", goipp.TagRange, goipp.Range{Lower: 1, Upper: 999}))
	attrs.Add(goipp.MakeAttribute("document-format-default", goipp.TagMimeType, goipp.String(formatOctetStream)))
	attrs.Add(makeStringsAttr("document-format-supported", goipp.TagMimeType, in.formats))
	attrs.Add(goipp.MakeAttribute("generated-natural-language-supported", goipp.TagLanguage, goipp.String("en")))
	attrs.Add(goipp.MakeAttribute("identify-actions-default", goipp.TagKeyword, goipp.String("sound")))
	attrs.Add(makeStringsAttr("identify-actions-supported", goipp.TagKeyword, identifyActions))
	attrs.Add(makeStringsAttr("ipp-features-supported", goipp.TagKeyword, ippFeatures))
	attrs.Add(makeStringsAttr("ipp-versions-supported", goipp.TagKeyword, ippVersions))
	attrs.Add(makeStringsAttr("job-creation-attributes-supported", goipp.TagKeyword, jobCreationAttributes))
	attrs.Add(goipp.MakeAttribute("job-ids-supported", goipp.TagBoolean, goipp.Boolean(true)))
	attrs.Add(goipp.MakeAttribute("job-k-octets-supported", goipp.TagRange, goipp.Range{Lower: 0, Upper: in.kOctets}))
	attrs.Add(goipp.MakeAttribute("job-priority-default", goipp.TagInteger, goipp.Integer(50)))
	attrs.Add(goipp.MakeAttribute("job-priority-supported", goipp.TagInteger, goipp.Integer(1)))
	attrs.Add(goipp.MakeAttribute("job-sheets-default", goipp.TagName, goipp.String("none")))
	attrs.Add(goipp.MakeAttribute("job-sheets-supported", goipp.TagName, goipp.String("none")))
	attrs.Add(makeStringsAttr("media-col-supported", goipp.TagKeyword, mediaColSupported))
	attrs.Add(makeStringsAttr("multiple-document-handling-supported", goipp.TagKeyword, multipleDocumentHandling))
	attrs.Add(goipp.MakeAttribute("multiple-document-jobs-supported", goipp.TagBoolean, goipp.Boolean(false)))
	attrs.Add(goipp.MakeAttribute("multiple-operation-time-out", goipp.TagInteger, goipp.Integer(60)))
	attrs.Add(goipp.MakeAttribute("multiple-operation-time-out-action", goipp.TagKeyword, goipp.String("abort-job")))
	attrs.Add(goipp.MakeAttribute("natural-language-configured", goipp.TagLanguage, goipp.String("en")))
	attrs.Add(makeOpsAttr("operations-supported", operationsSupported))
	attrs.Add(goipp.MakeAttribute("orientation-requested-default", goipp.TagEnum, goipp.Integer(orientNone)))
	attrs.Add(makeEnumsAttr("orientation-requested-supported", orientationRequested))
	attrs.Add(goipp.MakeAttribute("pdl-override-supported", goipp.TagKeyword, goipp.String("attempted")))
	attrs.Add(goipp.MakeAttribute("print-color-mode-default", goipp.TagKeyword, goipp.String("monochrome")))
	attrs.Add(makeStringsAttr("print-color-mode-supported", goipp.TagKeyword, printColorModes))
	attrs.Add(goipp.MakeAttribute("print-content-optimize-default", goipp.TagKeyword, goipp.String("auto")))
	attrs.Add(makeStringsAttr("print-content-optimize-supported", goipp.TagKeyword, printContentOptimize))
	attrs.Add(goipp.MakeAttribute("print-quality-default", goipp.TagEnum, goipp.Integer(qualityNormal)))
	attrs.Add(makeEnumsAttr("print-quality-supported", printQualitySupported))
	attrs.Add(goipp.MakeAttribute("printer-get-attributes-supported", goipp.TagKeyword, goipp.String("document-format")))
	attrs.Add(goipp.MakeAttribute("printer-info", goipp.TagText, goipp.String(in.name)))
	attrs.Add(makeStringsAttr("printer-kind", goipp.TagKeyword, printerKind))
	attrs.Add(goipp.MakeAttribute("printer-name", goipp.TagName, goipp.String(in.name)))
	attrs.Add(makeStringsAttr("printer-settable-attributes", goipp.TagKeyword, printerSettableAttributes))
	attrs.Add(makeStringsAttr("printer-strings-languages-supported", goipp.TagLanguage, printerStringsLanguages))
	attrs.Add(goipp.MakeAttribute("printer-uuid", goipp.TagURI, goipp.String(in.uuid)))
	attrs.Add(makeStringsAttr("uri-authentication-supported", goipp.TagKeyword, uriAuthentication))
	attrs.Add(makeStringsAttr("uri-security-supported", goipp.TagKeyword, uriSecurity))
	attrs.Add(makeStringsAttr("which-jobs-supported", goipp.TagKeyword, whichJobs))

	return attrs
}

// documentFormats lists what the printer accepts: raw data, the driver's
// native format when it differs, the image formats this build can decode,
// then the two raster interchange formats. Order is kept, duplicates dropped.
func documentFormats(native string, images []string) []string {
	candidates := []string{formatOctetStream}
	if native = strings.TrimSpace(native); native != "" && !strings.EqualFold(native, formatOctetStream) {
		candidates = append(candidates, native)
	}
	candidates = append(candidates, images...)
	candidates = append(candidates, formatPWGRaster, formatURF)

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, f := range candidates {
		key := strings.ToLower(strings.TrimSpace(f))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// kOctetsSupported converts the spool filesystem size to the upper bound of
// job-k-octets-supported. An unknown size, or one that does not fit a signed
// 32-bit value in kilobytes, is reported as the largest such value.
func kOctetsSupported(capacity SpoolCapacityFunc, dir string) int {
	if capacity == nil {
		return math.MaxInt32
	}
	size, err := capacity(dir)
	if err != nil {
		return math.MaxInt32
	}
	k := size / 1024
	if k > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(k)
}

func makeStringsAttr(name string, tag goipp.Tag, values []string) goipp.Attribute {
	vals := make([]goipp.Value, 0, len(values))
	for _, v := range values {
		vals = append(vals, goipp.String(v))
	}
	if len(vals) == 0 {
		return goipp.MakeAttribute(name, goipp.TagNoValue, goipp.Void{})
	}
	return goipp.MakeAttr(name, tag, vals[0], vals[1:]...)
}

func makeEnumsAttr(name string, values []int) goipp.Attribute {
	vals := make([]goipp.Value, 0, len(values))
	for _, v := range values {
		vals = append(vals, goipp.Integer(v))
	}
	if len(vals) == 0 {
		return goipp.MakeAttribute(name, goipp.TagNoValue, goipp.Void{})
	}
	return goipp.MakeAttr(name, goipp.TagEnum, vals[0], vals[1:]...)
}

func makeOpsAttr(name string, ops []goipp.Op) goipp.Attribute {
	values := make([]int, 0, len(ops))
	for _, op := range ops {
		values = append(values, int(op))
	}
	return makeEnumsAttr(name, values)
}
