// Package driver holds the built-in PWG raster drivers and the callback that
// binds one of them to a new printer.
package driver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	goipp "github.com/OpenPrinting/goipp"
)

// ErrUnknownDriver is returned for a driver name the callback cannot bind.
var ErrUnknownDriver = errors.New("unknown driver")

// Data is the capability set a driver negotiates for a printer.
type Data struct {
	// Format is the driver's native document format. Empty or
	// application/octet-stream means the driver takes raw data only.
	Format       string
	MakeAndModel string
	Resolutions  []goipp.Resolution
	ColorModes   []string
	Media        []string
	RasterTypes  []string
}

// Callback binds a driver to a device. The returned attributes are optional
// extras advertised next to the printer's own capabilities.
type Callback func(driverName, deviceURI string) (Data, goipp.Attributes, error)

// Info describes one built-in driver.
type Info struct {
	Name        string
	Description string
}

var pwgDrivers = []Info{
	{Name: "pwg_2inch-203dpi-black_1", Description: "PWG 2inch Label 203DPI Black"},
	{Name: "pwg_2inch-300dpi-black_1", Description: "PWG 2inch Label 300DPI Black"},
	{Name: "pwg_4inch-203dpi-black_1", Description: "PWG 4inch Label 203DPI Black"},
	{Name: "pwg_4inch-300dpi-black_1", Description: "PWG 4inch Label 300DPI Black"},
	{Name: "pwg_common-300dpi-black_1", Description: "PWG Office 300DPI Black"},
	{Name: "pwg_common-300dpi-sgray_8", Description: "PWG Office 300DPI sGray 8-bit"},
	{Name: "pwg_common-300dpi-srgb_8", Description: "PWG Office 300DPI sRGB 8-bit"},
	{Name: "pwg_common-300dpi-600dpi-black_1", Description: "PWG Office 300DPI 600DPI Black"},
	{Name: "pwg_common-300dpi-600dpi-sgray_8", Description: "PWG Office 300DPI 600DPI sGray 8-bit"},
	{Name: "pwg_common-300dpi-600dpi-srgb_8", Description: "PWG Office 300DPI 600DPI sRGB 8-bit"},
}

// Drivers lists the built-in drivers sorted by name.
func Drivers() []Info {
	out := append([]Info(nil), pwgDrivers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the built-in driver with the given name.
func Lookup(name string) (Info, bool) {
	for _, d := range pwgDrivers {
		if d.Name == name {
			return d, true
		}
	}
	return Info{}, false
}

// PWG binds the built-in PWG drivers. Names follow
// "pwg_<media>-<dpi>dpi[-<dpi>dpi]-<type>_<bits>".
func PWG(driverName, deviceURI string) (Data, goipp.Attributes, error) {
	info, ok := Lookup(driverName)
	if !ok {
		return Data{}, nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driverName)
	}
	parts := strings.Split(strings.TrimPrefix(info.Name, "pwg_"), "-")
	if len(parts) < 3 {
		return Data{}, nil, fmt.Errorf("%w: malformed name %s", ErrUnknownDriver, driverName)
	}
	mediaClass := parts[0]
	rasterType := parts[len(parts)-1]

	data := Data{
		Format:       "image/pwg-raster",
		MakeAndModel: info.Description,
		RasterTypes:  []string{rasterType},
	}
	for _, p := range parts[1 : len(parts)-1] {
		var dpi int
		if _, err := fmt.Sscanf(p, "%ddpi", &dpi); err == nil && dpi > 0 {
			data.Resolutions = append(data.Resolutions, goipp.Resolution{Xres: dpi, Yres: dpi, Units: goipp.UnitsDpi})
		}
	}
	switch {
	case strings.HasPrefix(rasterType, "srgb"):
		data.ColorModes = []string{"auto", "color", "monochrome"}
	case strings.HasPrefix(rasterType, "sgray"):
		data.ColorModes = []string{"auto", "monochrome"}
	default:
		data.ColorModes = []string{"bi-level", "monochrome"}
	}
	switch mediaClass {
	case "2inch":
		data.Media = []string{"oe_2x1-label_2x1in", "oe_2x2-label_2x2in"}
	case "4inch":
		data.Media = []string{"na_index-4x6_4x6in", "oe_4x4-label_4x4in"}
	default:
		data.Media = []string{"iso_a4_210x297mm", "na_letter_8.5x11in"}
	}

	extra := goipp.Attributes{}
	extra.Add(goipp.MakeAttribute("printer-make-and-model", goipp.TagText, goipp.String(data.MakeAndModel)))
	extra.Add(makeKeywords("media-supported", data.Media))
	extra.Add(goipp.MakeAttribute("media-default", goipp.TagKeyword, goipp.String(data.Media[0])))
	extra.Add(makeKeywords("pwg-raster-document-type-supported", data.RasterTypes))
	if len(data.Resolutions) > 0 {
		vals := make([]goipp.Value, 0, len(data.Resolutions))
		for _, r := range data.Resolutions {
			vals = append(vals, r)
		}
		extra.Add(goipp.MakeAttr("pwg-raster-document-resolution-supported", goipp.TagResolution, vals[0], vals[1:]...))
	}
	if strings.TrimSpace(deviceURI) != "" {
		extra.Add(goipp.MakeAttribute("printer-device-id", goipp.TagText, goipp.String("MFG:PWG;MDL:"+info.Description+";")))
	}
	return data, extra, nil
}

func makeKeywords(name string, values []string) goipp.Attribute {
	vals := make([]goipp.Value, 0, len(values))
	for _, v := range values {
		vals = append(vals, goipp.String(v))
	}
	if len(vals) == 0 {
		vals = append(vals, goipp.String("none"))
	}
	return goipp.MakeAttr(name, goipp.TagKeyword, vals[0], vals[1:]...)
}
