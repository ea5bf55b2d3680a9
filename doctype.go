package geostream

import "strings"

// DocType identifies a format. Two DocTypes are equal when name and both
// flags match, so a DocType can be used as a map key.
type DocType struct {
	Name string
	// ZipStream marks formats read from and written to a zip archive.
	ZipStream bool
	// ZipEntry marks formats whose data lives in a single archive entry.
	ZipEntry bool
}

func (d DocType) String() string {
	if d.ZipStream {
		return d.Name + "+zip"
	}
	return d.Name
}

// Built-in document types.
var (
	DocWKT        = DocType{Name: "WKT"}
	DocCSV        = DocType{Name: "CSV"}
	DocCSVZip     = DocType{Name: "CSV", ZipStream: true, ZipEntry: true}
	DocDBF        = DocType{Name: "DBF"}
	DocDBFZip     = DocType{Name: "DBF", ZipStream: true, ZipEntry: true}
	DocFlatGeobuf = DocType{Name: "FlatGeobuf"}
	DocGeoJSON    = DocType{Name: "GeoJSON"}
)

// Known external formats. They are never registered by this module; an
// extension may register codecs for them.
var (
	DocKML       = DocType{Name: "KML"}
	DocKMZ       = DocType{Name: "KML", ZipStream: true}
	DocShapefile = DocType{Name: "Shapefile"}
	DocFileGDB   = DocType{Name: "FileGDB"}
)

// ParseDocType resolves names like "csv", "CSV+zip" or "fgb" among known
// types. The boolean is false for unknown names.
func ParseDocType(name string) (DocType, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	zipped := false
	if base, ok := strings.CutSuffix(n, "+zip"); ok {
		n, zipped = base, true
	} else if base, ok := strings.CutSuffix(n, ".zip"); ok {
		n, zipped = base, true
	}
	var t DocType
	switch n {
	case "wkt":
		t = DocWKT
	case "csv":
		t = DocCSV
	case "dbf":
		t = DocDBF
	case "fgb", "flatgeobuf":
		t = DocFlatGeobuf
	case "geojson", "json":
		t = DocGeoJSON
	case "kml":
		t = DocKML
	case "kmz":
		return DocKMZ, !zipped
	case "shp", "shapefile":
		t = DocShapefile
	case "gdb", "filegdb":
		t = DocFileGDB
	default:
		return DocType{}, false
	}
	if zipped {
		if t == DocKML {
			return DocKMZ, true
		}
		t.ZipStream, t.ZipEntry = true, true
	}
	return t, true
}
