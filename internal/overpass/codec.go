package overpass

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/osm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	osm.CustomJSONMarshaler = json
	osm.CustomJSONUnmarshaler = json
}

// decode parses an Overpass JSON body into an OSM document.
func decode(body []byte) (*osm.OSM, error) {
	doc := &osm.OSM{}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, &DataSourceError{Err: err}
	}
	return doc, nil
}
