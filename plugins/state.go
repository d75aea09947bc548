package plugins

// ParamValue is one saved parameter value.
type ParamValue struct {
	Index  int     `json:"index" yaml:"index" xml:"Index"`
	Name   string  `json:"name,omitempty" yaml:"name,omitempty" xml:"Name,omitempty"`
	Symbol string  `json:"symbol,omitempty" yaml:"symbol,omitempty" xml:"Symbol,omitempty"`
	Value  float32 `json:"value" yaml:"value" xml:"Value"`
}

// CustomData is an opaque typed key/value pair owned by the plugin.
type CustomData struct {
	Type  string `json:"type" yaml:"type" xml:"Type"`
	Key   string `json:"key" yaml:"key" xml:"Key"`
	Value string `json:"value" yaml:"value" xml:"Value"`
}

// CustomDataString is the custom data type for plain strings.
const CustomDataString = "urn:plughost:custom-data:string"

// StateSave is the persisted state of one plugin instance.
type StateSave struct {
	Type       string       `json:"type" yaml:"type" xml:"Info>Type"`
	BinaryType string       `json:"binaryType,omitempty" yaml:"binary_type,omitempty" xml:"Info>BinaryType,omitempty"`
	Name       string       `json:"name" yaml:"name" xml:"Info>Name"`
	Label      string       `json:"label,omitempty" yaml:"label,omitempty" xml:"Info>Label,omitempty"`
	Binary     string       `json:"binary,omitempty" yaml:"binary,omitempty" xml:"Info>Binary,omitempty"`
	UniqueID   int64        `json:"uniqueId,omitempty" yaml:"unique_id,omitempty" xml:"Info>UniqueID,omitempty"`
	Active     bool         `json:"active" yaml:"active" xml:"Data>Active"`
	DryWet     float32      `json:"dryWet" yaml:"dry_wet" xml:"Data>DryWet"`
	Volume     float32      `json:"volume" yaml:"volume" xml:"Data>Volume"`
	Parameters []ParamValue `json:"parameters,omitempty" yaml:"parameters,omitempty" xml:"Data>Parameter"`
	CustomData []CustomData `json:"customData,omitempty" yaml:"custom_data,omitempty" xml:"Data>CustomData"`
	Chunk      string       `json:"chunk,omitempty" yaml:"chunk,omitempty" xml:"Data>Chunk,omitempty"`
}

// PluginType returns the parsed format of the saved state.
func (s StateSave) PluginType() PluginType {
	return TypeFromString(s.Type)
}

// CustomValue returns the value stored under key, if any.
func (s StateSave) CustomValue(key string) (string, bool) {
	for _, cd := range s.CustomData {
		if cd.Key == key {
			return cd.Value, true
		}
	}
	return "", false
}
