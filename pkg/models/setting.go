package models

// Setting value types accepted by the settings store.
const (
	SettingTypeInt    = "int"
	SettingTypeFloat  = "float"
	SettingTypeBool   = "bool"
	SettingTypeString = "string"
)

// ValidSettingType reports whether t is one of the accepted value types.
func ValidSettingType(t string) bool {
	switch t {
	case SettingTypeInt, SettingTypeFloat, SettingTypeBool, SettingTypeString:
		return true
	}
	return false
}

// Setting is one typed runtime configuration value, keyed by
// (component, section, key). Values are stored as text and cast on read.
type Setting struct {
	Component   string  `json:"component"`
	Section     string  `json:"section"`
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	ValueType   string  `json:"value_type"`
	Description *string `json:"description,omitempty"`
}
