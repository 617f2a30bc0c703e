// Package msqpsettings holds the MS-SQP solver's recognized configuration options
// (spec.md §6) and a small AttributeMap type modeled on
// go.viam.com/rdk/config.AttributeMap for decoding them out of a loose map.
package msqpsettings

// AttributeMap is a loosely typed configuration bag, as produced by whatever config-file
// format the embedding application uses. FromAttributeMap decodes it onto Default() via
// mapstructure, so individual keys never need a typed accessor of their own.
type AttributeMap map[string]interface{}
