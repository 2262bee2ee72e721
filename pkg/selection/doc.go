// Package selection holds the value model of the image-from-page field: which
// image, on which page, is currently chosen.
//
// A Value is either empty (no selection) or carries both a positive page id
// and a sanitized filename. The canonical wire form is a JSON object with the
// keys in a fixed order:
//
//	{"pageid": 42, "filename": "photo.jpg"}
//
// The empty value serializes to the empty string. Parsing is forgiving on the
// client path (FromSerialized never fails) and strict on the server path
// (Parse and Holder report malformed input).
package selection
