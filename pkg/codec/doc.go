// Package codec converts snapshot values to and from a JSON-compatible tree.
//
// Values form a closed set of kinds (Null, Bool, Int, Float, String, List,
// Record, Map). Kinds plain JSON cannot express are tagged with a reserved
// "kind" key:
//
//	{"kind":"map","entries":[[k,v],...]}   ordered map, any Value keys
//	{"kind":"record","fields":{...}}       record that has its own "kind" field
//	{"kind":"float","value":"NaN"}         non-finite float
//
// For every Value v, Decode(Encode(v)) is Equal to v. Marshal produces
// canonical compact JSON (sorted keys, no HTML escaping), which is the form
// digests are computed over.
package codec
