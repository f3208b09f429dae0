// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE (and JSON) documents against embedded schemas
// and decodes them into Go values.
//
// Parsing follows three steps:
//
//  1. Compile the embedded schema
//  2. Compile the document and unify it with the schema definition
//  3. Validate and decode to a Go struct
//
// # Usage
//
//	//go:embed catalog_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[catalogDoc](schema, data, "#Catalog",
//	    cueutil.WithFilename("catalog"))
//	if err != nil {
//	    return nil, err // error carries the CUE path of the offending field
//	}
//	return res.Value, nil
package cueutil
