// Package exporter writes processed surveillance datasets as CSV files.
//
// CSVWriter renders a dataset column-for-column with missing values as empty
// cells and a UTF-8 BOM for Excel compatibility, so exports round-trip
// through the loader. Rows go through a streaming writer, which is also
// usable directly for output too large to materialize.
package exporter
