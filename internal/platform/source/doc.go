// Package source provides directory.RecordSource implementations that read
// the static patient dataset from a JSON file, PostgreSQL, SQLite, Amazon S3
// or MinIO.
//
// File and object sources decode a JSON array of patients. The object name
// selects an optional decompressor:
//
//	data.json      plain JSON
//	data.json.gz   gzip
//	data.json.zst  zstd
//	data.json.lz4  lz4 frame
//
// Every Load reads the dataset in full; nothing is cached between calls.
package source
