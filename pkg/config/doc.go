// Configuration sources are layered, lowest precedence first:
//
//  1. NewDefault
//  2. a YAML file read with Load, where ${VAR_NAME} is replaced by the
//     environment value before parsing
//  3. PARQ_* environment variables, e.g. PARQ_OUTPUT_COMPRESSIONCODEC=high-ratio
//  4. command-line flags that were set explicitly
//
// Resolve performs steps 3 and 4 with viper. Validate should be called on the
// result before a job is built.
//
// Example file:
//
//	input:
//	  root: ${RAW_DIR}
//	  recursive: true
//	read:
//	  chunkSize: 200000
//	  hasHeader: false
//	output:
//	  path: /data/comments.parquet
//	  compressionCodec: high-ratio
//	  rowGroupSize: 1000000
package config
