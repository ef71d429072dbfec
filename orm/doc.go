/*
Package orm provides an easy to use db wrapper

Break state space into prefixed sections called Buckets.
* Each bucket contains only one type of model.
* It has a primary key (which may be composite),
and may possess secondary indexes (1:N).
* Easy queries for one and iteration over key ranges.

Models are serialized with go-amino, so they are plain Go structs
without code generation. Keep models free of maps and interface
fields to guarantee a deterministic encoding.
*/
package orm
