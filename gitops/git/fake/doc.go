// Package fake provides an in-memory git.RemoteRepo. It keeps branches, tags
// and pull requests in maps, lets tests script mergeability and merge results
// per source/target pair, and records every call in order.
package fake
