// Package memory provides in-process link, click, and blob stores for
// development and tests. All types are safe for concurrent use.
package memory
