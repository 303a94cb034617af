// Package ncmeta resolves the on-disk variable code of a downloaded
// artifact.
//
// The retrieval API accepts long variable names but stores data under
// short codes that are only knowable after inspecting the file. This
// package walks the NetCDF classic header to enumerate variable names,
// excludes coordinate variables, and picks the remaining data variable.
// Files it cannot parse keep the requested name; a wrong-but-stable
// name is preferable to a failed task.
package ncmeta
