// Package pspm implements the dependency-resolution and installation engine
// shared by every pspm command: the specifier grammar, the manifest and
// lockfile data model, and the domain types passed between the resolver,
// source fetchers, cache, extractor and agent linker.
//
// The interactive CLI, auth flows and publish/unpublish/deprecate/access
// commands are deliberately not part of this package; they are thin
// collaborators that construct a Config and call into the subpackages here.
package pspm
