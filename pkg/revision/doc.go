// Package revision provides small, dependency-free helpers for reasoning about
// Swiss release revisions.
//
// Swiss releases carry a monotonically increasing SVN-style revision number in
// both their tag ("v0.6r1957") and their archive names ("swiss_r1957.tar.xz").
// Some revision ranges are known to produce a defective payload for specific
// devices; this package decides whether a given tag may be installed.
//
// Revision model
//   - A revision is the decimal number following a trailing "r" in a tag, or
//     following "_r" in an archive name ("swiss_r1957.7z").
//   - Tags without a trailing revision are never considered blocked.
//   - A Range is closed: both bounds are blocked.
//
// This package intentionally does not perform network lookups. It only decides
// given a tag string and a range.
package revision
