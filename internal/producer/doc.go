// Package producer creates snapshot artifacts.
//
// Two variants share the [Producer] contract. [Archive] writes a single tar
// stream, gzip-compressed unless compression is disabled, to
// destination/<id>.tar[.gz]. [Mirror] replicates the source tree into a new
// directory destination/<id>/ using a [MirrorEngine]: the built-in
// [NativeEngine] or the external rsync program via [RsyncEngine].
//
// Both variants honor exclude patterns and skip the destination directory
// when it lies inside the source. In dry-run mode they report what they
// would do and leave the filesystem untouched.
//
// A producer never removes a partially written artifact on failure; the
// error is returned as a [*Failure] and the artifact is left for inspection.
package producer
