// Package mongo provides MongoDB implementations of mfa.Store,
// session.Repository and events.Store.
//
// Records and sessions carry a version field. Updates read the document,
// apply the caller's mutation and replace it only if the version is
// unchanged, retrying a bounded number of times.
package mongo
