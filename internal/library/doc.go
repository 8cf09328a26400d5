// Package library decides whether a media request is already present in the
// Jellyfin library.
//
// Matcher searches by title and item type and then requires the configured
// provider id (Tmdb by default) to equal the request's catalog id. Titles
// alone never match. Media types without a configured Jellyfin item type,
// such as books, are reported as no_match without any network call.
package library
