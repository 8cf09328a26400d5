// Package notifications pushes request lifecycle events to admins.
//
// The ntfy implementation posts to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Callers only
// see the Service interface and publish an Event with a Payload; events the
// formatter does not recognise are dropped without a network call.
package notifications
