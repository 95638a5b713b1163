// Package subscriber owns the subscriber lifecycle: sign-up, topic
// preferences, unsubscribe, and tier changes.
//
// The topic invariant (enabled topics are a subset of the topics the
// subscriber's tier allows) is enforced on Subscribe and UpdatePreferences.
// Downgrades leave existing topics untouched.
package subscriber
