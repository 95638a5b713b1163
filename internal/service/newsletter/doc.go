// Package newsletter owns the Newsletter record and its state machine:
//
//	DRAFT -> SENDING -> SENT | FAILED
//
// A dispatch run creates its newsletter directly in SENDING. Drafts must
// pass through SENDING before they can be SENT. Transitions are applied
// as conditional updates, so two finalizers racing on the same row cannot
// both succeed.
package newsletter
