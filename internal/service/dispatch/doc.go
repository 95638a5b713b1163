// Package dispatch delivers a newsletter to its audience.
//
// A run plans one PENDING email log per recipient, then delivers each one
// either inline in sequential batches (direct mode) or through queued jobs
// consumed by workers (queue mode). Every delivery first claims its log
// row (PENDING -> SENDING), which makes redelivered jobs harmless. Once no
// log is in flight, the newsletter is finalized as SENT with
// recipientCount = sent + failed.
//
// Recovery resets deliveries abandoned by a crashed process and finishes
// newsletters left in SENDING.
package dispatch
