// Package billing keeps the payment ledger for tier upgrades.
//
// A transaction is recorded as PENDING when checkout starts, confirmed as
// SUCCEEDED when the gateway reports payment, and may later be REFUNDED.
// Confirmation upgrades the subscriber; a refund returns them to FREE.
// Transactions are unique per (provider, providerRef), so gateway retries
// are idempotent.
package billing
