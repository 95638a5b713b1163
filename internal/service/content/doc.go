// Package content produces the body of a newsletter, either from a
// language model (AIGenerator) or from operator-selected tools
// (Composer). Both render HTML through the mailer's Liquid templates.
//
// AI generation never falls back to canned content: any model error or
// unusable output fails the tier's run.
package content
