// Package domain contains the entities shared by the gateway's protocols:
// roles and their tracked targets, the cached session record, and the
// error taxonomy every layer reports failures with. It has no dependencies
// on transport or storage.
package domain
