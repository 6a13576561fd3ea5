// Package guildconf is the durable per-tenant configuration store.
//
// One document per tenant: notification channel, enabled event classes and
// welcome fields. Absence and the empty document are equivalent, so Get
// never fails and deletion does not exist. All mutation goes through
// Store.Update, which serializes read-modify-write cycles per tenant while
// leaving distinct tenants fully concurrent.
package guildconf
