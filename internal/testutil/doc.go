// Package testutil contains helper builders, recorders and testify mocks
// used across tests to reduce boilerplate when constructing prospects,
// collecting events and faking collaborators. They are not intended for
// production usage.
package testutil
