// Package daemon starts a node from a data directory. It is what the irohabg
// run command executes, and can be used to embed a node in another process.
package daemon
