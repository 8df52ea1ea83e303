// Package compiler drives the external DBPro toolchain.
//
// A run writes the source into a fresh Workspace, invokes the compiler with a
// bounded timeout, and on success executes the produced binary with its own
// timeout. When the compiler does not produce a binary, the diagnostic is
// read from the DiagnosticChannel the compiler writes into.
//
// The compiler, its output filename and its diagnostic segment are all
// process-wide singletons, so every run goes through a Serializer that lets
// exactly one Pipeline run at a time.
package compiler
