// Package wrapper turns submitted code into a program a sandbox can run.
//
// Submitted code is expected to declare a function. Wrap checks the length
// limit, strips comments, finds the first top-level function declaration
// and records its name and parameter shape. The resulting Program source
// evaluates, in a private function scope, to that function; the sandbox
// then calls it with the job input.
package wrapper
