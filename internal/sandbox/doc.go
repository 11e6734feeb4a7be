/*
Package sandbox runs one user program in a fresh JavaScript realm.

# Overview

Every job gets its own goja runtime. Nothing the program does to the global
object or to built-in prototypes can be seen by the next job, even though
the worker process running them stays warm.

A runtime starts from goja's bare ECMAScript environment, which has no
filesystem, network, timers or module loader. The following are removed or
never defined, so referring to them fails with "<name> is not defined":

  - require, module, exports, process
  - fetch, XMLHttpRequest, WebSocket
  - setTimeout, setInterval, setImmediate and their clear functions
  - queueMicrotask

global is an alias of globalThis. A URL class backed by net/url and an
optional console are installed.

# Execution

Run converts the input into JavaScript values before any user code runs,
evaluates the program (which yields the entry function), calls it and, if
the result is a promise, reads its settled value once the job queue has
drained. Return values are serialized with the codec node table, so Map,
Set, Date, BigInt, URL, Uint8Array and cyclic graphs all survive.

Constructors and prototype methods used for conversion are captured before
the program runs. A program replacing Map.prototype.set cannot change how
its input is built or how its result is read.

# Limits

  - Call depth: SetMaxCallStackSize, surfaced as "Maximum call stack size exceeded"
  - Wall clock: the context passed to Run interrupts the VM
  - Memory: enforced by the worker process around the sandbox
*/
package sandbox
