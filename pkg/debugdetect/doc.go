// Package debugdetect reports whether a process is being traced by a
// ptrace based debugger such as gdb or Delve.
//
// Only one tracer can be attached to a process at a time: crashwalk uses
// this to refuse attaching to a traced process and to avoid starting a
// second debugger on a crashing process that is already being debugged.
package debugdetect
