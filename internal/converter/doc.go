// Package converter launches the external AgilentToUIMFConverter and watches
// it until it exits.
//
// The Supervisor polls the child process, reparses the captured console
// output for frame progress and error lines, enforces the runtime ceiling and
// terminates the child on timeout or cancellation. ParseConsoleOutput is
// exported separately so the same parsing rules apply to console files
// inspected after the fact.
package converter
