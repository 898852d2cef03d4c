//go:build !unix

package external

import "os/exec"

// killGroupOnCancel keeps the exec default of killing only the process
// itself; WaitDelay still bounds the wait for its output pipes.
func killGroupOnCancel(cmd *exec.Cmd) {}
