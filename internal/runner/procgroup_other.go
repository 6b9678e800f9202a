//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func isTextBusy(err error) bool { return false }

func killedBySignal(ps *os.ProcessState) bool { return ps != nil && !ps.Exited() }
