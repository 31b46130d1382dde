// Package all registers every shell command set.
package all

import (
	_ "github.com/robotalks/aerlink/pkg/cli/cmds/uc"
)
