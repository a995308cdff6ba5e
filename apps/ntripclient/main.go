// ntripclient is a command line NTRIP client.  It lists a caster's mounts,
// finds the nearest mount to a position and streams RTCM3 corrections from
// a mount, printing, recording or republishing them.
//
//	ntripclient providers
//	ntripclient --caster linz list
//	ntripclient --caster rtk2go nearest --lat 45.8 --lon 16.0
//	ntripclient --caster rtk2go -u me@example.com subscribe VargaRTKhr --record-dir logs
package main

import (
	"os"

	"github.com/goblimey/go-ntrip-client/apps/ntripclient/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
