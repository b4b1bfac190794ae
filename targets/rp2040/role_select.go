//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"nightfall/config"
)

// rolePin selects the role at boot: left open (pulled up) runs the master,
// tied to ground runs the slave
const rolePin = machine.GPIO28

// selectConfig returns the stock configuration for the strapped role
func selectConfig() *config.NodeConfig {
	rolePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	time.Sleep(time.Millisecond)
	if !rolePin.Get() {
		return config.DefaultSlaveConfig()
	}
	return config.DefaultMasterConfig()
}
