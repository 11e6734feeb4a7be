package main

import (
	"os"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
)

func main() {
	os.Exit(worker.Main())
}
