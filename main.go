package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"gbcore/hw/cart"
)

func main() {
	cli := parseArgs(os.Args[1:])

	switch cli.mode {
	case romInfosMode:
		c, err := cart.Open(cli.RomInfos.RomPath)
		checkf(err, "failed to open rom")
		c.PrintInfos(os.Stdout)

	case versionMode:
		fmt.Println("gbcore", version())

	case runMode:
		cfg, err := loadConfig(cli.Run)
		checkf(err, "failed to load configuration")
		if err := emuMain(cli.Run, cfg); err != nil {
			fatalf("%s", err)
		}
	}
}

func version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "(devel)"
	}
	return bi.Main.Version
}
