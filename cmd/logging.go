package cmd

import (
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/urfave/cli"
)

var logger = log.New("svo")

// Apply the global -v, -vv and --log-modules flags.
func setupLogging(ctx *cli.Context) error {
	log.SetLevel(log.LevelFromVerbosity(ctx.GlobalBool("v"), ctx.GlobalBool("vv")))

	levels, err := log.ParseModuleLevels(ctx.GlobalString("log-modules"))
	if err != nil {
		return err
	}
	log.ResetModuleLevels()
	for module, level := range levels {
		log.SetModuleLevel(module, level)
	}
	return nil
}
