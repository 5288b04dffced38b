package main

import (
	"os"

	"github.com/cjsb/SparseVoxelOctree/cmd"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "svo"
	app.Usage = "voxelize meshes into sparse voxel octrees and render them"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-modules",
			Usage: `per-logger levels as module=level pairs, e.g. "voxelizer=debug,path tracer=warning"`,
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "voxelize meshes into compiled octree files",
			Description: `
Parse a mesh from a wavefront obj, stl, ply or 3ds file, voxelize it at the
requested octree level and build a sparse voxel octree.

The octree is then written to a zip archive with a .svo extension next to the
mesh file. Compiled octrees can be supplied as an argument to the render
commands.`,
			ArgsUsage: "mesh_file1.obj mesh_file2.stl ...",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "level, l",
					Value: 8,
					Usage: "octree depth",
				},
				cli.IntFlag{
					Name:  "workers",
					Usage: "number of voxelization workers; defaults to the number of CPUs",
				},
				cli.BoolFlag{
					Name:  "solid",
					Usage: "fill the interior of closed meshes",
				},
			},
			Action: cmd.CompileOctree,
		},
		{
			Name:      "info",
			Usage:     "print statistics for a compiled octree",
			ArgsUsage: "octree_file.svo",
			Action:    cmd.ShowOctreeInfo,
		},
		{
			Name:  "render",
			Usage: "render scene",
			Subcommands: []cli.Command{
				{
					Name:        "frame",
					Usage:       "ray march a single frame",
					Description: `Ray march a single frame of a mesh or compiled octree and export it as a PNG image.`,
					ArgsUsage:   "scene_file",
					Flags: append(append([]cli.Flag{
						cli.StringFlag{
							Name:  "view",
							Value: "diffuse",
							Usage: "output view: diffuse, normal or iterations",
						},
						cli.BoolTFlag{
							Name:  "beam",
							Usage: "enable the beam optimization pre-pass",
						},
						cli.IntFlag{
							Name:  "beam-block",
							Value: 8,
							Usage: "beam pre-pass block size in pixels",
						},
						cli.Float64Flag{
							Name:  "beam-origin-size",
							Usage: "beam cone radius at the camera origin",
						},
						cli.Float64Flag{
							Name:  "beam-dir-size",
							Usage: "extra beam cone widening per unit distance",
						},
						cli.IntFlag{
							Name:  "supersample",
							Value: 1,
							Usage: "render at a multiple of the frame size and downsample",
						},
						cli.StringFlag{
							Name:  "out, o",
							Value: "frame.png",
							Usage: "image filename for the rendered frame",
						},
					}, cmd.SceneFlags...), cmd.CameraFlags...),
					Action: cmd.RenderFrame,
				},
				{
					Name:  "pathtrace",
					Usage: "progressively path trace a single frame",
					Description: `
Accumulate path traced samples of a mesh or compiled octree and export the
selected channel as an OpenEXR or PNG image. Interrupting the render saves the
samples accumulated so far.`,
					ArgsUsage: "scene_file",
					Flags: append(append([]cli.Flag{
						cli.IntFlag{
							Name:  "spp",
							Value: 16,
							Usage: "samples per pixel",
						},
						cli.IntFlag{
							Name:  "bounces",
							Value: 4,
							Usage: "number of indirect bounces",
						},
						cli.StringFlag{
							Name:  "sun",
							Usage: "sun radiance as r,g,b",
						},
						cli.StringFlag{
							Name:  "sun-dir",
							Usage: "direction towards the sun as x,y,z",
						},
						cli.StringFlag{
							Name:  "sky",
							Usage: "sky radiance as r,g,b",
						},
						cli.StringFlag{
							Name:  "channel",
							Value: "color",
							Usage: "exported channel: color, albedo or normal",
						},
						cli.BoolFlag{
							Name:  "half",
							Usage: "export EXR images with 16-bit half floats",
						},
						cli.StringFlag{
							Name:  "out, o",
							Value: "frame.exr",
							Usage: "image filename (.exr or .png) for the rendered frame",
						},
					}, cmd.SceneFlags...), cmd.CameraFlags...),
					Action: cmd.RenderPathTrace,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.New("svo").Error(err)
		os.Exit(1)
	}
}
